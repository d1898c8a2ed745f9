package sched

// Trigger identifies which mechanism fired a refresh pass. It only informs
// scheduling policy and logging; every trigger goes through the same entry
// point and the same single-flight guard in the auth cycle.
type Trigger int

const (
	// TriggerPeriodic is the fixed-interval in-process timer.
	TriggerPeriodic Trigger = iota
	// TriggerExternalAlarm is the externally-woken one-shot that
	// reschedules itself after each firing.
	TriggerExternalAlarm
	// TriggerDeferredJob is the host scheduler's best-effort job, invoked
	// on the host's own cadence.
	TriggerDeferredJob
)

// String returns the trigger name.
func (t Trigger) String() string {
	switch t {
	case TriggerPeriodic:
		return "periodic"
	case TriggerExternalAlarm:
		return "alarm"
	case TriggerDeferredJob:
		return "job"
	default:
		return "unknown"
	}
}
