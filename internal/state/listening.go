package state

import (
	"database/sql"
	"time"

	dbutil "github.com/llehouerou/vibra/internal/db"
)

// ListenRecord is one flushed listening session.
type ListenRecord struct {
	ID        int64
	SessionID string
	TrackID   int64
	Title     string
	Artist    string
	StartedAt time.Time
	Listened  time.Duration
}

// PendingScrobble represents a scrobble queued for retry.
type PendingScrobble struct {
	ID           int64
	Artist       string
	Title        string
	DurationSecs int
	Timestamp    time.Time
	Attempts     int
	LastError    string
	CreatedAt    time.Time
}

// AddListen appends a listening-history record.
func (m *Manager) AddListen(r ListenRecord) error {
	now := time.Now().Unix()
	_, err := m.db.Exec(`
		INSERT INTO listening_history (session_id, track_id, title, artist, started_at, listened_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, r.SessionID, r.TrackID, r.Title, r.Artist, r.StartedAt.Unix(), r.Listened.Milliseconds(), now)
	return err
}

// RecentListens returns the most recent listening-history records.
func (m *Manager) RecentListens(limit int) ([]ListenRecord, error) {
	rows, err := m.db.Query(`
		SELECT id, session_id, track_id, title, artist, started_at, listened_ms
		FROM listening_history
		ORDER BY created_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []ListenRecord
	for rows.Next() {
		var r ListenRecord
		var artist sql.NullString
		var startedAt, listenedMs int64

		if err := rows.Scan(&r.ID, &r.SessionID, &r.TrackID, &r.Title, &artist, &startedAt, &listenedMs); err != nil {
			return nil, err
		}
		r.Artist = dbutil.NullStringValue(artist)
		r.StartedAt = time.Unix(startedAt, 0)
		r.Listened = time.Duration(listenedMs) * time.Millisecond
		records = append(records, r)
	}
	return records, rows.Err()
}

// AddPendingScrobble queues a scrobble for later submission.
func (m *Manager) AddPendingScrobble(s PendingScrobble) error {
	now := time.Now().Unix()
	_, err := m.db.Exec(`
		INSERT INTO pending_scrobbles (artist, title, duration_seconds, timestamp, attempts, last_error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, s.Artist, s.Title, s.DurationSecs, s.Timestamp.Unix(), 0, "", now)
	return err
}

// GetPendingScrobbles returns all pending scrobbles ordered by creation time.
func (m *Manager) GetPendingScrobbles() ([]PendingScrobble, error) {
	rows, err := m.db.Query(`
		SELECT id, artist, title, duration_seconds, timestamp, attempts, last_error, created_at
		FROM pending_scrobbles
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scrobbles []PendingScrobble
	for rows.Next() {
		var s PendingScrobble
		var lastError sql.NullString
		var timestamp, createdAt int64

		err := rows.Scan(&s.ID, &s.Artist, &s.Title, &s.DurationSecs, &timestamp, &s.Attempts, &lastError, &createdAt)
		if err != nil {
			return nil, err
		}
		s.LastError = dbutil.NullStringValue(lastError)
		s.Timestamp = time.Unix(timestamp, 0)
		s.CreatedAt = time.Unix(createdAt, 0)
		scrobbles = append(scrobbles, s)
	}
	return scrobbles, rows.Err()
}

// DeletePendingScrobble removes a successfully submitted scrobble.
func (m *Manager) DeletePendingScrobble(id int64) error {
	_, err := m.db.Exec(`DELETE FROM pending_scrobbles WHERE id = ?`, id)
	return err
}

// UpdatePendingScrobbleAttempt increments attempt count and sets the error.
func (m *Manager) UpdatePendingScrobbleAttempt(id int64, errMsg string) error {
	_, err := m.db.Exec(`
		UPDATE pending_scrobbles
		SET attempts = attempts + 1, last_error = ?
		WHERE id = ?
	`, errMsg, id)
	return err
}
