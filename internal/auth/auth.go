// Package auth keeps the session token valid and owns the logout cascade.
package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"

	"github.com/llehouerou/vibra/internal/creds"
	"github.com/llehouerou/vibra/internal/errmsg"
)

// PlaybackStopper is the slice of the playback session the logout cascade
// needs.
type PlaybackStopper interface {
	Stop()
}

// SnapshotClearer removes the persisted queue snapshot on logout.
type SnapshotClearer interface {
	ClearSnapshot() error
}

// Cycle runs login/verify/refresh against the auth service and escalates to
// a full logout when the session cannot be kept valid.
//
// verify and refresh are single-flight: concurrent triggers (periodic timer,
// external alarm, deferred job) collapse into one network round trip and
// share its result, so there are never conflicting token writes.
type Cycle struct {
	client   *Client
	creds    *creds.Gateway
	playback PlaybackStopper
	store    SnapshotClearer
	log      *log.Logger

	// threshold is the remaining lifetime below which a token is treated
	// as expired even if the server still accepts it.
	threshold time.Duration

	flight singleflight.Group

	mu    sync.Mutex
	state SessionState

	// now is replaceable in tests.
	now func() time.Time
}

// NewCycle creates an auth cycle.
func NewCycle(client *Client, gateway *creds.Gateway, pb PlaybackStopper, store SnapshotClearer, threshold time.Duration, logger *log.Logger) *Cycle {
	state := Unauthenticated
	if gateway.HasAccessToken() {
		state = Authenticated
	}
	return &Cycle{
		client:    client,
		creds:     gateway,
		playback:  pb,
		store:     store,
		log:       logger.With("component", "auth"),
		threshold: threshold,
		state:     state,
		now:       time.Now,
	}
}

// State returns the current session state.
func (c *Cycle) State() SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Cycle) setState(s SessionState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// IsLoggedIn reports whether an access token is stored.
func (c *Cycle) IsLoggedIn() bool {
	return c.creds.HasAccessToken()
}

// Login authenticates with email/password. All failure kinds come back as
// Failure outcomes with a user-facing message; nothing is retried here.
func (c *Cycle) Login(ctx context.Context, email, password string) Outcome {
	pair, err := c.client.Login(ctx, email, password)
	switch {
	case errors.Is(err, ErrUnauthorized):
		return Failure(errmsg.LoginBadCredentials)
	case errors.Is(err, ErrBadRequest):
		return Failure(errmsg.LoginBadRequest)
	case err != nil:
		c.log.Warn("login failed", "err", err)
		return Failure(errmsg.LoginNetworkFailure)
	}

	if err := c.creds.SetTokens(pair.AccessToken, pair.RefreshToken); err != nil {
		c.log.Error("storing credentials failed", "err", err)
		return Failure(errmsg.Format(errmsg.OpLogin, err))
	}
	c.setState(Authenticated)
	return Success()
}

// VerifyToken checks the stored access token against the auth service.
//
// A token whose embedded expiry leaves less than the configured threshold of
// lifetime is classified Expired even when the server call succeeds, so the
// client refreshes ahead of server-side expiry. Concurrent callers share one
// in-flight verification.
func (c *Cycle) VerifyToken(ctx context.Context) Outcome {
	v, _, _ := c.flight.Do("verify", func() (any, error) {
		return c.verifyOnce(ctx), nil
	})
	return v.(Outcome)
}

func (c *Cycle) verifyOnce(ctx context.Context) Outcome {
	token, err := c.creds.AccessToken()
	if err != nil {
		c.setState(Unauthenticated)
		return Failure("not logged in")
	}

	if err := c.client.Verify(ctx, token); err != nil {
		if errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrForbidden) {
			c.setState(ExpiredState)
			return Expired()
		}
		if errors.Is(err, ErrNetwork) {
			// Session may still be fine; leave state alone and retry later.
			c.log.Warn("token verification unreachable", "err", err)
			return TransientFailure(errmsg.Format(errmsg.OpVerifyToken, err))
		}
		c.log.Warn("token verification failed", "err", err)
		return Failure(errmsg.Format(errmsg.OpVerifyToken, err))
	}

	remaining, err := creds.RemainingLifetime(token, c.now())
	if err != nil {
		// Can't read the expiry claim; refresh rather than guess.
		c.setState(ExpiredState)
		return Expired()
	}
	if remaining < c.threshold {
		c.setState(ExpiredState)
		return Expired()
	}

	c.setState(Authenticated)
	return Success()
}

// RefreshToken exchanges the refresh token for a new pair. Rejection or
// failure escalates to Logout. Concurrent callers share one in-flight
// refresh; whoever arrives while a refresh is running awaits its result
// instead of issuing a second network call.
func (c *Cycle) RefreshToken(ctx context.Context) Outcome {
	v, _, _ := c.flight.Do("refresh", func() (any, error) {
		return c.refreshOnce(ctx), nil
	})
	return v.(Outcome)
}

func (c *Cycle) refreshOnce(ctx context.Context) Outcome {
	c.setState(Refreshing)

	refresh, err := c.creds.RefreshToken()
	if err != nil {
		c.log.Warn("no refresh token stored")
		c.logout()
		return Failure("not logged in")
	}

	pair, err := c.client.Refresh(ctx, refresh)
	switch {
	case errors.Is(err, ErrForbidden), errors.Is(err, ErrUnauthorized):
		c.log.Warn("refresh token rejected, logging out")
		c.logout()
		return Expired()
	case err != nil:
		c.log.Error("token refresh failed, logging out", "err", err)
		c.logout()
		return Failure(errmsg.Format(errmsg.OpRefreshToken, err))
	}

	if err := c.creds.SetTokens(pair.AccessToken, pair.RefreshToken); err != nil {
		c.log.Error("storing refreshed credentials failed", "err", err)
		c.logout()
		return Failure(errmsg.Format(errmsg.OpRefreshToken, err))
	}

	c.setState(Authenticated)
	return Success()
}

// Logout is the single unconditional teardown path: clear credentials,
// clear the persisted queue snapshot, stop playback. Idempotent and safe
// to call concurrently.
func (c *Cycle) Logout() error {
	return c.logout()
}

func (c *Cycle) logout() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	if err := c.creds.Clear(); err != nil {
		errs = append(errs, err)
	}
	if c.store != nil {
		if err := c.store.ClearSnapshot(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.playback != nil {
		c.playback.Stop()
	}
	c.state = Unauthenticated
	return errors.Join(errs...)
}
