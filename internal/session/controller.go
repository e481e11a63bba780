// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/squidbay/squidops-tui/internal/apiclient"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// DefaultMaxAttempts is the number of failed login steps before lockout.
	DefaultMaxAttempts = 5

	// DefaultLockoutDuration is how long attempts are refused after lockout.
	DefaultLockoutDuration = 15 * time.Minute

	// DefaultSessionTimeout is the hard session limit, counted from a completed login.
	DefaultSessionTimeout = 4 * time.Hour

	// DefaultIdleTimeout ends the session when no input is observed.
	DefaultIdleTimeout = 30 * time.Minute

	// DefaultLockoutTick is the lockout countdown resolution.
	DefaultLockoutTick = time.Second

	// auditTimeout bounds a single best-effort audit request.
	auditTimeout = 10 * time.Second
)

// API paths used by the login flow.
const (
	pathVerify      = "/admin/verify"
	pathVerify2FA   = "/admin/2fa/verify"
	pathAuditLog    = "/admin/audit-log"
	auditLogin      = "login"
	auditLogout     = "logout"
	auditLoginText  = "Admin logged in"
	auditLogoutText = "Admin logged out"
)

var totpPattern = regexp.MustCompile(`^[0-9]{6}$`)

// ErrAlreadyAuthenticated is returned by Authenticate while a session is live.
var ErrAlreadyAuthenticated = errors.New("already authenticated")

// Requester performs API calls. *apiclient.Client satisfies it.
type Requester interface {
	Do(ctx context.Context, req apiclient.Request) (json.RawMessage, error)
}

// =============================================================================
// CONFIG
// =============================================================================

// Config holds the controller limits.
type Config struct {
	MaxAttempts     int
	LockoutDuration time.Duration
	SessionTimeout  time.Duration
	IdleTimeout     time.Duration
	LockoutTick     time.Duration
}

// DefaultConfig returns the production limits.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:     DefaultMaxAttempts,
		LockoutDuration: DefaultLockoutDuration,
		SessionTimeout:  DefaultSessionTimeout,
		IdleTimeout:     DefaultIdleTimeout,
		LockoutTick:     DefaultLockoutTick,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.LockoutDuration <= 0 {
		c.LockoutDuration = d.LockoutDuration
	}
	if c.SessionTimeout <= 0 {
		c.SessionTimeout = d.SessionTimeout
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = d.IdleTimeout
	}
	if c.LockoutTick <= 0 {
		c.LockoutTick = d.LockoutTick
	}
	return c
}

// =============================================================================
// CONTROLLER
// =============================================================================

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger for session events.
func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithKeyStore replaces the default in-memory key store.
func WithKeyStore(s KeyStore) Option {
	return func(c *Controller) {
		if s != nil {
			c.store = s
		}
	}
}

type listener struct {
	id int
	fn func(Event)
}

// Controller is the admin session state machine. It is safe for concurrent use.
type Controller struct {
	api    Requester
	cfg    Config
	logger *zap.Logger
	store  KeyStore

	mu             sync.Mutex
	state          State
	key            string
	candidate      string
	startedAt      time.Time
	lastActivity   time.Time
	failedAttempts int
	lockedUntil    time.Time
	inFlight       bool
	closed         bool

	// generation invalidates timers and in-flight login steps from an
	// earlier login. It changes on every login start, completion and end.
	generation uint64
	idleSeq    uint64

	sessionTimer *time.Timer
	idleTimer    *time.Timer
	lockStop     chan struct{}

	listeners []listener
	nextID    int

	// background tracks audit goroutines and the lockout ticker.
	background sync.WaitGroup
}

// New creates a logged-out controller.
func New(api Requester, cfg Config, opts ...Option) *Controller {
	c := &Controller{
		api:    api,
		cfg:    cfg.withDefaults(),
		logger: zap.NewNop(),
		store:  NewMemoryKeyStore(),
		state:  LoggedOut,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Config returns the effective limits.
func (c *Controller) Config() Config {
	return c.cfg
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Snapshot returns counters and remaining durations.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	s := Snapshot{
		State:          c.state,
		FailedAttempts: c.failedAttempts,
		MaxAttempts:    c.cfg.MaxAttempts,
		StartedAt:      c.startedAt,
	}
	if c.lockedUntil.After(now) {
		s.LockoutRemaining = c.lockedUntil.Sub(now)
	}
	if c.state == Authenticated {
		s.SessionRemaining = clampZero(c.startedAt.Add(c.cfg.SessionTimeout).Sub(now))
		s.IdleRemaining = clampZero(c.lastActivity.Add(c.cfg.IdleTimeout).Sub(now))
	}
	return s
}

// Subscribe registers fn for state events and returns a function that
// removes it. fn runs on the goroutine that caused the event and must not
// call back into the controller synchronously.
func (c *Controller) Subscribe(fn func(Event)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	id := c.nextID
	c.listeners = append(c.listeners, listener{id: id, fn: fn})
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, l := range c.listeners {
			if l.id == id {
				c.listeners = append(c.listeners[:i], c.listeners[i+1:]...)
				return
			}
		}
	}
}

// =============================================================================
// LOGIN FLOW
// =============================================================================

type verifyResponse struct {
	TOTPEnabled bool `json:"totp_enabled"`
}

// Authenticate verifies an admin key. On success the controller is either
// Authenticated or, when 2FA is enabled, SecondFactorPending.
func (c *Controller) Authenticate(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	events, err := c.refuseIfLockedLocked(time.Now())
	if err == nil {
		switch {
		case key == "":
			err = &ValidationError{Field: "key", Message: "admin key is required"}
		case c.state == Authenticated:
			err = ErrAlreadyAuthenticated
		case c.inFlight:
			err = ErrLoginInProgress
		}
	}
	if err != nil {
		c.mu.Unlock()
		c.emit(events)
		return err
	}
	c.candidate = ""
	c.inFlight = true
	c.generation++
	gen := c.generation
	events = append(events, c.setStateLocked(KeyPending, ReasonNone))
	c.mu.Unlock()
	c.emit(events)

	raw, reqErr := c.api.Do(ctx, apiclient.Request{Method: http.MethodGet, Path: pathVerify, Key: key})
	var resp verifyResponse
	if reqErr == nil {
		reqErr = apiclient.Decode(raw, &resp)
	}

	c.mu.Lock()
	if c.generation != gen || c.closed {
		c.mu.Unlock()
		return ErrLoginAborted
	}
	c.inFlight = false
	completed := false
	switch {
	case reqErr != nil && errors.Is(reqErr, context.Canceled):
		events = []Event{c.setStateLocked(LoggedOut, ReasonNone)}
		err = reqErr
	case reqErr != nil:
		events, err = c.failLocked(StepKey, reqErr)
	case resp.TOTPEnabled:
		c.failedAttempts = 0
		c.candidate = key
		events = []Event{c.setStateLocked(SecondFactorPending, ReasonNone)}
		c.logEvent("KEY_VERIFIED", zap.String("key", apiclient.Fingerprint(key)), zap.Bool("totp", true))
	default:
		events = c.completeLocked(key)
		completed = true
	}
	c.mu.Unlock()
	c.emit(events)

	if completed {
		c.auditAs(key, auditLogin, auditLoginText)
	}
	return err
}

// VerifySecondFactor submits a six-digit TOTP code.
func (c *Controller) VerifySecondFactor(ctx context.Context, code string) error {
	code = strings.TrimSpace(code)
	var verr error
	if !totpPattern.MatchString(code) {
		verr = &ValidationError{Field: "code", Message: "enter the 6-digit code from your authenticator"}
	}
	return c.verifyStep(ctx, StepTOTP, verr, map[string]string{"code": code})
}

// VerifyBackupCode submits a one-time backup code. It shares the failed
// attempt counter with the key and TOTP steps.
func (c *Controller) VerifyBackupCode(ctx context.Context, code string) error {
	code = strings.TrimSpace(code)
	var verr error
	if code == "" {
		verr = &ValidationError{Field: "backup_code", Message: "backup code is required"}
	}
	return c.verifyStep(ctx, StepBackup, verr, map[string]string{"backup_code": code})
}

func (c *Controller) verifyStep(ctx context.Context, step Step, verr error, body map[string]string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	events, err := c.refuseIfLockedLocked(time.Now())
	if err == nil {
		switch {
		case c.state != SecondFactorPending:
			err = ErrNoPendingLogin
		case c.inFlight:
			err = ErrLoginInProgress
		case verr != nil:
			err = verr
		}
	}
	if err != nil {
		c.mu.Unlock()
		c.emit(events)
		return err
	}
	key := c.candidate
	c.inFlight = true
	gen := c.generation
	c.mu.Unlock()
	c.emit(events)

	_, reqErr := c.api.Do(ctx, apiclient.Request{Method: http.MethodPost, Path: pathVerify2FA, Key: key, Body: body})

	c.mu.Lock()
	if c.generation != gen || c.closed {
		c.mu.Unlock()
		return ErrLoginAborted
	}
	c.inFlight = false
	completed := false
	switch {
	case reqErr != nil && errors.Is(reqErr, context.Canceled):
		err = reqErr
	case reqErr != nil:
		events, err = c.failLocked(step, reqErr)
	default:
		events = c.completeLocked(key)
		completed = true
	}
	c.mu.Unlock()
	c.emit(events)

	if completed {
		c.auditAs(key, auditLogin, auditLoginText)
	}
	return err
}

// Resume re-verifies a key remembered by the key store, if any. On failure
// the stored key is forgotten and the controller stays logged out.
func (c *Controller) Resume(ctx context.Context) error {
	key := c.store.Load()
	if key == "" {
		return nil
	}
	if err := c.Authenticate(ctx, key); err != nil {
		c.store.Clear()
		return err
	}
	return nil
}

// =============================================================================
// SESSION END
// =============================================================================

// Logout ends the session. It always succeeds and may be called repeatedly.
// An active lockout survives Logout: the state stays LockedOut and the
// countdown keeps ticking until it expires.
func (c *Controller) Logout() {
	c.mu.Lock()
	prev, key := c.state, c.key
	if prev == LockedOut && c.lockedUntil.After(time.Now()) {
		c.candidate = ""
		c.store.Clear()
		c.mu.Unlock()
		return
	}
	c.stopTickerLocked()
	ev := c.endSessionLocked(ReasonLogout)
	c.mu.Unlock()

	if prev != LoggedOut {
		c.emit([]Event{ev})
	}
	if prev == Authenticated {
		c.auditAs(key, auditLogout, auditLogoutText)
	}
}

// Touch records operator input and slides the idle timer.
func (c *Controller) Touch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Authenticated {
		return
	}
	c.lastActivity = time.Now()
	c.armIdleLocked(c.generation)
}

// Close stops every timer and waits for pending audit requests.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.generation++
	c.stopTimersLocked()
	c.stopTickerLocked()
	c.mu.Unlock()

	c.background.Wait()
	return nil
}

// expire ends the session of generation gen. It is a no-op when that
// session already ended, so concurrent triggers log out exactly once.
func (c *Controller) expire(gen uint64, reason Reason) bool {
	c.mu.Lock()
	if c.generation != gen || c.state != Authenticated {
		c.mu.Unlock()
		return false
	}
	key := c.key
	ev := c.endSessionLocked(reason)
	c.mu.Unlock()

	c.emit([]Event{ev})
	if reason != ReasonUnauthorized {
		c.auditAs(key, auditLogout, reason.Message())
	}
	return true
}

func (c *Controller) expireIdle(gen, seq uint64) {
	c.mu.Lock()
	stale := seq != c.idleSeq
	c.mu.Unlock()
	if stale {
		return
	}
	c.expire(gen, ReasonIdleTimeout)
}

// =============================================================================
// INTERNAL STATE HELPERS (caller holds c.mu)
// =============================================================================

func (c *Controller) setStateLocked(s State, reason Reason) Event {
	prev := c.state
	c.state = s
	if prev != s {
		c.logEvent("STATE_CHANGED",
			zap.Stringer("from", prev),
			zap.Stringer("to", s),
			zap.Stringer("reason", reason))
	}
	return Event{Kind: EventStateChanged, State: s, Reason: reason}
}

func (c *Controller) completeLocked(key string) []Event {
	now := time.Now()
	c.key = key
	c.candidate = ""
	c.failedAttempts = 0
	c.startedAt = now
	c.lastActivity = now
	c.generation++
	gen := c.generation
	c.store.Save(key)

	c.stopTimersLocked()
	c.sessionTimer = time.AfterFunc(c.cfg.SessionTimeout, func() {
		c.expire(gen, ReasonSessionTimeout)
	})
	c.armIdleLocked(gen)

	c.logEvent("SESSION_CREATED",
		zap.String("key", apiclient.Fingerprint(key)),
		zap.Duration("timeout", c.cfg.SessionTimeout),
		zap.Duration("idle_timeout", c.cfg.IdleTimeout))
	return []Event{c.setStateLocked(Authenticated, ReasonNone)}
}

func (c *Controller) armIdleLocked(gen uint64) {
	if c.idleTimer != nil {
		c.idleTimer.Stop()
	}
	c.idleSeq++
	seq := c.idleSeq
	c.idleTimer = time.AfterFunc(c.cfg.IdleTimeout, func() {
		c.expireIdle(gen, seq)
	})
}

func (c *Controller) endSessionLocked(reason Reason) Event {
	if c.state == Authenticated {
		c.logEvent("SESSION_TERMINATED",
			zap.Stringer("reason", reason),
			zap.Duration("duration", time.Since(c.startedAt)))
	}
	c.key = ""
	c.candidate = ""
	c.startedAt = time.Time{}
	c.inFlight = false
	c.generation++
	c.stopTimersLocked()
	c.store.Clear()
	return c.setStateLocked(LoggedOut, reason)
}

func (c *Controller) stopTimersLocked() {
	if c.sessionTimer != nil {
		c.sessionTimer.Stop()
		c.sessionTimer = nil
	}
	if c.idleTimer != nil {
		c.idleTimer.Stop()
		c.idleTimer = nil
	}
	c.idleSeq++
}

// failLocked counts a failed login step and locks out at the limit.
func (c *Controller) failLocked(step Step, cause error) ([]Event, error) {
	c.failedAttempts++
	c.logEvent("AUTH_FAILED",
		zap.Int("step", int(step)),
		zap.Int("attempts", c.failedAttempts),
		zap.Int("max", c.cfg.MaxAttempts),
		zap.Error(cause))

	if c.failedAttempts >= c.cfg.MaxAttempts {
		c.candidate = ""
		c.lockedUntil = time.Now().Add(c.cfg.LockoutDuration)
		ev := c.setStateLocked(LockedOut, ReasonNone)
		ev.Remaining = c.cfg.LockoutDuration
		c.startTickerLocked()
		c.logEvent("LOCKOUT_STARTED", zap.Duration("duration", c.cfg.LockoutDuration))
		return []Event{ev}, &LockedError{Remaining: c.cfg.LockoutDuration}
	}

	var events []Event
	if step == StepKey {
		events = append(events, c.setStateLocked(LoggedOut, ReasonNone))
	}
	return events, &AuthError{Step: step, Attempts: c.failedAttempts, Max: c.cfg.MaxAttempts, Err: cause}
}

// refuseIfLockedLocked returns a LockedError while the lockout is active and
// clears an elapsed lockout.
func (c *Controller) refuseIfLockedLocked(now time.Time) ([]Event, error) {
	if c.lockedUntil.IsZero() {
		return nil, nil
	}
	remaining := c.lockedUntil.Sub(now)
	if remaining <= 0 {
		return c.clearLockoutLocked(), nil
	}
	var events []Event
	if c.state != LockedOut {
		ev := c.setStateLocked(LockedOut, ReasonNone)
		ev.Remaining = remaining
		events = append(events, ev)
	}
	c.startTickerLocked()
	return events, &LockedError{Remaining: remaining}
}

func (c *Controller) clearLockoutLocked() []Event {
	c.stopTickerLocked()
	c.failedAttempts = 0
	c.lockedUntil = time.Time{}
	c.logEvent("LOCKOUT_EXPIRED")
	if c.state == LockedOut {
		return []Event{c.setStateLocked(LoggedOut, ReasonNone)}
	}
	return nil
}

// =============================================================================
// LOCKOUT TICKER
// =============================================================================

func (c *Controller) startTickerLocked() {
	if c.lockStop != nil || c.closed {
		return
	}
	stop := make(chan struct{})
	c.lockStop = stop
	c.background.Add(1)
	go c.runLockoutTicker(stop)
}

func (c *Controller) stopTickerLocked() {
	if c.lockStop != nil {
		close(c.lockStop)
		c.lockStop = nil
	}
}

func (c *Controller) runLockoutTicker(stop chan struct{}) {
	defer c.background.Done()
	t := time.NewTicker(c.cfg.LockoutTick)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case now := <-t.C:
			if c.lockoutTick(now, stop) {
				return
			}
		}
	}
}

// lockoutTick publishes the countdown and reports whether the ticker is done.
func (c *Controller) lockoutTick(now time.Time, stop chan struct{}) bool {
	c.mu.Lock()
	if c.lockStop != stop {
		c.mu.Unlock()
		return true
	}
	var events []Event
	done := false
	remaining := c.lockedUntil.Sub(now)
	switch {
	case remaining <= 0:
		events = c.clearLockoutLocked()
		done = true
	case c.state == LockedOut:
		events = []Event{{Kind: EventLockoutTick, State: LockedOut, Remaining: remaining}}
	}
	c.mu.Unlock()
	c.emit(events)
	return done
}

// =============================================================================
// EVENTS & LOGGING
// =============================================================================

func (c *Controller) emit(events []Event) {
	if len(events) == 0 {
		return
	}
	c.mu.Lock()
	ls := make([]listener, len(c.listeners))
	copy(ls, c.listeners)
	c.mu.Unlock()

	for _, ev := range events {
		for _, l := range ls {
			l.fn(ev)
		}
	}
}

func (c *Controller) logEvent(event string, fields ...zap.Field) {
	c.logger.Info(event, append([]zap.Field{zap.String("component", "session")}, fields...)...)
}

func clampZero(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}
