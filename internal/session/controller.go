// Package session owns the client's authentication state. A single Controller
// instance is the only writer of the session; every surface that cares about
// auth subscribes to it instead of keeping its own flags.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/EmerBV/figrclub-sub001/internal/core/domain"
	"github.com/EmerBV/figrclub-sub001/internal/core/port"
	"github.com/EmerBV/figrclub-sub001/internal/infra/logger"
	"github.com/EmerBV/figrclub-sub001/internal/infra/telemetry"
	"github.com/EmerBV/figrclub-sub001/internal/validate"
)

const (
	defaultBootstrapTimeout = 5 * time.Second
	defaultOperationTimeout = 15 * time.Second
	defaultRefreshLeeway    = 2 * time.Minute
)

var (
	// ErrBusy indicates the requested operation is not valid in the current
	// session phase, typically because another operation is in flight.
	ErrBusy = errors.New("session operation not valid in current state")
	// ErrSuperseded indicates the operation completed after the session moved
	// on (e.g. a login finishing after logout); its result was discarded.
	ErrSuperseded = errors.New("session operation superseded")
	// ErrClosed indicates the controller has been shut down.
	ErrClosed = errors.New("session controller closed")
)

// Controller is the authentication session state machine. All dependencies
// arrive through the constructor; nothing is resolved ambiently.
type Controller struct {
	api   port.AuthAPI
	store port.TokenStore
	forms *validate.FormValidator
	log   *zap.Logger
	rec   telemetry.Recorder

	bootstrapTimeout time.Duration
	opTimeout        time.Duration
	refreshLeeway    time.Duration

	mu sync.Mutex
	// storeMu serializes token store writes in the order their state
	// decisions were made under mu, without holding mu across the I/O.
	storeMu      sync.Mutex
	snap         domain.Snapshot
	tokens       domain.TokenPair
	pendingEmail string
	epoch        uint64
	cancels      map[uint64]context.CancelFunc
	nextCancelID uint64
	bootstrapped bool
	closed       bool

	dispatch *dispatcher
}

// Option configures optional Controller behaviour.
type Option func(*Controller)

// WithBootstrapTimeout bounds CheckInitialSession.
func WithBootstrapTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.bootstrapTimeout = d
		}
	}
}

// WithOperationTimeout bounds login, register, logout, and refresh calls.
func WithOperationTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.opTimeout = d
		}
	}
}

// WithRefreshLeeway sets how close to expiry the access token may get before
// RefreshIfNeeded rotates it.
func WithRefreshLeeway(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.refreshLeeway = d
		}
	}
}

// WithRecorder attaches instrumentation.
func WithRecorder(rec telemetry.Recorder) Option {
	return func(c *Controller) {
		if rec != nil {
			c.rec = rec
		}
	}
}

// NewController constructs the session controller in the Loading phase.
func NewController(api port.AuthAPI, store port.TokenStore, forms *validate.FormValidator, log *zap.Logger, opts ...Option) (*Controller, error) {
	if api == nil {
		return nil, fmt.Errorf("auth api is required")
	}
	if store == nil {
		return nil, fmt.Errorf("token store is required")
	}
	if forms == nil {
		forms = validate.NewFormValidator(nil)
	}
	if log == nil {
		log = zap.NewNop()
	}

	c := &Controller{
		api:              api,
		store:            store,
		forms:            forms,
		log:              log,
		rec:              telemetry.NopRecorder{},
		bootstrapTimeout: defaultBootstrapTimeout,
		opTimeout:        defaultOperationTimeout,
		refreshLeeway:    defaultRefreshLeeway,
		snap:             domain.Snapshot{Phase: domain.PhaseLoading, At: time.Now().UTC()},
		cancels:          map[uint64]context.CancelFunc{},
		dispatch:         newDispatcher(),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	return c, nil
}

// Current returns the latest session snapshot.
func (c *Controller) Current() domain.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap
}

// Subscribe returns an ordered stream of session snapshots, primed with the
// current one, plus an unsubscribe func. No intermediate transition is ever
// skipped or reordered.
func (c *Controller) Subscribe() (<-chan domain.Snapshot, func()) {
	c.mu.Lock()
	current := c.snap
	c.mu.Unlock()
	return c.dispatch.subscribe(current)
}

// Close cancels in-flight operations and stops snapshot delivery. The
// controller is unusable afterwards.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.supersedeLocked()
	c.mu.Unlock()

	c.dispatch.shutdown()
}

// CheckInitialSession resolves the stored session once at startup. It always
// lands in Authenticated or Unauthenticated within the bootstrap timeout;
// failures degrade silently to Unauthenticated because "not signed in" is a
// normal state, not a fault. Subsequent calls are no-ops.
func (c *Controller) CheckInitialSession(ctx context.Context) domain.Snapshot {
	c.mu.Lock()
	if c.closed || c.bootstrapped || c.snap.Phase != domain.PhaseLoading {
		snap := c.snap
		c.mu.Unlock()
		return snap
	}
	c.bootstrapped = true
	opCtx, epoch, done := c.beginOpLocked(ctx, c.bootstrapTimeout)
	c.mu.Unlock()
	defer done()

	started := time.Now()
	defer func() { c.rec.OperationDuration("check_initial_session", time.Since(started)) }()

	stored, err := c.store.Load(opCtx)
	if err != nil {
		if !errors.Is(err, port.ErrNoStoredSession) {
			c.log.Warn("token store unreadable, starting unauthenticated", zap.Error(err))
		}
		return c.applySnapshot(epoch, domain.PhaseUnauthenticated, nil, "")
	}

	result, err := c.api.Refresh(opCtx, stored.RefreshToken)
	if err != nil {
		category := port.ErrorCategory(err)
		c.rec.Failure("check_initial_session", category)
		if errors.Is(err, port.ErrSessionExpired) {
			// The stored session is definitively dead; forget it.
			c.storeMu.Lock()
			if clearErr := c.store.Clear(context.WithoutCancel(opCtx)); clearErr != nil {
				c.log.Warn("clear expired session", zap.Error(clearErr))
			}
			c.storeMu.Unlock()
		} else {
			// Timeout, network, server: keep the tokens for a later attempt
			// but do not hold the UI hostage.
			c.log.Info("initial session check failed, degrading to unauthenticated",
				zap.String("category", category))
		}
		return c.applySnapshot(epoch, domain.PhaseUnauthenticated, nil, "")
	}

	snap, _ := c.applyAuthenticated(epoch, "check_initial_session", result)
	return snap
}

// Login validates the credentials locally, then exchanges them for a session.
// Local validation failures return a validate.FieldErrors without any network
// call and leave the state untouched. Server rejections leave the session
// Unauthenticated; the typed error is the caller's to render inline.
func (c *Controller) Login(ctx context.Context, creds domain.Credentials) (domain.User, error) {
	if errs := c.forms.Login(creds); !errs.CanSubmit() {
		c.rec.Failure("login", "local_validation")
		return domain.User{}, errs
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return domain.User{}, ErrClosed
	}
	if c.snap.Phase == domain.PhaseErrored {
		c.transitionLocked(domain.PhaseUnauthenticated, nil, "")
	}
	if c.snap.Phase != domain.PhaseUnauthenticated {
		c.mu.Unlock()
		return domain.User{}, ErrBusy
	}
	opCtx, epoch, done := c.beginOpLocked(ctx, c.opTimeout)
	c.mu.Unlock()
	defer done()

	started := time.Now()
	defer func() { c.rec.OperationDuration("login", time.Since(started)) }()

	result, err := c.api.Login(opCtx, creds)
	if err != nil {
		c.rec.Failure("login", port.ErrorCategory(err))
		c.log.Debug("login rejected",
			zap.String("email", logger.MaskEmail(creds.Email)),
			zap.String("category", port.ErrorCategory(err)))
		return domain.User{}, err
	}

	if _, applied := c.applyAuthenticated(epoch, "login", result); !applied {
		return domain.User{}, ErrSuperseded
	}

	c.log.Info("logged in", zap.String("email", logger.MaskEmail(result.User.Email)))
	return result.User, nil
}

// Register validates the full form locally, then creates the account. The
// outcome is either an immediately authenticated session or an explicit
// EmailVerificationPending phase; it is never a silent fall back to
// Unauthenticated.
func (c *Controller) Register(ctx context.Context, form domain.RegistrationForm) (domain.User, error) {
	if errs := c.forms.Registration(form); !errs.CanSubmit() {
		c.rec.Failure("register", "local_validation")
		return domain.User{}, errs
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return domain.User{}, ErrClosed
	}
	if c.snap.Phase != domain.PhaseUnauthenticated {
		c.mu.Unlock()
		return domain.User{}, ErrBusy
	}
	opCtx, epoch, done := c.beginOpLocked(ctx, c.opTimeout)
	c.mu.Unlock()
	defer done()

	started := time.Now()
	defer func() { c.rec.OperationDuration("register", time.Since(started)) }()

	result, err := c.api.Register(opCtx, form)
	if err != nil {
		c.rec.Failure("register", port.ErrorCategory(err))
		return domain.User{}, err
	}

	if result.VerificationRequired {
		user := result.User
		if applied := c.applyPending(epoch, form.Email, user); !applied {
			return domain.User{}, ErrSuperseded
		}
		c.log.Info("registered, verification pending",
			zap.String("email", logger.MaskEmail(form.Email)))
		return user, nil
	}

	if _, applied := c.applyAuthenticated(epoch, "register", result); !applied {
		return domain.User{}, ErrSuperseded
	}

	c.log.Info("registered", zap.String("email", logger.MaskEmail(form.Email)))
	return result.User, nil
}

// VerifyEmail redeems the emailed confirmation code and completes sign-in.
// Only valid while the session is EmailVerificationPending.
func (c *Controller) VerifyEmail(ctx context.Context, code string) (domain.User, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return domain.User{}, ErrClosed
	}
	if c.snap.Phase != domain.PhaseEmailVerificationPending {
		c.mu.Unlock()
		return domain.User{}, ErrBusy
	}
	email := c.pendingEmail
	opCtx, epoch, done := c.beginOpLocked(ctx, c.opTimeout)
	c.mu.Unlock()
	defer done()

	started := time.Now()
	defer func() { c.rec.OperationDuration("verify_email", time.Since(started)) }()

	result, err := c.api.VerifyEmail(opCtx, email, code)
	if err != nil {
		c.rec.Failure("verify_email", port.ErrorCategory(err))
		return domain.User{}, err
	}

	if _, applied := c.applyAuthenticated(epoch, "verify_email", result); !applied {
		return domain.User{}, ErrSuperseded
	}

	return result.User, nil
}

// Logout ends the session: Authenticated -> LoggingOut -> Unauthenticated,
// clearing stored tokens exactly once and revoking server-side on a best
// effort basis. It is idempotent and supersedes any in-flight operation, so a
// login completing afterwards cannot resurrect the session.
func (c *Controller) Logout(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}

	switch c.snap.Phase {
	case domain.PhaseLoggingOut:
		// A logout is already in flight; let it finish.
		c.mu.Unlock()
		return nil
	case domain.PhaseUnauthenticated:
		// No session to end, but a pending login or register must not be
		// allowed to resurrect one after the user asked to be signed out.
		c.supersedeLocked()
		c.mu.Unlock()
		return nil
	case domain.PhaseLoading, domain.PhaseErrored:
		c.supersedeLocked()
		c.transitionLocked(domain.PhaseUnauthenticated, nil, "")
		c.mu.Unlock()
		return nil
	case domain.PhaseEmailVerificationPending:
		c.supersedeLocked()
		c.pendingEmail = ""
		c.transitionLocked(domain.PhaseUnauthenticated, nil, "")
		c.mu.Unlock()
		return nil
	}

	// Authenticated: run the two-step logout.
	c.supersedeLocked()
	tokens := c.tokens
	c.tokens = domain.TokenPair{}
	c.transitionLocked(domain.PhaseLoggingOut, nil, "")
	opCtx, epoch, done := c.beginOpLocked(ctx, c.opTimeout)
	c.mu.Unlock()
	defer done()

	started := time.Now()
	defer func() { c.rec.OperationDuration("logout", time.Since(started)) }()

	c.storeMu.Lock()
	if err := c.store.Clear(context.WithoutCancel(opCtx)); err != nil {
		c.log.Warn("clear token store", zap.Error(err))
	}
	c.storeMu.Unlock()

	if tokens.AccessToken != "" {
		if err := c.api.Logout(opCtx, tokens.AccessToken); err != nil {
			// Server-side revocation is best effort; the local session ends
			// regardless.
			c.rec.Failure("logout", port.ErrorCategory(err))
			c.log.Debug("server logout failed", zap.String("category", port.ErrorCategory(err)))
		}
	}

	c.applySnapshot(epoch, domain.PhaseUnauthenticated, nil, "")
	c.log.Info("logged out")
	return nil
}

// RefreshIfNeeded rotates the session tokens when the access token is within
// the refresh leeway of expiry. A rejected refresh forces the session to
// Unauthenticated so dependent surfaces reroute to the auth flow; transient
// failures leave the session untouched.
func (c *Controller) RefreshIfNeeded(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.snap.Phase != domain.PhaseAuthenticated || c.tokens.Empty() {
		c.mu.Unlock()
		return nil
	}
	if expiry, ok := accessTokenExpiry(c.tokens.AccessToken); ok {
		if time.Until(expiry) > c.refreshLeeway {
			c.mu.Unlock()
			return nil
		}
	}
	refreshToken := c.tokens.RefreshToken
	opCtx, epoch, done := c.beginOpLocked(ctx, c.opTimeout)
	c.mu.Unlock()
	defer done()

	started := time.Now()
	defer func() { c.rec.OperationDuration("refresh", time.Since(started)) }()

	result, err := c.api.Refresh(opCtx, refreshToken)
	if err != nil {
		c.rec.Failure("refresh", port.ErrorCategory(err))
		if errors.Is(err, port.ErrSessionExpired) {
			c.forceUnauthenticated(epoch)
			return port.ErrSessionExpired
		}
		c.log.Debug("refresh failed, keeping session",
			zap.String("category", port.ErrorCategory(err)))
		return err
	}

	// A discarded refresh result is not an error; whatever superseded it
	// owns the session now.
	c.applyAuthenticated(epoch, "refresh", result)
	return nil
}

// beginOpLocked derives a cancellable, deadline-bounded context for an
// operation and captures the current epoch. The returned cleanup must run
// when the operation finishes. Callers hold c.mu.
func (c *Controller) beginOpLocked(ctx context.Context, timeout time.Duration) (context.Context, uint64, func()) {
	opCtx, cancel := context.WithTimeout(ctx, timeout)
	id := c.nextCancelID
	c.nextCancelID++
	c.cancels[id] = cancel
	epoch := c.epoch

	done := func() {
		c.mu.Lock()
		delete(c.cancels, id)
		c.mu.Unlock()
		cancel()
	}
	return opCtx, epoch, done
}

// supersedeLocked invalidates every in-flight operation: their contexts are
// cancelled and their eventual results will fail the epoch check.
func (c *Controller) supersedeLocked() {
	c.epoch++
	for id, cancel := range c.cancels {
		cancel()
		delete(c.cancels, id)
	}
}

// applyAuthenticated persists the tokens and transitions to Authenticated,
// unless the operation has been superseded in the meantime. The boolean
// reports whether the result was applied; a discarded result must not be
// presented to the caller as a success.
func (c *Controller) applyAuthenticated(epoch uint64, op string, result port.AuthResult) (domain.Snapshot, bool) {
	c.mu.Lock()

	if c.closed || epoch != c.epoch {
		snap := c.snap
		c.mu.Unlock()
		c.log.Debug("discarding stale result", zap.String("operation", op))
		return snap, false
	}

	persist := !result.Tokens.Empty()
	if persist {
		c.tokens = result.Tokens
		// Taken under mu so store writes land in decision order.
		c.storeMu.Lock()
	}

	user := result.User
	c.pendingEmail = ""
	if c.snap.Phase == domain.PhaseAuthenticated {
		// Same-phase refresh: replace the user wholesale without a phase
		// transition, but still publish so observers see the new record, and
		// still advance the epoch so sibling results become stale.
		c.epoch++
		c.snap = domain.Snapshot{Phase: domain.PhaseAuthenticated, User: &user, At: time.Now().UTC()}
		c.dispatch.publish(c.snap)
	} else {
		c.transitionLocked(domain.PhaseAuthenticated, &user, "")
	}
	snap := c.snap
	c.mu.Unlock()

	if persist {
		if err := c.store.Save(context.Background(), result.Tokens); err != nil {
			c.log.Warn("persist tokens", zap.Error(err))
		}
		c.storeMu.Unlock()
	}

	return snap, true
}

// applyPending moves to EmailVerificationPending for the given address.
func (c *Controller) applyPending(epoch uint64, email string, user domain.User) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || epoch != c.epoch {
		return false
	}

	c.pendingEmail = email
	c.transitionLocked(domain.PhaseEmailVerificationPending, &user, "")
	return true
}

// applySnapshot transitions to the given phase if the epoch still matches.
func (c *Controller) applySnapshot(epoch uint64, phase domain.Phase, user *domain.User, msg string) domain.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || epoch != c.epoch {
		return c.snap
	}

	c.transitionLocked(phase, user, msg)
	return c.snap
}

// forceUnauthenticated drops a dead session: tokens cleared, state rerouted.
func (c *Controller) forceUnauthenticated(epoch uint64) {
	c.mu.Lock()
	if c.closed || epoch != c.epoch {
		c.mu.Unlock()
		return
	}

	c.tokens = domain.TokenPair{}
	c.storeMu.Lock()
	c.transitionLocked(domain.PhaseUnauthenticated, nil, "")
	c.mu.Unlock()

	if err := c.store.Clear(context.Background()); err != nil {
		c.log.Warn("clear token store", zap.Error(err))
	}
	c.storeMu.Unlock()
}

// transitionLocked performs a checked state change and publishes the new
// snapshot. Callers hold c.mu.
func (c *Controller) transitionLocked(next domain.Phase, user *domain.User, msg string) {
	from := c.snap.Phase
	if from == next {
		return
	}
	if !from.CanTransition(next) {
		// The transition table is the contract; a violation is a programming
		// error worth surfacing loudly in logs rather than corrupting state.
		c.log.Error("illegal session transition dropped",
			zap.String("from", string(from)), zap.String("to", string(next)))
		return
	}

	if !next.CarriesUser() {
		user = nil
	}
	if next != domain.PhaseErrored {
		msg = ""
	}

	// Every phase change invalidates results still in flight: an operation
	// that raced past the same entry gate must not apply over newer state.
	c.epoch++
	c.snap = domain.Snapshot{Phase: next, User: user, Message: msg, At: time.Now().UTC()}
	c.rec.Transition(from, next)
	c.dispatch.publish(c.snap)
}

// accessTokenExpiry peeks at the JWT exp claim without verifying the
// signature; the client has no verification key and only needs the deadline.
func accessTokenExpiry(token string) (time.Time, bool) {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}
