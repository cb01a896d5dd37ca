package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap/zaptest"

	"github.com/EmerBV/figrclub-sub001/internal/core/domain"
	"github.com/EmerBV/figrclub-sub001/internal/core/port"
	"github.com/EmerBV/figrclub-sub001/internal/validate"
)

type stubAPI struct {
	mu sync.Mutex

	loginFn    func(ctx context.Context, creds domain.Credentials) (port.AuthResult, error)
	registerFn func(ctx context.Context, form domain.RegistrationForm) (port.AuthResult, error)
	verifyFn   func(ctx context.Context, email, code string) (port.AuthResult, error)
	refreshFn  func(ctx context.Context, refreshToken string) (port.AuthResult, error)
	logoutFn   func(ctx context.Context, accessToken string) error

	loginCalls   int
	refreshCalls int
	logoutCalls  int
}

func (s *stubAPI) Login(ctx context.Context, creds domain.Credentials) (port.AuthResult, error) {
	s.mu.Lock()
	s.loginCalls++
	fn := s.loginFn
	s.mu.Unlock()
	if fn == nil {
		return port.AuthResult{}, errors.New("unexpected call: Login")
	}
	return fn(ctx, creds)
}

func (s *stubAPI) Register(ctx context.Context, form domain.RegistrationForm) (port.AuthResult, error) {
	if s.registerFn == nil {
		return port.AuthResult{}, errors.New("unexpected call: Register")
	}
	return s.registerFn(ctx, form)
}

func (s *stubAPI) VerifyEmail(ctx context.Context, email, code string) (port.AuthResult, error) {
	if s.verifyFn == nil {
		return port.AuthResult{}, errors.New("unexpected call: VerifyEmail")
	}
	return s.verifyFn(ctx, email, code)
}

func (s *stubAPI) Refresh(ctx context.Context, refreshToken string) (port.AuthResult, error) {
	s.mu.Lock()
	s.refreshCalls++
	fn := s.refreshFn
	s.mu.Unlock()
	if fn == nil {
		return port.AuthResult{}, errors.New("unexpected call: Refresh")
	}
	return fn(ctx, refreshToken)
}

func (s *stubAPI) Logout(ctx context.Context, accessToken string) error {
	s.mu.Lock()
	s.logoutCalls++
	fn := s.logoutFn
	s.mu.Unlock()
	if fn == nil {
		return nil
	}
	return fn(ctx, accessToken)
}

func (s *stubAPI) CurrentUser(context.Context, string) (*domain.User, error) {
	return nil, errors.New("unexpected call: CurrentUser")
}

func (s *stubAPI) counts() (login, refresh, logout int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loginCalls, s.refreshCalls, s.logoutCalls
}

type stubStore struct {
	mu         sync.Mutex
	tokens     domain.TokenPair
	held       bool
	saveCalls  int
	clearCalls int
	loadErr    error
	saveFn     func(domain.TokenPair)
}

func (s *stubStore) Load(context.Context) (domain.TokenPair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return domain.TokenPair{}, s.loadErr
	}
	if !s.held {
		return domain.TokenPair{}, port.ErrNoStoredSession
	}
	return s.tokens, nil
}

func (s *stubStore) Save(_ context.Context, tokens domain.TokenPair) error {
	s.mu.Lock()
	s.saveCalls++
	s.tokens = tokens
	s.held = true
	hook := s.saveFn
	s.mu.Unlock()
	if hook != nil {
		hook(tokens)
	}
	return nil
}

func (s *stubStore) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearCalls++
	s.tokens = domain.TokenPair{}
	s.held = false
	return nil
}

func (s *stubStore) counts() (saves, clears int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveCalls, s.clearCalls
}

func (s *stubStore) stored() domain.TokenPair {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokens
}

var testUser = domain.User{
	ID:          "user-1",
	Username:    "collector",
	DisplayName: "The Collector",
	Email:       "collector@example.com",
}

func okResult() port.AuthResult {
	return port.AuthResult{
		User: testUser,
		Tokens: domain.TokenPair{
			AccessToken:  "access-token",
			RefreshToken: "refresh-token",
			ObtainedAt:   time.Now().UTC(),
		},
	}
}

func newTestController(t *testing.T, api *stubAPI, store *stubStore, opts ...Option) *Controller {
	t.Helper()
	c, err := NewController(api, store, validate.NewFormValidator(nil), zaptest.NewLogger(t), opts...)
	if err != nil {
		t.Fatalf("new controller: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

// newUnauthenticated builds a controller already past the bootstrap check.
func newUnauthenticated(t *testing.T, api *stubAPI, store *stubStore, opts ...Option) *Controller {
	t.Helper()
	c := newTestController(t, api, store, opts...)
	snap := c.CheckInitialSession(context.Background())
	if snap.Phase != domain.PhaseUnauthenticated {
		t.Fatalf("expected unauthenticated after bootstrap, got %s", snap.Phase)
	}
	return c
}

func authenticate(t *testing.T, c *Controller, api *stubAPI) {
	t.Helper()
	api.mu.Lock()
	api.loginFn = func(context.Context, domain.Credentials) (port.AuthResult, error) {
		return okResult(), nil
	}
	api.mu.Unlock()

	if _, err := c.Login(context.Background(), domain.Credentials{Email: "collector@example.com", Password: "Tr4ding!cards"}); err != nil {
		t.Fatalf("login: %v", err)
	}
}

func waitForPhase(t *testing.T, c *Controller, phase domain.Phase) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.Current().Phase == phase {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for phase %s, at %s", phase, c.Current().Phase)
}

func TestLoginLocalValidationSkipsNetwork(t *testing.T) {
	api := &stubAPI{}
	store := &stubStore{}
	c := newUnauthenticated(t, api, store)

	_, err := c.Login(context.Background(), domain.Credentials{Email: "notanemail", Password: "x"})
	if err == nil {
		t.Fatal("expected validation error")
	}

	var fields validate.FieldErrors
	if !errors.As(err, &fields) {
		t.Fatalf("expected FieldErrors, got %T", err)
	}
	if fields[validate.FieldEmail].Valid {
		t.Fatal("expected email field to be invalid")
	}

	if logins, _, _ := api.counts(); logins != 0 {
		t.Fatalf("expected no network call, got %d", logins)
	}
	if got := c.Current().Phase; got != domain.PhaseUnauthenticated {
		t.Fatalf("state changed to %s", got)
	}
}

func TestLoginSuccessAuthenticatesWithServerUser(t *testing.T) {
	api := &stubAPI{loginFn: func(context.Context, domain.Credentials) (port.AuthResult, error) {
		return okResult(), nil
	}}
	store := &stubStore{}
	c := newUnauthenticated(t, api, store)

	user, err := c.Login(context.Background(), domain.Credentials{Email: "collector@example.com", Password: "Tr4ding!cards"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if user != testUser {
		t.Fatalf("returned user %+v differs from server user", user)
	}

	snap := c.Current()
	if !snap.Authenticated() {
		t.Fatalf("expected authenticated snapshot, got %s", snap.Phase)
	}
	if *snap.User != testUser {
		t.Fatalf("snapshot user %+v differs from server user", *snap.User)
	}

	if saves, _ := store.counts(); saves != 1 {
		t.Fatalf("expected tokens persisted once, got %d saves", saves)
	}
}

func TestLoginInvalidCredentialsLeavesUnauthenticated(t *testing.T) {
	api := &stubAPI{loginFn: func(context.Context, domain.Credentials) (port.AuthResult, error) {
		return port.AuthResult{}, fmt.Errorf("%w: bad password", port.ErrInvalidCredentials)
	}}
	store := &stubStore{}
	c := newUnauthenticated(t, api, store)

	_, err := c.Login(context.Background(), domain.Credentials{Email: "collector@example.com", Password: "Wrong!pass1"})
	if !errors.Is(err, port.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	if got := c.Current().Phase; got != domain.PhaseUnauthenticated {
		t.Fatalf("expected unauthenticated, got %s", got)
	}
	if saves, _ := store.counts(); saves != 0 {
		t.Fatalf("expected no token save, got %d", saves)
	}
}

func TestSlowerLoginResultIsDiscarded(t *testing.T) {
	users := []domain.User{
		{ID: "user-slow", Username: "slow", Email: "slow@example.com"},
		{ID: "user-fast", Username: "fast", Email: "fast@example.com"},
	}
	started := make(chan struct{}, 2)
	gates := [2]chan struct{}{make(chan struct{}), make(chan struct{})}
	var calls int32
	api := &stubAPI{loginFn: func(context.Context, domain.Credentials) (port.AuthResult, error) {
		idx := int(atomic.AddInt32(&calls, 1)) - 1
		started <- struct{}{}
		<-gates[idx]
		return port.AuthResult{User: users[idx], Tokens: domain.TokenPair{
			AccessToken:  "at-" + users[idx].ID,
			RefreshToken: "rt-" + users[idx].ID,
			ObtainedAt:   time.Now().UTC(),
		}}, nil
	}}
	store := &stubStore{}
	c := newUnauthenticated(t, api, store)

	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := c.Login(context.Background(), domain.Credentials{Email: "collector@example.com", Password: "Tr4ding!cards"})
			errs <- err
		}()
	}

	// Both attempts are in flight before either result lands.
	<-started
	<-started

	// The second attempt finishes first and owns the session; the first
	// finishes later and must be discarded, not applied over it.
	close(gates[1])
	waitForPhase(t, c, domain.PhaseAuthenticated)
	close(gates[0])

	var failed []error
	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil {
			failed = append(failed, err)
		}
	}
	if len(failed) != 1 || !errors.Is(failed[0], ErrSuperseded) {
		t.Fatalf("expected exactly one superseded login, got %v", failed)
	}

	snap := c.Current()
	if snap.User == nil || snap.User.ID != users[1].ID {
		t.Fatalf("slower result overwrote the session: %+v", snap.User)
	}
	if saves, _ := store.counts(); saves != 1 {
		t.Fatalf("expected one token save, got %d", saves)
	}
	if got := store.stored().AccessToken; got != "at-user-fast" {
		t.Fatalf("stored tokens %q do not belong to the winning login", got)
	}
}

func TestTokenPersistenceDoesNotBlockReads(t *testing.T) {
	saveEntered := make(chan struct{})
	release := make(chan struct{})
	store := &stubStore{saveFn: func(domain.TokenPair) {
		close(saveEntered)
		<-release
	}}
	api := &stubAPI{loginFn: func(context.Context, domain.Credentials) (port.AuthResult, error) {
		return okResult(), nil
	}}
	c := newUnauthenticated(t, api, store)

	done := make(chan error, 1)
	go func() {
		_, err := c.Login(context.Background(), domain.Credentials{Email: "collector@example.com", Password: "Tr4ding!cards"})
		done <- err
	}()

	<-saveEntered

	// State reads must not wait for the keystore write.
	got := make(chan domain.Snapshot, 1)
	go func() { got <- c.Current() }()
	select {
	case snap := <-got:
		if !snap.Authenticated() {
			t.Fatalf("expected authenticated snapshot during persistence, got %s", snap.Phase)
		}
	case <-time.After(time.Second):
		t.Fatal("Current blocked behind token persistence")
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("login: %v", err)
	}
}

func TestLogoutIsIdempotent(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	api := &stubAPI{logoutFn: func(ctx context.Context, _ string) error {
		close(entered)
		<-release
		return nil
	}}
	store := &stubStore{}
	c := newUnauthenticated(t, api, store)
	authenticate(t, c, api)

	snapshots, unsubscribe := c.Subscribe()
	defer unsubscribe()

	done := make(chan error, 1)
	go func() { done <- c.Logout(context.Background()) }()

	<-entered
	// Second logout while the first is still in LoggingOut must be a no-op.
	if err := c.Logout(context.Background()); err != nil {
		t.Fatalf("second logout: %v", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first logout: %v", err)
	}

	waitForPhase(t, c, domain.PhaseUnauthenticated)

	if _, clears := store.counts(); clears != 1 {
		t.Fatalf("expected exactly one store clear, got %d", clears)
	}

	// The observer must see a single logout sequence, not two.
	expected := []domain.Phase{
		domain.PhaseAuthenticated, // primer
		domain.PhaseLoggingOut,
		domain.PhaseUnauthenticated,
	}
	for i, want := range expected {
		select {
		case snap := <-snapshots:
			if snap.Phase != want {
				t.Fatalf("snapshot %d: expected %s, got %s", i, want, snap.Phase)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for snapshot %d (%s)", i, want)
		}
	}
	select {
	case snap := <-snapshots:
		t.Fatalf("unexpected extra snapshot %s", snap.Phase)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestLogoutDiscardsInFlightLogin(t *testing.T) {
	loginStarted := make(chan struct{})
	release := make(chan struct{})
	api := &stubAPI{loginFn: func(ctx context.Context, _ domain.Credentials) (port.AuthResult, error) {
		close(loginStarted)
		<-release
		return okResult(), nil
	}}
	store := &stubStore{}
	c := newUnauthenticated(t, api, store)

	done := make(chan error, 1)
	go func() {
		_, err := c.Login(context.Background(), domain.Credentials{Email: "collector@example.com", Password: "Tr4ding!cards"})
		done <- err
	}()

	<-loginStarted
	if err := c.Logout(context.Background()); err != nil {
		t.Fatalf("logout: %v", err)
	}
	close(release)

	if err := <-done; !errors.Is(err, ErrSuperseded) {
		t.Fatalf("expected ErrSuperseded, got %v", err)
	}

	if got := c.Current().Phase; got != domain.PhaseUnauthenticated {
		t.Fatalf("stale login resurrected session: %s", got)
	}
	if saves, _ := store.counts(); saves != 0 {
		t.Fatalf("stale tokens persisted: %d saves", saves)
	}
}

func TestCheckInitialSessionTimesOutToUnauthenticated(t *testing.T) {
	store := &stubStore{tokens: domain.TokenPair{AccessToken: "a", RefreshToken: "r"}, held: true}
	api := &stubAPI{refreshFn: func(ctx context.Context, _ string) (port.AuthResult, error) {
		<-ctx.Done()
		return port.AuthResult{}, fmt.Errorf("%w: %v", port.ErrNetwork, ctx.Err())
	}}
	c := newTestController(t, api, store, WithBootstrapTimeout(30*time.Millisecond))

	start := time.Now()
	snap := c.CheckInitialSession(context.Background())
	if snap.Phase != domain.PhaseUnauthenticated {
		t.Fatalf("expected unauthenticated after timeout, got %s", snap.Phase)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("bootstrap took %s, timeout not enforced", elapsed)
	}
}

func TestCheckInitialSessionRestoresStoredSession(t *testing.T) {
	store := &stubStore{tokens: domain.TokenPair{AccessToken: "a", RefreshToken: "r"}, held: true}
	api := &stubAPI{refreshFn: func(_ context.Context, refreshToken string) (port.AuthResult, error) {
		if refreshToken != "r" {
			return port.AuthResult{}, fmt.Errorf("%w: unknown token", port.ErrSessionExpired)
		}
		return okResult(), nil
	}}
	c := newTestController(t, api, store)

	snap := c.CheckInitialSession(context.Background())
	if !snap.Authenticated() {
		t.Fatalf("expected authenticated, got %s", snap.Phase)
	}
	if snap.User.ID != testUser.ID {
		t.Fatalf("unexpected user %+v", snap.User)
	}
}

func TestCheckInitialSessionIsOneShot(t *testing.T) {
	api := &stubAPI{}
	store := &stubStore{}
	c := newUnauthenticated(t, api, store)
	authenticate(t, c, api)

	snap := c.CheckInitialSession(context.Background())
	if !snap.Authenticated() {
		t.Fatalf("second bootstrap disturbed the session: %s", snap.Phase)
	}
}

func TestRegisterVerificationRoundTrip(t *testing.T) {
	api := &stubAPI{
		registerFn: func(_ context.Context, form domain.RegistrationForm) (port.AuthResult, error) {
			return port.AuthResult{User: testUser, VerificationRequired: true}, nil
		},
		verifyFn: func(_ context.Context, email, code string) (port.AuthResult, error) {
			if email != "collector@example.com" || code != "123456" {
				return port.AuthResult{}, fmt.Errorf("%w: bad code", port.ErrValidationRejected)
			}
			return okResult(), nil
		},
	}
	store := &stubStore{}
	c := newUnauthenticated(t, api, store)

	snapshots, unsubscribe := c.Subscribe()
	defer unsubscribe()

	now := time.Now().UTC()
	form := domain.RegistrationForm{
		Email:           "collector@example.com",
		Username:        "collector",
		Password:        "Tr4ding!cards",
		PasswordConfirm: "Tr4ding!cards",
		Consents: []domain.Consent{
			{Kind: domain.ConsentTerms, Accepted: true, AcceptedAt: now},
			{Kind: domain.ConsentPrivacy, Accepted: true, AcceptedAt: now},
		},
	}

	if _, err := c.Register(context.Background(), form); err != nil {
		t.Fatalf("register: %v", err)
	}
	if got := c.Current().Phase; got != domain.PhaseEmailVerificationPending {
		t.Fatalf("expected verification pending, got %s", got)
	}

	if _, err := c.VerifyEmail(context.Background(), "123456"); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !c.Current().Authenticated() {
		t.Fatalf("expected authenticated after verification, got %s", c.Current().Phase)
	}

	// The observed sequence must never silently pass through Unauthenticated.
	expected := []domain.Phase{
		domain.PhaseUnauthenticated, // primer
		domain.PhaseEmailVerificationPending,
		domain.PhaseAuthenticated,
	}
	for i, want := range expected {
		select {
		case snap := <-snapshots:
			if snap.Phase != want {
				t.Fatalf("snapshot %d: expected %s, got %s", i, want, snap.Phase)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for snapshot %d (%s)", i, want)
		}
	}
}

func TestRegisterRejectsMissingConsents(t *testing.T) {
	api := &stubAPI{}
	store := &stubStore{}
	c := newUnauthenticated(t, api, store)

	form := domain.RegistrationForm{
		Email:           "collector@example.com",
		Username:        "collector",
		Password:        "Tr4ding!cards",
		PasswordConfirm: "Tr4ding!cards",
	}

	_, err := c.Register(context.Background(), form)
	var fields validate.FieldErrors
	if !errors.As(err, &fields) {
		t.Fatalf("expected FieldErrors, got %v", err)
	}
	if fields[validate.FieldConsents].Valid {
		t.Fatal("expected consents field to be invalid")
	}
	if got := c.Current().Phase; got != domain.PhaseUnauthenticated {
		t.Fatalf("state changed to %s", got)
	}
}

func TestRefreshIfNeededSkipsFreshToken(t *testing.T) {
	api := &stubAPI{}
	store := &stubStore{}
	c := newUnauthenticated(t, api, store)

	// Authenticate with a token that is valid for another hour.
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	api.mu.Lock()
	api.loginFn = func(context.Context, domain.Credentials) (port.AuthResult, error) {
		result := okResult()
		result.Tokens.AccessToken = token
		return result, nil
	}
	api.mu.Unlock()
	if _, err := c.Login(context.Background(), domain.Credentials{Email: "collector@example.com", Password: "Tr4ding!cards"}); err != nil {
		t.Fatalf("login: %v", err)
	}

	if err := c.RefreshIfNeeded(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if _, refreshes, _ := api.counts(); refreshes != 0 {
		t.Fatalf("expected no refresh call for a fresh token, got %d", refreshes)
	}
}

func TestRefreshExpiryForcesUnauthenticated(t *testing.T) {
	api := &stubAPI{refreshFn: func(context.Context, string) (port.AuthResult, error) {
		return port.AuthResult{}, fmt.Errorf("%w: revoked", port.ErrSessionExpired)
	}}
	store := &stubStore{}
	c := newUnauthenticated(t, api, store)
	authenticate(t, c, api)

	err := c.RefreshIfNeeded(context.Background())
	if !errors.Is(err, port.ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}

	if got := c.Current().Phase; got != domain.PhaseUnauthenticated {
		t.Fatalf("expected forced unauthenticated, got %s", got)
	}
	if _, clears := store.counts(); clears == 0 {
		t.Fatal("expected stored tokens to be cleared")
	}
}

func TestRefreshTransientFailureKeepsSession(t *testing.T) {
	api := &stubAPI{refreshFn: func(context.Context, string) (port.AuthResult, error) {
		return port.AuthResult{}, fmt.Errorf("%w: connection refused", port.ErrNetwork)
	}}
	store := &stubStore{}
	c := newUnauthenticated(t, api, store)
	authenticate(t, c, api)

	err := c.RefreshIfNeeded(context.Background())
	if !errors.Is(err, port.ErrNetwork) {
		t.Fatalf("expected ErrNetwork, got %v", err)
	}
	if !c.Current().Authenticated() {
		t.Fatalf("transient refresh failure dropped session to %s", c.Current().Phase)
	}
}

func TestLoginWhileLoadingIsRejected(t *testing.T) {
	api := &stubAPI{}
	store := &stubStore{}
	c := newTestController(t, api, store)

	_, err := c.Login(context.Background(), domain.Credentials{Email: "collector@example.com", Password: "Tr4ding!cards"})
	if !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy during bootstrap, got %v", err)
	}
}
