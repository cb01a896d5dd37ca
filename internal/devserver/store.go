package devserver

import (
	"strings"
	"sync"
	"time"

	uuid "github.com/google/uuid"

	"github.com/EmerBV/figrclub-sub001/internal/core/domain"
	"github.com/EmerBV/figrclub-sub001/internal/infra/security"
)

// account is what the stub server knows about a registered user.
type account struct {
	User             domain.User
	PasswordHash     string
	VerificationCode string
	Consents         []domain.Consent
}

type refreshRecord struct {
	AccountID string
	ExpiresAt time.Time
	Revoked   bool
}

// accountStore is the in-memory backing for the stub server. Everything is
// lost on restart, which is the point of a dev fixture.
type accountStore struct {
	mu       sync.Mutex
	byEmail  map[string]*account
	byID     map[string]*account
	refresh  map[string]*refreshRecord
	refreshT time.Duration
}

func newAccountStore(refreshTTL time.Duration) *accountStore {
	if refreshTTL <= 0 {
		refreshTTL = 7 * 24 * time.Hour
	}
	return &accountStore{
		byEmail:  make(map[string]*account),
		byID:     make(map[string]*account),
		refresh:  make(map[string]*refreshRecord),
		refreshT: refreshTTL,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// create registers a new account. Returns false when the email is taken.
func (s *accountStore) create(acct *account) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := normalizeEmail(acct.User.Email)
	if _, exists := s.byEmail[key]; exists {
		return false
	}

	s.byEmail[key] = acct
	s.byID[acct.User.ID] = acct
	return true
}

func (s *accountStore) byEmailAddr(email string) (*account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.byEmail[normalizeEmail(email)]
	return acct, ok
}

func (s *accountStore) byAccountID(id string) (*account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.byID[id]
	return acct, ok
}

func (s *accountStore) markVerified(acct *account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct.User.EmailVerified = true
	acct.VerificationCode = ""
}

// issueRefresh mints an opaque refresh token for the account. Only the hash
// is retained.
func (s *accountStore) issueRefresh(accountID string) (string, error) {
	raw, err := security.GenerateSecureToken(32)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.refresh[security.HashToken(raw)] = &refreshRecord{
		AccountID: accountID,
		ExpiresAt: time.Now().UTC().Add(s.refreshT),
	}
	return raw, nil
}

// redeemRefresh validates and revokes a refresh token, returning the account
// it belonged to. Rotation happens by the caller issuing a fresh token.
func (s *accountStore) redeemRefresh(raw string) (*account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.refresh[security.HashToken(raw)]
	if !ok || record.Revoked || time.Now().UTC().After(record.ExpiresAt) {
		return nil, false
	}
	record.Revoked = true

	acct, ok := s.byID[record.AccountID]
	return acct, ok
}

// revokeAll invalidates every refresh token held by the account.
func (s *accountStore) revokeAll(accountID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, record := range s.refresh {
		if record.AccountID == accountID {
			record.Revoked = true
		}
	}
}

func newAccountID() string {
	return uuid.NewString()
}
