package devserver

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/EmerBV/figrclub-sub001/internal/core/domain"
	"github.com/EmerBV/figrclub-sub001/internal/infra/logger"
	"github.com/EmerBV/figrclub-sub001/internal/infra/security"
)

const codeVerificationPending = "email_verification_pending"

func (s *Server) register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: "invalid registration payload"})
		return
	}

	if !hasRequiredConsents(req.Consents) {
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: "terms and privacy consents must be accepted"})
		return
	}

	hash, err := security.HashPassword(req.Password)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "hash password"})
		return
	}

	now := time.Now().UTC()
	acct := &account{
		User: domain.User{
			ID:            newAccountID(),
			Username:      req.Username,
			DisplayName:   req.DisplayName,
			Email:         strings.TrimSpace(req.Email),
			EmailVerified: !s.cfg.RequireEmailVerification,
			RegisteredAt:  now,
		},
		PasswordHash: hash,
		Consents:     consentsFrom(req.Consents, now),
	}

	if s.cfg.RequireEmailVerification {
		code, err := security.GenerateNumericCode(6)
		if err != nil {
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "generate verification code"})
			return
		}
		acct.VerificationCode = code
	}

	if !s.accounts.create(acct) {
		c.JSON(http.StatusConflict, ErrorResponse{Error: "email already registered"})
		return
	}

	if s.cfg.RequireEmailVerification {
		// A real backend would email the code; the fixture logs it.
		s.log.Info("verification code issued",
			zap.String("email", logger.MaskEmail(acct.User.Email)),
			zap.String("code", acct.VerificationCode))
		c.JSON(http.StatusCreated, AuthResponse{
			User:                 userPayloadFrom(acct.User),
			VerificationRequired: true,
		})
		return
	}

	s.respondWithSession(c, http.StatusCreated, acct)
}

func (s *Server) login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: "invalid login payload"})
		return
	}

	acct, ok := s.accounts.byEmailAddr(req.Email)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid credentials"})
		return
	}

	match, err := security.VerifyPassword(req.Password, acct.PasswordHash)
	if err != nil || !match {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid credentials"})
		return
	}

	if !acct.User.EmailVerified {
		c.JSON(http.StatusForbidden, ErrorResponse{
			Error: "email verification pending",
			Code:  codeVerificationPending,
		})
		return
	}

	s.respondWithSession(c, http.StatusOK, acct)
}

func (s *Server) verify(c *gin.Context) {
	var req VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: "invalid verification payload"})
		return
	}

	acct, ok := s.accounts.byEmailAddr(req.Email)
	if !ok || acct.VerificationCode == "" || acct.VerificationCode != strings.TrimSpace(req.Code) {
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: "verification code invalid"})
		return
	}

	s.accounts.markVerified(acct)
	s.respondWithSession(c, http.StatusOK, acct)
}

func (s *Server) refresh(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: "invalid refresh payload"})
		return
	}

	acct, ok := s.accounts.redeemRefresh(req.RefreshToken)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid refresh token"})
		return
	}

	s.respondWithSession(c, http.StatusOK, acct)
}

func (s *Server) logout(c *gin.Context) {
	accountID, ok := s.bearerAccount(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid access token"})
		return
	}

	s.accounts.revokeAll(accountID)
	c.Status(http.StatusNoContent)
}

func (s *Server) currentUser(c *gin.Context) {
	accountID, ok := s.bearerAccount(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid access token"})
		return
	}

	acct, found := s.accounts.byAccountID(accountID)
	if !found {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unknown account"})
		return
	}

	c.JSON(http.StatusOK, AuthResponse{User: userPayloadFrom(acct.User)})
}

// respondWithSession issues a fresh token pair for the account.
func (s *Server) respondWithSession(c *gin.Context, status int, acct *account) {
	access, err := issueAccessToken(s.secret, acct.User.ID, s.cfg.AccessTokenTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "issue access token"})
		return
	}

	refresh, err := s.accounts.issueRefresh(acct.User.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "issue refresh token"})
		return
	}

	c.JSON(status, AuthResponse{
		User:   userPayloadFrom(acct.User),
		Tokens: &TokenPayload{AccessToken: access, RefreshToken: refresh},
	})
}

func (s *Server) bearerAccount(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found {
		return "", false
	}

	accountID, err := parseAccessToken(s.secret, token)
	if err != nil {
		return "", false
	}
	return accountID, true
}

func hasRequiredConsents(consents []ConsentPayload) bool {
	for _, required := range domain.RequiredConsents() {
		accepted := false
		for _, consent := range consents {
			if consent.Kind == string(required) && consent.Accepted {
				accepted = true
				break
			}
		}
		if !accepted {
			return false
		}
	}
	return true
}

func consentsFrom(payload []ConsentPayload, fallback time.Time) []domain.Consent {
	consents := make([]domain.Consent, 0, len(payload))
	for _, c := range payload {
		at := c.AcceptedAt
		if at.IsZero() {
			at = fallback
		}
		consents = append(consents, domain.Consent{
			Kind:       domain.ConsentKind(c.Kind),
			Accepted:   c.Accepted,
			AcceptedAt: at,
		})
	}
	return consents
}
