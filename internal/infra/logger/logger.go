package logger

import (
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	lg   *zap.Logger
	once sync.Once
)

// New returns a singleton zap.Logger configured for structured logging.
func New(env string) (*zap.Logger, error) {
	var err error
	once.Do(func() {
		cfg := zap.NewProductionConfig()
		if env != "production" {
			cfg = zap.NewDevelopmentConfig()
			cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		}

		lg, err = cfg.Build()
	})

	return lg, err
}

// MaskEmail masks an email address, keeping at most the first 3 characters
// of the local part and the full domain. Example:
// john.doe@example.com -> joh***@example.com
func MaskEmail(email string) string {
	if email == "" {
		return ""
	}

	local, dom, found := strings.Cut(email, "@")
	if !found || dom == "" {
		return "***"
	}

	keep := len(local)
	if keep > 3 {
		keep = 3
	}

	return local[:keep] + "***@" + dom
}

// MaskToken masks token material, keeping only the leading and trailing 2
// characters. Example: "eyJhbGciOi..." -> "ey***Zw"
func MaskToken(s string) string {
	switch {
	case s == "":
		return ""
	case len(s) <= 4:
		return "***"
	}

	return s[:2] + "***" + s[len(s)-2:]
}
