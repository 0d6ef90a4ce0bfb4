package service

import (
	"crypto/subtle"
	"strings"

	"github.com/paypro-bridge/internal/config"

	"golang.org/x/crypto/bcrypt"
)

// CallbackCredentials checks the username/password PayPro posts with invoice callbacks.
// With nothing configured every request passes.
type CallbackCredentials struct {
	username     string
	password     string
	passwordHash string
}

// NewCallbackCredentials creates the checker from config.
func NewCallbackCredentials(cfg config.CallbackConfig) *CallbackCredentials {
	return &CallbackCredentials{
		username:     strings.TrimSpace(cfg.Username),
		password:     cfg.Password,
		passwordHash: strings.TrimSpace(cfg.PasswordHash),
	}
}

// Enforced reports whether callbacks must carry credentials.
func (c *CallbackCredentials) Enforced() bool {
	return c != nil && (c.username != "" || c.password != "" || c.passwordHash != "")
}

// Verify compares the supplied credentials. A configured hash wins over the plain password.
func (c *CallbackCredentials) Verify(username, password string) bool {
	if !c.Enforced() {
		return true
	}
	if c.username != "" && !constantTimeEqual(c.username, strings.TrimSpace(username)) {
		return false
	}
	if c.passwordHash != "" {
		return bcrypt.CompareHashAndPassword([]byte(c.passwordHash), []byte(password)) == nil
	}
	if c.password != "" {
		return constantTimeEqual(c.password, password)
	}
	return true
}

func constantTimeEqual(expected, actual string) bool {
	return subtle.ConstantTimeCompare([]byte(expected), []byte(actual)) == 1
}
