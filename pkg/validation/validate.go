package validation

import (
	"errors"
	"fmt"
)

// Rules bounds user-supplied fields. Limits are byte lengths.
type Rules struct {
	MaxBodyBytes    int
	MaxAccountBytes int
}

// DefaultRules mirrors the protocol bounds: bodies are 1..1000 bytes,
// account ids 1..128 bytes.
func DefaultRules() Rules {
	return Rules{MaxBodyBytes: 1000, MaxAccountBytes: 128}
}

var rules = DefaultRules()

// SetRules installs the active rules (called once during startup from
// config; zero fields keep their defaults).
func SetRules(r Rules) {
	if r.MaxBodyBytes <= 0 {
		r.MaxBodyBytes = DefaultRules().MaxBodyBytes
	}
	if r.MaxAccountBytes <= 0 {
		r.MaxAccountBytes = DefaultRules().MaxAccountBytes
	}
	rules = r
}

// MaxBodyBytes returns the active message body limit.
func MaxBodyBytes() int { return rules.MaxBodyBytes }

var errEmptyBody = errors.New("message is empty")

// ValidateBody checks the message body bounds.
func ValidateBody(body string) error {
	if len(body) == 0 {
		return errEmptyBody
	}
	if len(body) > rules.MaxBodyBytes {
		return fmt.Errorf("message too long: %d > %d bytes", len(body), rules.MaxBodyBytes)
	}
	return nil
}

// ValidateAccount checks the account id bounds and charset. Account ids
// are limited to letters, digits, '.', '_' and '-' so they embed
// unambiguously in composite store keys.
func ValidateAccount(account string) error {
	if account == "" {
		return errors.New("account required")
	}
	if len(account) > rules.MaxAccountBytes {
		return fmt.Errorf("account too long: %d > %d bytes", len(account), rules.MaxAccountBytes)
	}
	for i := 0; i < len(account); i++ {
		if !accountByteOK(account[i]) {
			return fmt.Errorf("account contains invalid character %q", account[i])
		}
	}
	return nil
}

func accountByteOK(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '.' || c == '_' || c == '-':
		return true
	}
	return false
}
