package tenant

import (
	"errors"
	"strings"
	"time"
)

// Settings is the per-tenant onboarding record. Its existence is what marks
// setup as complete.
type Settings struct {
	UserID      string    `json:"user_id" db:"user_id"`
	CompanyName string    `json:"company_name" db:"company_name"`
	Currency    string    `json:"currency" db:"currency"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

var (
	// ErrNotFound is the normal "setup not completed" signal.
	ErrNotFound = errors.New("tenant: settings not found")
	// ErrUnavailable means the store could not answer.
	ErrUnavailable  = errors.New("tenant: settings store unavailable")
	ErrInvalidInput = errors.New("tenant: invalid settings")
)

const DefaultCurrency = "USD"

// Normalize trims input and fills defaults, rejecting records that cannot be stored.
func (s Settings) Normalize() (Settings, error) {
	s.UserID = strings.TrimSpace(s.UserID)
	s.CompanyName = strings.TrimSpace(s.CompanyName)
	s.Currency = strings.ToUpper(strings.TrimSpace(s.Currency))
	if s.Currency == "" {
		s.Currency = DefaultCurrency
	}
	switch {
	case s.UserID == "":
		return Settings{}, errors.Join(ErrInvalidInput, errors.New("user_id required"))
	case s.CompanyName == "":
		return Settings{}, errors.Join(ErrInvalidInput, errors.New("company_name required"))
	case len(s.CompanyName) > 200:
		return Settings{}, errors.Join(ErrInvalidInput, errors.New("company_name too long"))
	case len(s.Currency) != 3:
		return Settings{}, errors.Join(ErrInvalidInput, errors.New("currency must be a 3-letter code"))
	}
	return s, nil
}
