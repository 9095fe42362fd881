// Package tenant answers whether a tenant has completed onboarding.
package tenant

import (
	"context"
	"errors"
)

// Store is the persistence contract for tenant settings.
type Store interface {
	Get(ctx context.Context, userID string) (Settings, error)
	Save(ctx context.Context, s Settings) (Settings, error)
}

// HasCompletedSetup reports whether userID has a settings row. ErrNotFound
// maps to (false, nil); any other error is returned for the caller to log.
func HasCompletedSetup(ctx context.Context, st Store, userID string) (bool, error) {
	_, err := st.Get(ctx, userID)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}
