package auth

import (
	"context"
	"time"
)

// ClientStore reads registered clients.
type ClientStore interface {
	// GetClient returns ErrClientNotFound when no client has the id.
	GetClient(ctx context.Context, id string) (*Client, error)
}

// CodeStore persists authorization codes.
type CodeStore interface {
	CreateCode(ctx context.Context, code *AuthorizationCode) error

	// GetCode returns the record regardless of its state, or ErrCodeNotFound.
	GetCode(ctx context.Context, code string) (*AuthorizationCode, error)

	// MarkCodeUsed flips used to true only if the code is unused and not
	// expired at now, as a single atomic step. It reports whether it did.
	MarkCodeUsed(ctx context.Context, code string, now time.Time) (bool, error)

	// DeleteExpiredCodes removes codes with expires_at <= now.
	DeleteExpiredCodes(ctx context.Context, now time.Time) (int64, error)
}
