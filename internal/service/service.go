package service

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/warrenlibrary/library-backend/internal/errors"
	"github.com/warrenlibrary/library-backend/internal/models"
)

// DefaultStoreTimeout bounds every store round trip when none is configured.
const DefaultStoreTimeout = 5 * time.Second

// storeContext derives the context a single service operation runs its store
// calls under.
func storeContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = DefaultStoreTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

// requireRole is the single authorization check site for role-gated
// operations.
func requireRole(actor models.Actor, role models.Role) error {
	switch role {
	case models.RoleAdmin, models.RoleStudent:
		if actor.Role == role {
			return nil
		}
		return apperrors.Forbidden(fmt.Sprintf("%s access required", role))
	default:
		return apperrors.Forbidden("unknown role")
	}
}
