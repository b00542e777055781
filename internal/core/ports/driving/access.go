package driving

import (
	"context"

	"github.com/custodia-labs/bastion/internal/core/domain"
)

// AccessService resolves users and answers permission questions.
type AccessService interface {
	// Authenticate resolves an active user and audits the attempt.
	Authenticate(ctx context.Context, userID string) (domain.User, error)

	// Users returns every registered user.
	Users() []domain.User

	// CheckPermission reports whether the user holds the permission.
	CheckPermission(user domain.User, perm domain.Permission) bool

	// CheckClearance reports whether the user may see the level.
	CheckClearance(user domain.User, level domain.Classification) bool
}
