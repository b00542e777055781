package services

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/custodia-labs/bastion/internal/core/domain"
	"github.com/custodia-labs/bastion/internal/core/ports/driven"
	"github.com/custodia-labs/bastion/internal/core/ports/driving"
	"github.com/custodia-labs/bastion/internal/logger"
)

// Ensure Gate implements the interface.
var _ driving.AccessService = (*Gate)(nil)

// Gate is the role-based access control gate. The policy is fixed at
// construction; the user registry may change at runtime.
type Gate struct {
	policy   *domain.Policy
	auditLog driven.AuditLog

	mu    sync.RWMutex
	users map[string]domain.User
}

// NewGate creates a gate over policy. A nil policy uses DefaultPolicy.
func NewGate(policy *domain.Policy) *Gate {
	if policy == nil {
		policy = domain.DefaultPolicy()
	}
	return &Gate{
		policy: policy,
		users:  make(map[string]domain.User),
	}
}

// SetAuditLog sets the log that receives authentication failures.
func (g *Gate) SetAuditLog(log driven.AuditLog) {
	g.auditLog = log
}

// Policy returns the gate's policy.
func (g *Gate) Policy() *domain.Policy {
	return g.policy
}

// AddUser registers or replaces a user. Clearance is the highest clearance
// across roles unless override is non-nil.
func (g *Gate) AddUser(id string, roles []string, override *domain.Classification) (domain.User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.User{}, fmt.Errorf("%w: user id is empty", domain.ErrInvalidInput)
	}
	if len(roles) == 0 {
		return domain.User{}, fmt.Errorf("%w: user %s has no roles", domain.ErrInvalidInput, id)
	}

	clearance, err := g.policy.Clearance(roles...)
	if err != nil {
		return domain.User{}, err
	}
	if override != nil {
		if !override.IsValid() {
			return domain.User{}, fmt.Errorf("%w: %d", domain.ErrInvalidClassification, int(*override))
		}
		clearance = *override
	}

	user := domain.User{
		ID:        id,
		Roles:     slices.Clone(roles),
		Clearance: clearance,
		Active:    true,
	}

	g.mu.Lock()
	g.users[id] = user
	g.mu.Unlock()

	logger.Debug("gate: registered %s roles=%v clearance=%s", id, roles, clearance)
	return cloneUser(user), nil
}

// RegisterUsers adds every user spec, as read from configuration.
func (g *Gate) RegisterUsers(specs []domain.UserSpec) error {
	for _, spec := range specs {
		var override *domain.Classification
		if spec.Clearance != "" {
			level, err := domain.ParseClassification(spec.Clearance)
			if err != nil {
				return fmt.Errorf("user %s: %w", spec.ID, err)
			}
			override = &level
		}
		if _, err := g.AddUser(spec.ID, spec.Roles, override); err != nil {
			return fmt.Errorf("user %s: %w", spec.ID, err)
		}
		if spec.Disabled {
			if err := g.SetActive(spec.ID, false); err != nil {
				return err
			}
		}
	}
	return nil
}

// User returns a registered user.
func (g *Gate) User(id string) (domain.User, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	user, ok := g.users[id]
	if !ok {
		return domain.User{}, fmt.Errorf("%w: %s", domain.ErrUnknownUser, id)
	}
	return cloneUser(user), nil
}

// Users returns every registered user ordered by id.
func (g *Gate) Users() []domain.User {
	g.mu.RLock()
	defer g.mu.RUnlock()
	users := make([]domain.User, 0, len(g.users))
	for _, u := range g.users {
		users = append(users, cloneUser(u))
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users
}

// SetActive enables or disables a user.
func (g *Gate) SetActive(id string, active bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	user, ok := g.users[id]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrUnknownUser, id)
	}
	user.Active = active
	g.users[id] = user
	return nil
}

// Authenticate resolves an active user. Failures are audited as auth events.
func (g *Gate) Authenticate(ctx context.Context, userID string) (domain.User, error) {
	user, err := g.User(userID)
	if err == nil && !user.Active {
		err = fmt.Errorf("%w: %s", domain.ErrUserInactive, userID)
	}
	if err == nil {
		return user, nil
	}

	logger.Warn("gate: authentication failed for %q: %v", userID, err)
	if g.auditLog != nil {
		auditErr := appendAudit(ctx, g.auditLog, domain.AuditEvent{
			Kind:    domain.AuditAuth,
			UserID:  userID,
			Details: map[string]any{"reason": err.Error()},
			Success: false,
		})
		if auditErr != nil {
			return domain.User{}, auditErr
		}
	}
	return domain.User{}, err
}

// CheckPermission requires an active user holding a role that grants perm.
func (g *Gate) CheckPermission(user domain.User, perm domain.Permission) bool {
	if !user.Active {
		return false
	}
	for _, role := range user.Roles {
		if g.policy.Grants(role, perm) {
			return true
		}
	}
	return false
}

// CheckClearance requires an active user whose clearance is at least level.
func (g *Gate) CheckClearance(user domain.User, level domain.Classification) bool {
	return user.Active && user.Clearance.IsAtLeast(level)
}

func cloneUser(u domain.User) domain.User {
	u.Roles = slices.Clone(u.Roles)
	return u
}
