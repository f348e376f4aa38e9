// Package permission authorizes page access with casbin. Policies are stored
// in the casbin_rule table through the gorm adapter.
package permission

import (
	"fmt"
	"sync"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"gorm.io/gorm"

	"github.com/skyguide-inc/skyguide/internal/shared/constants"
	"github.com/skyguide-inc/skyguide/internal/shared/logger"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"

	ActionView = "view"
)

const rbacModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && keyMatch2(r.obj, p.obj) && r.act == p.act
`

// defaultPolicies grant signed-in users the app pages and admins everything
// users have plus the admin area.
var defaultPolicies = [][]string{
	{RoleUser, constants.PathChat, ActionView},
	{RoleUser, "/contracts", ActionView},
	{RoleUser, constants.PathPricing, ActionView},
	{RoleUser, "/account", ActionView},
	{RoleAdmin, constants.PathAdmin, ActionView},
	{RoleAdmin, constants.PathAdmin + "/*", ActionView},
}

type Enforcer struct {
	enforcer *casbin.Enforcer
	mu       sync.RWMutex
	logger   logger.Interface
}

func NewEnforcer(db *gorm.DB, log logger.Interface) (*Enforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, fmt.Errorf("failed to create casbin adapter: %w", err)
	}

	m, err := model.NewModelFromString(rbacModel)
	if err != nil {
		return nil, fmt.Errorf("failed to parse casbin model: %w", err)
	}

	enforcer, err := casbin.NewEnforcer(m, adapter)
	if err != nil {
		return nil, fmt.Errorf("failed to create casbin enforcer: %w", err)
	}
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, fmt.Errorf("failed to load policy: %w", err)
	}

	return &Enforcer{enforcer: enforcer, logger: log.Named("permission")}, nil
}

// SeedDefaults adds the built-in policies that are missing. Existing rows
// are left alone, so operators can add more.
func (e *Enforcer) SeedDefaults() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, p := range defaultPolicies {
		if _, err := e.enforcer.AddPolicy(p[0], p[1], p[2]); err != nil {
			return fmt.Errorf("failed to add policy [%s, %s, %s]: %w", p[0], p[1], p[2], err)
		}
	}
	if _, err := e.enforcer.AddGroupingPolicy(RoleAdmin, RoleUser); err != nil {
		return fmt.Errorf("failed to add admin role inheritance: %w", err)
	}

	e.logger.Infow("default permissions seeded", "policies", len(defaultPolicies))
	return nil
}

func (e *Enforcer) Enforce(subject, object, action string) (bool, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	allowed, err := e.enforcer.Enforce(subject, object, action)
	if err != nil {
		e.logger.Errorw("permission check failed", "error", err, "subject", subject, "object", object, "action", action)
		return false, fmt.Errorf("permission check failed: %w", err)
	}
	return allowed, nil
}

// CanView checks a page for a user. The admin flag selects the base role;
// roles granted to the user id directly are honoured too.
func (e *Enforcer) CanView(userID string, isAdmin bool, path string) (bool, error) {
	role := RoleUser
	if isAdmin {
		role = RoleAdmin
	}
	allowed, err := e.Enforce(role, path, ActionView)
	if err != nil || allowed || userID == "" {
		return allowed, err
	}
	return e.Enforce(userID, path, ActionView)
}

func (e *Enforcer) AddRoleForUser(userID, role string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.enforcer.AddRoleForUser(userID, role); err != nil {
		e.logger.Errorw("failed to add role for user", "error", err, "user_id", userID, "role", role)
		return fmt.Errorf("failed to add role for user: %w", err)
	}
	return nil
}

func (e *Enforcer) GetRolesForUser(userID string) ([]string, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	roles, err := e.enforcer.GetRolesForUser(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get roles for user: %w", err)
	}
	return roles, nil
}

func (e *Enforcer) LoadPolicy() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.enforcer.LoadPolicy(); err != nil {
		return fmt.Errorf("failed to reload policy: %w", err)
	}
	e.logger.Info("policy reloaded")
	return nil
}
