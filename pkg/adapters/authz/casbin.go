// Package authz answers organization-scoped permission checks with Casbin
// RBAC-with-domains. The organization id is the domain.
package authz

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	fileadapter "github.com/casbin/casbin/v2/persist/file-adapter"
	"github.com/casbin/casbin/v2/util"

	"github.com/wadjakorntonsri/ns-shortener/pkg/logging"
	"github.com/wadjakorntonsri/ns-shortener/pkg/ports"
)

//go:embed model.conf
var embeddedModel string

//go:embed policy.csv
var embeddedPolicy string

// AnyOrganization is the domain used for checks that are not tied to one organization.
const AnyOrganization = "*"

type Config struct {
	// PolicyPath replaces the embedded policy when set.
	PolicyPath string
	// DefaultRole applies to users with no role in the checked organization.
	DefaultRole string
}

type Enforcer struct {
	enforcer    *casbin.SyncedEnforcer
	defaultRole string
}

func NewEnforcer(cfg Config) (*Enforcer, error) {
	m, err := model.NewModelFromString(embeddedModel)
	if err != nil {
		return nil, fmt.Errorf("failed to load casbin model: %w", err)
	}

	var e *casbin.SyncedEnforcer
	if cfg.PolicyPath != "" {
		if _, statErr := os.Stat(cfg.PolicyPath); statErr != nil {
			return nil, fmt.Errorf("policy file: %w", statErr)
		}
		e, err = casbin.NewSyncedEnforcer(m, fileadapter.NewAdapter(cfg.PolicyPath))
	} else {
		e, err = casbin.NewSyncedEnforcer(m)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create casbin enforcer: %w", err)
	}

	// Grouping rules with domain "*" grant a role in every organization.
	e.AddNamedDomainMatchingFunc("g", "keyMatch", util.KeyMatch)

	if cfg.PolicyPath == "" {
		if err := loadPolicy(e, embeddedPolicy); err != nil {
			return nil, err
		}
	} else if err := e.LoadPolicy(); err != nil {
		return nil, fmt.Errorf("failed to load policy: %w", err)
	}

	logging.Info().Str("policy", policySource(cfg.PolicyPath)).Str("default_role", cfg.DefaultRole).Msg("authorization policy loaded")
	return &Enforcer{enforcer: e, defaultRole: cfg.DefaultRole}, nil
}

func policySource(path string) string {
	if path == "" {
		return "embedded"
	}
	return path
}

// loadPolicy reads "p, sub, dom, act" and "g, user, role, dom" lines.
func loadPolicy(e *casbin.SyncedEnforcer, policy string) error {
	for _, line := range strings.Split(policy, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Split(line, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		if len(parts) != 4 {
			return fmt.Errorf("malformed policy line %q", line)
		}

		var err error
		switch parts[0] {
		case "p":
			_, err = e.AddPolicy(parts[1], parts[2], parts[3])
		case "g":
			_, err = e.AddGroupingPolicy(parts[1], parts[2], parts[3])
		default:
			err = fmt.Errorf("unknown policy type %q", parts[0])
		}
		if err != nil {
			return fmt.Errorf("failed to add policy %v: %w", parts, err)
		}
	}
	return nil
}

// Allows reports whether userID holds permission inside organizationID.
// Users with no role there are checked as the default role.
func (e *Enforcer) Allows(_ context.Context, organizationID, userID, permission string) (bool, error) {
	allowed, err := e.enforcer.Enforce(userID, organizationID, permission)
	if err != nil {
		return false, fmt.Errorf("enforcement failed: %w", err)
	}
	if allowed || e.defaultRole == "" {
		return allowed, nil
	}

	roles := e.enforcer.GetRolesForUserInDomain(userID, organizationID)
	if len(roles) > 0 {
		return false, nil
	}
	allowed, err = e.enforcer.Enforce(e.defaultRole, organizationID, permission)
	if err != nil {
		return false, fmt.Errorf("enforcement failed: %w", err)
	}
	return allowed, nil
}

// AssignRole grants role to userID in organizationID ("*" for all).
func (e *Enforcer) AssignRole(userID, role, organizationID string) error {
	if _, err := e.enforcer.AddGroupingPolicy(userID, role, organizationID); err != nil {
		return fmt.Errorf("failed to add role: %w", err)
	}
	return nil
}

var _ ports.PermissionCheck = (*Enforcer)(nil)
