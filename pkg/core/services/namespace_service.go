package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/wadjakorntonsri/ns-shortener/pkg/core/domain"
	"github.com/wadjakorntonsri/ns-shortener/pkg/logging"
	"github.com/wadjakorntonsri/ns-shortener/pkg/ports"
)

var namespaceNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// reservedNamespaceNames are first path segments the router already serves.
var reservedNamespaceNames = map[string]bool{
	"api":     true,
	"healthz": true,
	"metrics": true,
}

// CacheInvalidator drops cached entries of a whole namespace.
type CacheInvalidator interface {
	InvalidateNamespace(ctx context.Context, namespaceID string) error
}

type NamespaceService struct {
	repo  ports.NamespaceRepository
	urls  ports.URLRepository
	cache CacheInvalidator
	clock domain.Clock
}

func NewNamespaceService(repo ports.NamespaceRepository, urls ports.URLRepository, cache CacheInvalidator, clock domain.Clock) *NamespaceService {
	if clock == nil {
		clock = domain.RealClock{}
	}
	return &NamespaceService{repo: repo, urls: urls, cache: cache, clock: clock}
}

func (s *NamespaceService) Create(ctx context.Context, organizationID, name string) (*domain.Namespace, error) {
	if organizationID == "" {
		return nil, domain.NewValidationError("organization_id", "is required")
	}
	name, err := normalizeNamespaceName(name)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	ns := &domain.Namespace{
		ID:             uuid.NewString(),
		OrganizationID: organizationID,
		Name:           name,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.CreateNamespace(ctx, ns); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil, fmt.Errorf("namespace %q: %w", name, domain.ErrConflict)
		}
		return nil, err
	}
	logging.Info().Str("namespace_id", ns.ID).Str("name", ns.Name).Str("organization_id", organizationID).Msg("namespace created")
	return ns, nil
}

func (s *NamespaceService) ByName(ctx context.Context, name string) (*domain.Namespace, error) {
	return s.repo.GetNamespaceByName(ctx, strings.ToLower(strings.TrimSpace(name)))
}

func (s *NamespaceService) ByOrganization(ctx context.Context, organizationID string) ([]domain.Namespace, error) {
	return s.repo.ListNamespaces(ctx, organizationID)
}

// InOrganization returns the namespace only when it belongs to organizationID.
func (s *NamespaceService) InOrganization(ctx context.Context, organizationID, name string) (*domain.Namespace, error) {
	ns, err := s.ByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if ns.OrganizationID != organizationID {
		return nil, fmt.Errorf("namespace %q: %w", name, domain.ErrNotFound)
	}
	return ns, nil
}

// Rename changes a namespace name. The denormalized name on URL rows is
// migrated best-effort: a failed migration is logged and the rename stands.
func (s *NamespaceService) Rename(ctx context.Context, organizationID, oldName, newName string) (*domain.Namespace, error) {
	ns, err := s.InOrganization(ctx, organizationID, oldName)
	if err != nil {
		return nil, err
	}
	newName, err = normalizeNamespaceName(newName)
	if err != nil {
		return nil, err
	}
	if newName == ns.Name {
		return ns, nil
	}
	if _, err := s.repo.GetNamespaceByName(ctx, newName); err == nil {
		return nil, fmt.Errorf("namespace %q: %w", newName, domain.ErrConflict)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	now := s.clock.Now()
	if err := s.repo.RenameNamespace(ctx, ns.ID, newName, now); err != nil {
		return nil, err
	}
	prev := ns.Name
	ns.Name = newName
	ns.UpdatedAt = now

	migrated, err := s.urls.SetNamespaceName(ctx, ns.ID, newName)
	if err != nil {
		logging.Error().Err(err).Str("namespace_id", ns.ID).Str("from", prev).Str("to", newName).Msg("url rows not migrated after namespace rename")
	} else {
		logging.Info().Str("namespace_id", ns.ID).Str("from", prev).Str("to", newName).Int64("urls", migrated).Msg("namespace renamed")
	}

	if s.cache != nil {
		if err := s.cache.InvalidateNamespace(ctx, ns.ID); err != nil {
			logging.Warn().Err(err).Str("namespace_id", ns.ID).Msg("failed to invalidate namespace cache")
		}
	}
	return ns, nil
}

func normalizeNamespaceName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if len(name) < 2 {
		return "", domain.NewValidationError("name", "must be at least 2 characters")
	}
	if !namespaceNamePattern.MatchString(name) {
		return "", domain.NewValidationError("name", "may only contain letters, numbers, hyphens and underscores")
	}
	name = strings.ToLower(name)
	if reservedNamespaceNames[name] {
		return "", domain.NewValidationError("name", fmt.Sprintf("%q is reserved", name))
	}
	return name, nil
}
