package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/wadjakorntonsri/ns-shortener/pkg/core/domain"
	"github.com/wadjakorntonsri/ns-shortener/pkg/logging"
	"github.com/wadjakorntonsri/ns-shortener/pkg/ports"
)

const (
	maxBatchSize = 100
	// createRetries bounds re-allocation when a generated code loses the create race.
	createRetries = 5
)

type URLService struct {
	repo  ports.URLRepository
	alloc ports.Allocator
	cache ports.URLCache
	clock domain.Clock
}

func NewURLService(repo ports.URLRepository, alloc ports.Allocator, cache ports.URLCache, clock domain.Clock) *URLService {
	if clock == nil {
		clock = domain.RealClock{}
	}
	return &URLService{repo: repo, alloc: alloc, cache: cache, clock: clock}
}

func (s *URLService) Create(ctx context.Context, p domain.CreateURLParams) (*domain.ShortURL, error) {
	if err := s.validateCreate(&p); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	u := &domain.ShortURL{
		ID:              uuid.NewString(),
		NamespaceID:     p.NamespaceID,
		NamespaceName:   p.NamespaceName,
		OriginalURL:     p.OriginalURL,
		CreatedByUserID: p.UserID,
		CreatedAt:       now,
		UpdatedAt:       now,
		IsPrivate:       p.IsPrivate,
		IsActive:        true,
		Expiry:          p.Expiry,
		Tags:            normalizeTags(p.Tags),
		RedirectType:    p.RedirectType,
	}

	for round := 0; ; round++ {
		code, err := s.alloc.Allocate(ctx, p.NamespaceID, p.Length, p.Method, p.CustomCode)
		if err != nil {
			return nil, err
		}
		u.Shortcode = code

		err = s.repo.Create(ctx, u)
		if err == nil {
			break
		}
		// A custom code is the caller's choice; a lost race on it is a conflict.
		if !errors.Is(err, domain.ErrConflict) || p.CustomCode != "" {
			return nil, err
		}
		if round+1 >= createRetries {
			return nil, fmt.Errorf("create in namespace %s: %w", p.NamespaceID, domain.ErrAllocationExhausted)
		}
		logging.Debug().Str("namespace_id", p.NamespaceID).Str("shortcode", code).Msg("generated shortcode lost create race, retrying")
	}

	s.cache.SetURL(ctx, u)
	s.cache.SetResolution(ctx, u.NamespaceID, u.Shortcode, resolutionOf(u))
	return u, nil
}

func (s *URLService) validateCreate(p *domain.CreateURLParams) error {
	if p.NamespaceID == "" {
		return domain.NewValidationError("namespace", "is required")
	}
	if err := validateOriginalURL(p.OriginalURL); err != nil {
		return err
	}
	if p.RedirectType == "" {
		p.RedirectType = domain.RedirectTemporary
	}
	if !p.RedirectType.Valid() {
		return domain.NewValidationError("redirect_type", "must be temporary or permanent")
	}
	if p.Expiry != nil && !p.Expiry.After(s.clock.Now()) {
		return domain.NewValidationError("expiry", "must be in the future")
	}
	return nil
}

// BatchCreate creates each item independently. Individual failures are
// reported per item and do not abort the batch.
func (s *URLService) BatchCreate(ctx context.Context, items []domain.CreateURLParams) ([]domain.BatchResult, error) {
	if len(items) == 0 {
		return nil, domain.NewValidationError("urls", "at least one url is required")
	}
	if len(items) > maxBatchSize {
		return nil, domain.NewValidationError("urls", fmt.Sprintf("at most %d urls per batch", maxBatchSize))
	}

	results := make([]domain.BatchResult, 0, len(items))
	for i, item := range items {
		u, err := s.Create(ctx, item)
		if err != nil {
			if errors.Is(err, domain.ErrStoreUnavailable) {
				return results, err
			}
			results = append(results, domain.BatchResult{Index: i, Error: err.Error()})
			continue
		}
		results = append(results, domain.BatchResult{Index: i, ShortURL: u})
	}
	return results, nil
}

// Get reads through the full-object cache.
func (s *URLService) Get(ctx context.Context, namespaceID, shortcode string) (*domain.ShortURL, error) {
	if u, ok := s.cache.GetURL(ctx, namespaceID, shortcode); ok {
		return u, nil
	}
	u, err := s.repo.Get(ctx, namespaceID, shortcode)
	if err != nil {
		return nil, err
	}
	s.cache.SetURL(ctx, u)
	return u, nil
}

func (s *URLService) Update(ctx context.Context, namespaceID, shortcode string, p domain.UpdateURLParams) (*domain.ShortURL, error) {
	u, err := s.repo.Get(ctx, namespaceID, shortcode)
	if err != nil {
		return nil, err
	}

	if p.OriginalURL != nil {
		if err := validateOriginalURL(*p.OriginalURL); err != nil {
			return nil, err
		}
		u.OriginalURL = *p.OriginalURL
	}
	if p.RedirectType != nil {
		if !p.RedirectType.Valid() {
			return nil, domain.NewValidationError("redirect_type", "must be temporary or permanent")
		}
		u.RedirectType = *p.RedirectType
	}
	if p.IsPrivate != nil {
		u.IsPrivate = *p.IsPrivate
	}
	if p.IsActive != nil {
		u.IsActive = *p.IsActive
	}
	if p.ClearExpiry {
		u.Expiry = nil
	} else if p.Expiry != nil {
		u.Expiry = p.Expiry
	}
	if p.Tags != nil {
		u.Tags = normalizeTags(p.Tags)
	}
	u.UpdatedAt = s.clock.Now()

	if err := s.repo.Update(ctx, u); err != nil {
		return nil, err
	}
	s.cache.Invalidate(ctx, namespaceID, shortcode)
	return u, nil
}

func (s *URLService) Delete(ctx context.Context, namespaceID, shortcode string) error {
	if err := s.repo.Delete(ctx, namespaceID, shortcode); err != nil {
		return err
	}
	s.cache.Invalidate(ctx, namespaceID, shortcode)
	return nil
}

func (s *URLService) List(ctx context.Context, namespaceID string, page, limit int) ([]domain.ShortURL, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}
	offset := (page - 1) * limit

	urls, err := s.repo.ListByNamespace(ctx, namespaceID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	count, err := s.repo.CountByNamespace(ctx, namespaceID)
	if err != nil {
		return nil, 0, err
	}
	return urls, count, nil
}

func (s *URLService) HotURLs(ctx context.Context, n int) ([]domain.HotURL, error) {
	if n <= 0 {
		n = 10
	}
	return s.cache.HotURLs(ctx, n)
}

func (s *URLService) CacheStats(ctx context.Context) (domain.CacheStats, error) {
	return s.cache.Stats(ctx)
}

func (s *URLService) ClearCache(ctx context.Context) error {
	return s.cache.Clear(ctx)
}

// InvalidateNamespace drops every cached entry of a namespace.
func (s *URLService) InvalidateNamespace(ctx context.Context, namespaceID string) error {
	codes, err := s.repo.Shortcodes(ctx, namespaceID)
	if err != nil {
		return err
	}
	for _, code := range codes {
		s.cache.Invalidate(ctx, namespaceID, code)
	}
	return nil
}

func validateOriginalURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return domain.NewValidationError("original_url", "is required")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return domain.NewValidationError("original_url", "is not a valid url")
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return domain.NewValidationError("original_url", "must use http or https")
	}
	if parsed.Host == "" {
		return domain.NewValidationError("original_url", "must include a host")
	}
	return nil
}

// normalizeTags turns a tag list into a sorted set.
func normalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func resolutionOf(u *domain.ShortURL) *domain.CachedResolution {
	return &domain.CachedResolution{
		OriginalURL:  u.OriginalURL,
		RedirectType: u.RedirectType,
		IsActive:     u.IsActive,
		Expiry:       u.Expiry,
	}
}
