package services

import (
	"context"
	"fmt"
	"net/netip"
	"sort"
	"sync"
	"time"

	"github.com/wadjakorntonsri/ns-shortener/pkg/core/domain"
	"github.com/wadjakorntonsri/ns-shortener/pkg/ports"
)

type memURLRepo struct {
	mu         sync.Mutex
	rows       map[string]domain.ShortURL
	getCalls   int
	failGet    error
	failIncr   error
	existsHits map[string]bool
}

func newMemURLRepo() *memURLRepo {
	return &memURLRepo{rows: map[string]domain.ShortURL{}, existsHits: map[string]bool{}}
}

func urlKey(ns, code string) string { return ns + "/" + code }

func (r *memURLRepo) Create(_ context.Context, u *domain.ShortURL) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := urlKey(u.NamespaceID, u.Shortcode)
	if _, ok := r.rows[k]; ok {
		return fmt.Errorf("create %s: %w", k, domain.ErrConflict)
	}
	r.rows[k] = *u
	return nil
}

func (r *memURLRepo) Get(_ context.Context, ns, code string) (*domain.ShortURL, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.getCalls++
	if r.failGet != nil {
		return nil, r.failGet
	}
	u, ok := r.rows[urlKey(ns, code)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &u, nil
}

func (r *memURLRepo) Exists(_ context.Context, ns, code string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.existsHits[code] {
		return true, nil
	}
	_, ok := r.rows[urlKey(ns, code)]
	return ok, nil
}

func (r *memURLRepo) Update(_ context.Context, u *domain.ShortURL) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := urlKey(u.NamespaceID, u.Shortcode)
	cur, ok := r.rows[k]
	if !ok {
		return domain.ErrNotFound
	}
	clicks := cur.ClickCount
	cur = *u
	cur.ClickCount = clicks
	r.rows[k] = cur
	return nil
}

func (r *memURLRepo) Delete(_ context.Context, ns, code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := urlKey(ns, code)
	if _, ok := r.rows[k]; !ok {
		return domain.ErrNotFound
	}
	delete(r.rows, k)
	return nil
}

func (r *memURLRepo) IncrementClicks(_ context.Context, ns, code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failIncr != nil {
		return r.failIncr
	}
	k := urlKey(ns, code)
	u := r.rows[k]
	u.ClickCount++
	r.rows[k] = u
	return nil
}

func (r *memURLRepo) ListByNamespace(_ context.Context, ns string, limit, offset int) ([]domain.ShortURL, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.ShortURL
	for _, u := range r.rows {
		if u.NamespaceID == ns {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Shortcode < out[j].Shortcode })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memURLRepo) CountByNamespace(_ context.Context, ns string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, u := range r.rows {
		if u.NamespaceID == ns {
			n++
		}
	}
	return n, nil
}

func (r *memURLRepo) Shortcodes(_ context.Context, ns string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, u := range r.rows {
		if u.NamespaceID == ns {
			out = append(out, u.Shortcode)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (r *memURLRepo) SetNamespaceName(_ context.Context, ns, newName string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for k, u := range r.rows {
		if u.NamespaceID == ns {
			u.NamespaceName = newName
			r.rows[k] = u
			n++
		}
	}
	return n, nil
}

func (r *memURLRepo) clicks(ns, code string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rows[urlKey(ns, code)].ClickCount
}

type memLedger struct {
	mu      sync.Mutex
	events  []domain.ClickEvent
	failErr error
}

func (l *memLedger) Append(_ context.Context, e *domain.ClickEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failErr != nil {
		return l.failErr
	}
	l.events = append(l.events, *e)
	return nil
}

func (l *memLedger) filter(keep func(domain.ClickEvent) bool) []domain.ClickEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []domain.ClickEvent
	for _, e := range l.events {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}

func (l *memLedger) ForURL(_ context.Context, ns, code, start, end string) ([]domain.ClickEvent, error) {
	return l.filter(func(e domain.ClickEvent) bool {
		return e.NamespaceID == ns && e.Shortcode == code && e.ClickDate >= start && e.ClickDate <= end
	}), nil
}

func (l *memLedger) ForNamespace(_ context.Context, ns, start, end string) ([]domain.ClickEvent, error) {
	return l.filter(func(e domain.ClickEvent) bool {
		return e.NamespaceID == ns && e.ClickDate >= start && e.ClickDate <= end
	}), nil
}

func (l *memLedger) CountryCounts(_ context.Context, nsIDs []string, start, end string) (map[string]int64, error) {
	want := map[string]bool{}
	for _, id := range nsIDs {
		want[id] = true
	}
	out := map[string]int64{}
	for _, e := range l.filter(func(e domain.ClickEvent) bool {
		return want[e.NamespaceID] && e.ClickDate >= start && e.ClickDate <= end
	}) {
		out[e.Country]++
	}
	return out, nil
}

func (l *memLedger) ForDay(_ context.Context, ns, day string) ([]domain.ClickEvent, error) {
	out := l.filter(func(e domain.ClickEvent) bool { return e.NamespaceID == ns && e.ClickDate == day })
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out, nil
}

func (l *memLedger) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

type memURLCache struct {
	mu          sync.Mutex
	objects     map[string]domain.ShortURL
	resolutions map[string]domain.CachedResolution
	hot         map[string]float64
	invalidated []string
}

func newMemURLCache() *memURLCache {
	return &memURLCache{
		objects:     map[string]domain.ShortURL{},
		resolutions: map[string]domain.CachedResolution{},
		hot:         map[string]float64{},
	}
}

func (c *memURLCache) GetURL(_ context.Context, ns, code string) (*domain.ShortURL, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	u, ok := c.objects[urlKey(ns, code)]
	if !ok {
		return nil, false
	}
	return &u, true
}

func (c *memURLCache) SetURL(_ context.Context, u *domain.ShortURL) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.objects[urlKey(u.NamespaceID, u.Shortcode)] = *u
}

func (c *memURLCache) GetResolution(_ context.Context, ns, code string) (*domain.CachedResolution, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.resolutions[urlKey(ns, code)]
	if !ok {
		return nil, false
	}
	return &r, true
}

func (c *memURLCache) SetResolution(_ context.Context, ns, code string, r *domain.CachedResolution) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resolutions[urlKey(ns, code)] = *r
}

func (c *memURLCache) Invalidate(_ context.Context, ns, code string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := urlKey(ns, code)
	delete(c.objects, k)
	delete(c.resolutions, k)
	c.invalidated = append(c.invalidated, k)
}

func (c *memURLCache) TrackHot(_ context.Context, ns, code string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hot[ns+":"+code]++
}

func (c *memURLCache) hotScore(ns, code string) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hot[ns+":"+code]
}

func (c *memURLCache) HotURLs(_ context.Context, n int) ([]domain.HotURL, error) {
	return nil, nil
}

func (c *memURLCache) Stats(_ context.Context) (domain.CacheStats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return domain.CacheStats{Backend: "fake", ObjectLRU: domain.LRUStats{Count: int64(len(c.objects))}}, nil
}

func (c *memURLCache) Clear(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.objects = map[string]domain.ShortURL{}
	c.resolutions = map[string]domain.CachedResolution{}
	return nil
}

type memNamespaces struct {
	mu   sync.Mutex
	byID map[string]domain.Namespace
}

func newMemNamespaces(nss ...domain.Namespace) *memNamespaces {
	m := &memNamespaces{byID: map[string]domain.Namespace{}}
	for _, ns := range nss {
		m.byID[ns.ID] = ns
	}
	return m
}

func (m *memNamespaces) CreateNamespace(_ context.Context, ns *domain.Namespace) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, cur := range m.byID {
		if cur.Name == ns.Name {
			return domain.ErrConflict
		}
	}
	m.byID[ns.ID] = *ns
	return nil
}

func (m *memNamespaces) GetNamespace(_ context.Context, id string) (*domain.Namespace, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ns, ok := m.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &ns, nil
}

func (m *memNamespaces) GetNamespaceByName(_ context.Context, name string) (*domain.Namespace, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ns := range m.byID {
		if ns.Name == name {
			return &ns, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memNamespaces) ListNamespaces(_ context.Context, org string) ([]domain.Namespace, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Namespace
	for _, ns := range m.byID {
		if ns.OrganizationID == org {
			out = append(out, ns)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memNamespaces) RenameNamespace(_ context.Context, id, newName string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ns, ok := m.byID[id]
	if !ok {
		return domain.ErrNotFound
	}
	ns.Name = newName
	ns.UpdatedAt = at
	m.byID[id] = ns
	return nil
}

func (m *memNamespaces) ByName(ctx context.Context, name string) (*domain.Namespace, error) {
	return m.GetNamespaceByName(ctx, name)
}

func (m *memNamespaces) ByOrganization(ctx context.Context, org string) ([]domain.Namespace, error) {
	return m.ListNamespaces(ctx, org)
}

type recordingDispatcher struct {
	mu   sync.Mutex
	jobs []ports.ClickJob
}

func (d *recordingDispatcher) Dispatch(job ports.ClickJob) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.jobs = append(d.jobs, job)
	return true
}

func (d *recordingDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.jobs)
}

type stubGeoDB struct {
	loc   domain.Location
	err   error
	calls int
}

func (s *stubGeoDB) Lookup(_ context.Context, _ netip.Addr) (domain.Location, error) {
	s.calls++
	return s.loc, s.err
}

type stubCountrySource struct {
	country string
	err     error
	calls   int
}

func (s *stubCountrySource) Country(_ context.Context, _ netip.Addr) (string, error) {
	s.calls++
	return s.country, s.err
}

type fixedGeo struct{ loc domain.Location }

func (f fixedGeo) Resolve(context.Context, string) domain.Location { return f.loc }
