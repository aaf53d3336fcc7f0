package domain

import "time"

// RedirectType controls the HTTP status and edge caching of a resolution.
type RedirectType string

const (
	RedirectTemporary RedirectType = "temporary"
	RedirectPermanent RedirectType = "permanent"
)

// Valid reports whether t is a known redirect type.
func (t RedirectType) Valid() bool {
	return t == RedirectTemporary || t == RedirectPermanent
}

// ShortURL is the canonical record for a shortcode inside a namespace.
// (NamespaceID, Shortcode) is unique and never changes after creation.
type ShortURL struct {
	ID              string       `json:"id"`
	NamespaceID     string       `json:"namespace_id"`
	NamespaceName   string       `json:"namespace_name"`
	Shortcode       string       `json:"shortcode"`
	OriginalURL     string       `json:"original_url"`
	CreatedByUserID string       `json:"created_by_user_id"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
	ClickCount      int64        `json:"click_count"`
	IsPrivate       bool         `json:"is_private"`
	IsActive        bool         `json:"is_active"`
	Expiry          *time.Time   `json:"expiry,omitempty"`
	Tags            []string     `json:"tags"`
	RedirectType    RedirectType `json:"redirect_type"`
}

// IsExpired reports whether the URL has an expiry at or before now.
func (u *ShortURL) IsExpired(now time.Time) bool {
	return u.Expiry != nil && !u.Expiry.After(now)
}

// CreateURLParams carries everything needed to create a ShortURL.
// An empty CustomCode means the allocator generates one.
type CreateURLParams struct {
	NamespaceID   string
	NamespaceName string
	OriginalURL   string
	CustomCode    string
	Length        int
	Method        GenerationMethod
	UserID        string
	IsPrivate     bool
	Expiry        *time.Time
	Tags          []string
	RedirectType  RedirectType
}

// UpdateURLParams is a partial update. Nil fields are left untouched.
// There is no ClickCount: the counter only moves through increments.
type UpdateURLParams struct {
	OriginalURL  *string
	IsPrivate    *bool
	IsActive     *bool
	Expiry       *time.Time
	ClearExpiry  bool
	Tags         []string
	RedirectType *RedirectType
}

// BatchResult reports the outcome of one item of a batch create.
type BatchResult struct {
	Index    int       `json:"index"`
	ShortURL *ShortURL `json:"short_url,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// ResolveStatus is the terminal state of a resolution.
type ResolveStatus string

const (
	ResolveOK       ResolveStatus = "ok"
	ResolveNotFound ResolveStatus = "not_found"
	ResolveInactive ResolveStatus = "inactive"
	ResolveExpired  ResolveStatus = "expired"
)

// RedirectInfo is what the resolver hands back to the transport layer.
type RedirectInfo struct {
	NamespaceID  string        `json:"namespace_id"`
	Namespace    string        `json:"namespace"`
	Shortcode    string        `json:"shortcode"`
	URL          string        `json:"url"`
	RedirectType RedirectType  `json:"redirect_type"`
	IsActive     bool          `json:"is_active"`
	ExpiresAt    *time.Time    `json:"expires_at,omitempty"`
	Status       ResolveStatus `json:"status"`
	CacheHit     bool          `json:"-"`
	ClickedAt    time.Time     `json:"clicked_at"`
}

// CachedResolution is the lightweight value stored in the resolution cache.
type CachedResolution struct {
	OriginalURL  string       `json:"original_url"`
	RedirectType RedirectType `json:"redirect_type"`
	IsActive     bool         `json:"is_active"`
	Expiry       *time.Time   `json:"expiry,omitempty"`
}
