package domain

import "time"

// ClickEvent is one row of the click ledger. Rows are append-only.
type ClickEvent struct {
	EventID     string    `json:"event_id"`
	NamespaceID string    `json:"namespace_id"`
	Shortcode   string    `json:"shortcode"`
	ClickDate   string    `json:"click_date"` // YYYY-MM-DD, UTC
	Timestamp   time.Time `json:"timestamp"`
	IPAddress   string    `json:"ip_address"`
	UserAgent   string    `json:"user_agent"`
	Referer     string    `json:"referer"`
	Country     string    `json:"country"`
	City        string    `json:"city"`
}

// ClientMeta is the request metadata captured at resolution time.
type ClientMeta struct {
	IP        string
	UserAgent string
	Referer   string
	Timestamp time.Time
}

// Location is a best-effort geolocation of an IP address.
type Location struct {
	Country string `json:"country"`
	City    string `json:"city"`
}

const (
	LocationLocal   = "Local"
	LocationUnknown = "Unknown"
	RefererDirect   = "Direct"
)

// UnknownLocation is returned when every geo source misses.
var UnknownLocation = Location{Country: LocationUnknown, City: LocationUnknown}

// DateLayout is the layout of ClickEvent.ClickDate.
const DateLayout = "2006-01-02"
