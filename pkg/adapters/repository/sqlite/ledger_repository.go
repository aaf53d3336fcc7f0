package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/wadjakorntonsri/ns-shortener/pkg/core/domain"
)

const clickColumns = `namespace_id, shortcode, click_date, click_timestamp, event_id, ip_address, user_agent, referer, country, city`

// Append inserts one click row. The row key includes event_id so two clicks
// in the same instant never collide.
func (r *SQLiteRepository) Append(ctx context.Context, e *domain.ClickEvent) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query := `INSERT INTO url_analytics (` + clickColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		e.NamespaceID, e.Shortcode, e.ClickDate, formatTime(e.Timestamp), e.EventID,
		e.IPAddress, e.UserAgent, e.Referer, e.Country, e.City,
	)
	if err != nil {
		return fmt.Errorf("append click: %w: %w", domain.ErrLedgerUnavailable, err)
	}
	return nil
}

func (r *SQLiteRepository) ForURL(ctx context.Context, namespaceID, shortcode, start, end string) ([]domain.ClickEvent, error) {
	query := `SELECT ` + clickColumns + ` FROM url_analytics
			  WHERE namespace_id = ? AND shortcode = ? AND click_date >= ? AND click_date <= ?
			  ORDER BY click_date DESC, click_timestamp DESC`
	return r.queryClicks(ctx, "clicks for url", query, namespaceID, shortcode, start, end)
}

func (r *SQLiteRepository) ForNamespace(ctx context.Context, namespaceID, start, end string) ([]domain.ClickEvent, error) {
	query := `SELECT ` + clickColumns + ` FROM url_analytics
			  WHERE namespace_id = ? AND click_date >= ? AND click_date <= ?
			  ORDER BY click_date DESC, click_timestamp DESC`
	return r.queryClicks(ctx, "clicks for namespace", query, namespaceID, start, end)
}

func (r *SQLiteRepository) ForDay(ctx context.Context, namespaceID, day string) ([]domain.ClickEvent, error) {
	query := `SELECT ` + clickColumns + ` FROM url_analytics
			  WHERE namespace_id = ? AND click_date = ?
			  ORDER BY click_timestamp DESC, event_id DESC`
	return r.queryClicks(ctx, "clicks for day", query, namespaceID, day)
}

// CountryCounts groups clicks by country across several namespaces.
func (r *SQLiteRepository) CountryCounts(ctx context.Context, namespaceIDs []string, start, end string) (map[string]int64, error) {
	counts := make(map[string]int64)
	if len(namespaceIDs) == 0 {
		return counts, nil
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(namespaceIDs)), ",")
	query := `SELECT country, COUNT(*) FROM url_analytics
			  WHERE namespace_id IN (` + placeholders + `) AND click_date >= ? AND click_date <= ?
			  GROUP BY country`
	args := make([]any, 0, len(namespaceIDs)+2)
	for _, id := range namespaceIDs {
		args = append(args, id)
	}
	args = append(args, start, end)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError("country counts", err)
	}
	defer rows.Close()

	for rows.Next() {
		var country string
		var n int64
		if err := rows.Scan(&country, &n); err != nil {
			return nil, mapError("country counts", err)
		}
		if country == "" {
			country = domain.LocationUnknown
		}
		counts[country] += n
	}
	return counts, mapError("country counts", rows.Err())
}

func (r *SQLiteRepository) queryClicks(ctx context.Context, op, query string, args ...any) ([]domain.ClickEvent, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(op, err)
	}
	defer rows.Close()

	events := []domain.ClickEvent{}
	for rows.Next() {
		var e domain.ClickEvent
		var ts string
		if err := rows.Scan(&e.NamespaceID, &e.Shortcode, &e.ClickDate, &ts, &e.EventID,
			&e.IPAddress, &e.UserAgent, &e.Referer, &e.Country, &e.City); err != nil {
			return nil, mapError(op, err)
		}
		if e.Timestamp, err = parseTime(ts); err != nil {
			return nil, fmt.Errorf("%s: click_timestamp: %w", op, err)
		}
		events = append(events, e)
	}
	return events, mapError(op, rows.Err())
}
