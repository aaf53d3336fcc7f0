package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/wadjakorntonsri/ns-shortener/pkg/core/domain"
)

const shortURLColumns = `namespace_id, shortcode, id, namespace_name, original_url, created_by_user_id,
	created_at, updated_at, click_count, is_private, is_active, expiry, tags, redirect_type`

func (r *SQLiteRepository) Create(ctx context.Context, u *domain.ShortURL) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	tags := u.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return err
	}

	query := `INSERT INTO short_urls (` + shortURLColumns + `)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = r.db.ExecContext(ctx, query,
		u.NamespaceID, u.Shortcode, u.ID, u.NamespaceName, u.OriginalURL, u.CreatedByUserID,
		formatTime(u.CreatedAt), formatTime(u.UpdatedAt), u.ClickCount,
		boolToInt(u.IsPrivate), boolToInt(u.IsActive), nullableTime(u.Expiry), string(tagsJSON), string(u.RedirectType),
	)
	return mapError(fmt.Sprintf("create %s/%s", u.NamespaceID, u.Shortcode), err)
}

func (r *SQLiteRepository) Get(ctx context.Context, namespaceID, shortcode string) (*domain.ShortURL, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query := `SELECT ` + shortURLColumns + ` FROM short_urls WHERE namespace_id = ? AND shortcode = ?`
	u, err := scanShortURL(r.db.QueryRowContext(ctx, query, namespaceID, shortcode))
	if err != nil {
		return nil, mapError(fmt.Sprintf("get %s/%s", namespaceID, shortcode), err)
	}
	return u, nil
}

func (r *SQLiteRepository) Exists(ctx context.Context, namespaceID, shortcode string) (bool, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var one int
	err := r.db.QueryRowContext(ctx, `SELECT 1 FROM short_urls WHERE namespace_id = ? AND shortcode = ?`, namespaceID, shortcode).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, mapError("exists", err)
	}
	return true, nil
}

// Update writes metadata. click_count is not part of the statement.
func (r *SQLiteRepository) Update(ctx context.Context, u *domain.ShortURL) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	tags := u.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return err
	}

	query := `UPDATE short_urls SET original_url = ?, is_private = ?, is_active = ?, expiry = ?, tags = ?,
			  redirect_type = ?, updated_at = ? WHERE namespace_id = ? AND shortcode = ?`
	res, err := r.db.ExecContext(ctx, query,
		u.OriginalURL, boolToInt(u.IsPrivate), boolToInt(u.IsActive), nullableTime(u.Expiry), string(tagsJSON),
		string(u.RedirectType), formatTime(u.UpdatedAt), u.NamespaceID, u.Shortcode,
	)
	if err != nil {
		return mapError("update", err)
	}
	return requireRow(res, fmt.Sprintf("update %s/%s", u.NamespaceID, u.Shortcode))
}

func (r *SQLiteRepository) Delete(ctx context.Context, namespaceID, shortcode string) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `DELETE FROM short_urls WHERE namespace_id = ? AND shortcode = ?`, namespaceID, shortcode)
	if err != nil {
		return mapError("delete", err)
	}
	return requireRow(res, fmt.Sprintf("delete %s/%s", namespaceID, shortcode))
}

// IncrementClicks is additive so concurrent increments never lose counts.
func (r *SQLiteRepository) IncrementClicks(ctx context.Context, namespaceID, shortcode string) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `UPDATE short_urls SET click_count = click_count + 1 WHERE namespace_id = ? AND shortcode = ?`, namespaceID, shortcode)
	return mapError("increment clicks", err)
}

func (r *SQLiteRepository) ListByNamespace(ctx context.Context, namespaceID string, limit, offset int) ([]domain.ShortURL, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query := `SELECT ` + shortURLColumns + ` FROM short_urls WHERE namespace_id = ?
			  ORDER BY created_at DESC, shortcode ASC LIMIT ? OFFSET ?`
	rows, err := r.db.QueryContext(ctx, query, namespaceID, limit, offset)
	if err != nil {
		return nil, mapError("list urls", err)
	}
	defer rows.Close()

	urls := []domain.ShortURL{}
	for rows.Next() {
		u, err := scanShortURL(rows)
		if err != nil {
			return nil, mapError("list urls", err)
		}
		urls = append(urls, *u)
	}
	return urls, mapError("list urls", rows.Err())
}

func (r *SQLiteRepository) CountByNamespace(ctx context.Context, namespaceID string) (int64, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var count int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM short_urls WHERE namespace_id = ?`, namespaceID).Scan(&count)
	return count, mapError("count urls", err)
}

func (r *SQLiteRepository) Shortcodes(ctx context.Context, namespaceID string) ([]string, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `SELECT shortcode FROM short_urls WHERE namespace_id = ? ORDER BY shortcode`, namespaceID)
	if err != nil {
		return nil, mapError("list shortcodes", err)
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, mapError("list shortcodes", err)
		}
		codes = append(codes, code)
	}
	return codes, mapError("list shortcodes", rows.Err())
}

// SetNamespaceName rewrites the denormalized namespace name on every row of a namespace.
func (r *SQLiteRepository) SetNamespaceName(ctx context.Context, namespaceID, newName string) (int64, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `UPDATE short_urls SET namespace_name = ? WHERE namespace_id = ?`, newName, namespaceID)
	if err != nil {
		return 0, mapError("set namespace name", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanShortURL(s rowScanner) (*domain.ShortURL, error) {
	var (
		u                    domain.ShortURL
		createdAt, updatedAt string
		isPrivate, isActive  int
		expiry               sql.NullString
		tagsJSON             string
		redirectType         string
	)
	if err := s.Scan(
		&u.NamespaceID, &u.Shortcode, &u.ID, &u.NamespaceName, &u.OriginalURL, &u.CreatedByUserID,
		&createdAt, &updatedAt, &u.ClickCount, &isPrivate, &isActive, &expiry, &tagsJSON, &redirectType,
	); err != nil {
		return nil, err
	}

	var err error
	if u.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("created_at: %w", err)
	}
	if u.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("updated_at: %w", err)
	}
	if expiry.Valid && expiry.String != "" {
		t, err := parseTime(expiry.String)
		if err != nil {
			return nil, fmt.Errorf("expiry: %w", err)
		}
		u.Expiry = &t
	}
	u.IsPrivate = isPrivate != 0
	u.IsActive = isActive != 0
	u.RedirectType = domain.RedirectType(redirectType)
	_ = json.Unmarshal([]byte(tagsJSON), &u.Tags)
	if u.Tags == nil {
		u.Tags = []string{}
	}
	return &u, nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func requireRow(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return mapError(op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	}
	return nil
}
