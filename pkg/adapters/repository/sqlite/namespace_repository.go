package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/wadjakorntonsri/ns-shortener/pkg/core/domain"
)

// --- Namespace Repository Implementation ---

func (r *SQLiteRepository) CreateNamespace(ctx context.Context, ns *domain.Namespace) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query := `INSERT INTO namespaces (id, organization_id, name, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query, ns.ID, ns.OrganizationID, ns.Name, formatTime(ns.CreatedAt), formatTime(ns.UpdatedAt))
	return mapError(fmt.Sprintf("create namespace %q", ns.Name), err)
}

func (r *SQLiteRepository) GetNamespace(ctx context.Context, id string) (*domain.Namespace, error) {
	return r.getNamespace(ctx, `SELECT id, organization_id, name, created_at, updated_at FROM namespaces WHERE id = ?`, id)
}

func (r *SQLiteRepository) GetNamespaceByName(ctx context.Context, name string) (*domain.Namespace, error) {
	return r.getNamespace(ctx, `SELECT id, organization_id, name, created_at, updated_at FROM namespaces WHERE name = ?`, name)
}

func (r *SQLiteRepository) getNamespace(ctx context.Context, query, arg string) (*domain.Namespace, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	ns, err := scanNamespace(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		return nil, mapError(fmt.Sprintf("namespace %q", arg), err)
	}
	return ns, nil
}

func (r *SQLiteRepository) ListNamespaces(ctx context.Context, organizationID string) ([]domain.Namespace, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `SELECT id, organization_id, name, created_at, updated_at
			  FROM namespaces WHERE organization_id = ? ORDER BY name`, organizationID)
	if err != nil {
		return nil, mapError("list namespaces", err)
	}
	defer rows.Close()

	namespaces := []domain.Namespace{}
	for rows.Next() {
		ns, err := scanNamespace(rows)
		if err != nil {
			return nil, mapError("list namespaces", err)
		}
		namespaces = append(namespaces, *ns)
	}
	return namespaces, mapError("list namespaces", rows.Err())
}

func (r *SQLiteRepository) RenameNamespace(ctx context.Context, id, newName string, updatedAt time.Time) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `UPDATE namespaces SET name = ?, updated_at = ? WHERE id = ?`, newName, formatTime(updatedAt), id)
	if err != nil {
		return mapError(fmt.Sprintf("rename namespace to %q", newName), err)
	}
	return requireRow(res, "rename namespace "+id)
}

func scanNamespace(s rowScanner) (*domain.Namespace, error) {
	var ns domain.Namespace
	var createdAt, updatedAt string
	if err := s.Scan(&ns.ID, &ns.OrganizationID, &ns.Name, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	var err error
	if ns.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if ns.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &ns, nil
}
