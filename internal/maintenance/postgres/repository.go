// Package postgres provides PostgreSQL implementation of the maintenance repository.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/ayerhssb/status-page/internal/domain"
	"github.com/ayerhssb/status-page/internal/maintenance"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const maintenanceColumns = `id, organization_id, service_id, title, description, status,
	start_time, end_time, created_by, created_at, updated_at`

// Repository implements the maintenance.Repository interface using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Create inserts a maintenance window.
func (r *Repository) Create(ctx context.Context, m *domain.Maintenance) error {
	query := `
		INSERT INTO maintenance (organization_id, service_id, title, description, status, start_time, end_time, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		m.OrganizationID,
		m.ServiceID,
		m.Title,
		m.Description,
		m.Status,
		m.StartTime,
		m.EndTime,
		m.CreatedBy,
	).Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert maintenance: %w", err)
	}
	return nil
}

// Get retrieves a maintenance window by ID within an organization.
func (r *Repository) Get(ctx context.Context, organizationID, id string) (*domain.Maintenance, error) {
	query := `SELECT ` + maintenanceColumns + ` FROM maintenance WHERE id = $1 AND organization_id = $2`

	m, err := scanMaintenance(r.db.QueryRow(ctx, query, id, organizationID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, maintenance.ErrMaintenanceNotFound
		}
		return nil, fmt.Errorf("get maintenance: %w", err)
	}
	return m, nil
}

// List retrieves maintenance windows matching the filter.
func (r *Repository) List(ctx context.Context, filter maintenance.Filter) ([]domain.Maintenance, error) {
	query := `SELECT ` + maintenanceColumns + ` FROM maintenance WHERE organization_id = $1`
	args := []interface{}{filter.OrganizationID}

	if filter.ServiceID != nil {
		args = append(args, *filter.ServiceID)
		query += fmt.Sprintf(" AND service_id = $%d", len(args))
	}
	if filter.UpcomingOnly {
		query += ` AND status IN ('SCHEDULED', 'IN_PROGRESS')`
	}
	query += ` ORDER BY start_time DESC, id`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list maintenance: %w", err)
	}
	defer rows.Close()

	list := make([]domain.Maintenance, 0)
	for rows.Next() {
		m, err := scanMaintenance(rows)
		if err != nil {
			return nil, fmt.Errorf("scan maintenance: %w", err)
		}
		list = append(list, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate maintenance: %w", err)
	}
	return list, nil
}

// Update replaces a maintenance window.
func (r *Repository) Update(ctx context.Context, m *domain.Maintenance) error {
	query := `
		UPDATE maintenance
		SET service_id = $3, title = $4, description = $5, status = $6,
		    start_time = $7, end_time = $8, updated_at = NOW()
		WHERE id = $1 AND organization_id = $2
		RETURNING updated_at
	`
	err := r.db.QueryRow(ctx, query,
		m.ID,
		m.OrganizationID,
		m.ServiceID,
		m.Title,
		m.Description,
		m.Status,
		m.StartTime,
		m.EndTime,
	).Scan(&m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return maintenance.ErrMaintenanceNotFound
		}
		return fmt.Errorf("update maintenance: %w", err)
	}
	return nil
}

// Delete removes a maintenance window.
func (r *Repository) Delete(ctx context.Context, organizationID, id string) error {
	result, err := r.db.Exec(ctx, `DELETE FROM maintenance WHERE id = $1 AND organization_id = $2`, id, organizationID)
	if err != nil {
		return fmt.Errorf("delete maintenance: %w", err)
	}
	if result.RowsAffected() == 0 {
		return maintenance.ErrMaintenanceNotFound
	}
	return nil
}

func scanMaintenance(row pgx.Row) (*domain.Maintenance, error) {
	var m domain.Maintenance
	err := row.Scan(
		&m.ID,
		&m.OrganizationID,
		&m.ServiceID,
		&m.Title,
		&m.Description,
		&m.Status,
		&m.StartTime,
		&m.EndTime,
		&m.CreatedBy,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}
