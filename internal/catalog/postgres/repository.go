// Package postgres provides PostgreSQL implementation of the catalog repository.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ayerhssb/status-page/internal/catalog"
	"github.com/ayerhssb/status-page/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

// Repository implements the catalog.Repository interface using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// CreateService creates a new service in the database.
func (r *Repository) CreateService(ctx context.Context, service *domain.Service) error {
	query := `
		INSERT INTO services (organization_id, name, slug, description, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		service.OrganizationID,
		service.Name,
		service.Slug,
		service.Description,
		service.Status,
	).Scan(&service.ID, &service.CreatedAt, &service.UpdatedAt)

	if err != nil {
		if isUniqueViolation(err) {
			return catalog.ErrSlugExists
		}
		return fmt.Errorf("create service: %w", err)
	}
	return nil
}

// GetService retrieves a service by its ID within an organization.
func (r *Repository) GetService(ctx context.Context, organizationID, id string) (*domain.Service, error) {
	query := `
		SELECT id, organization_id, name, slug, description, status, created_at, updated_at
		FROM services
		WHERE id = $1 AND organization_id = $2
	`
	service, err := scanService(r.db.QueryRow(ctx, query, id, organizationID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrServiceNotFound
		}
		return nil, fmt.Errorf("get service: %w", err)
	}
	return service, nil
}

// ListServices retrieves all services of an organization.
func (r *Repository) ListServices(ctx context.Context, organizationID string) ([]domain.Service, error) {
	query := `
		SELECT id, organization_id, name, slug, description, status, created_at, updated_at
		FROM services
		WHERE organization_id = $1
		ORDER BY name, id
	`
	rows, err := r.db.Query(ctx, query, organizationID)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	defer rows.Close()

	services := make([]domain.Service, 0)
	for rows.Next() {
		service, err := scanService(rows)
		if err != nil {
			return nil, fmt.Errorf("scan service: %w", err)
		}
		services = append(services, *service)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate services: %w", err)
	}
	return services, nil
}

// UpdateService updates the descriptive fields of a service. Status is left untouched.
func (r *Repository) UpdateService(ctx context.Context, service *domain.Service) error {
	query := `
		UPDATE services
		SET name = $3, slug = $4, description = $5, updated_at = NOW()
		WHERE id = $1 AND organization_id = $2
		RETURNING status, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		service.ID,
		service.OrganizationID,
		service.Name,
		service.Slug,
		service.Description,
	).Scan(&service.Status, &service.UpdatedAt)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return catalog.ErrServiceNotFound
		}
		if isUniqueViolation(err) {
			return catalog.ErrSlugExists
		}
		return fmt.Errorf("update service: %w", err)
	}
	return nil
}

// DeleteService deletes a service that has no active incidents. The service
// row is locked first so no incident can be opened on it meanwhile.
func (r *Repository) DeleteService(ctx context.Context, organizationID, id string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			slog.Error("failed to rollback transaction", "error", err)
		}
	}()

	var locked string
	err = tx.QueryRow(ctx,
		`SELECT id FROM services WHERE id = $1 AND organization_id = $2 FOR UPDATE`,
		id, organizationID,
	).Scan(&locked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return catalog.ErrServiceNotFound
		}
		return fmt.Errorf("lock service: %w", err)
	}

	var hasActive bool
	err = tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM incidents WHERE service_id = $1 AND status <> 'RESOLVED')`,
		id,
	).Scan(&hasActive)
	if err != nil {
		return fmt.Errorf("check active incidents: %w", err)
	}
	if hasActive {
		return catalog.ErrServiceHasActiveIncidents
	}

	if _, err := tx.Exec(ctx, `DELETE FROM services WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete service: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// ListStatusLog returns the status change history for a service.
func (r *Repository) ListStatusLog(ctx context.Context, serviceID string, limit, offset int) ([]domain.ServiceStatusLogEntry, error) {
	query := `
		SELECT id, service_id, old_status, new_status, incident_id, reason, created_by, created_at
		FROM service_status_log
		WHERE service_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.Query(ctx, query, serviceID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list status log: %w", err)
	}
	defer rows.Close()

	result := make([]domain.ServiceStatusLogEntry, 0)
	for rows.Next() {
		var entry domain.ServiceStatusLogEntry
		if err := rows.Scan(
			&entry.ID,
			&entry.ServiceID,
			&entry.OldStatus,
			&entry.NewStatus,
			&entry.IncidentID,
			&entry.Reason,
			&entry.CreatedBy,
			&entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan status log entry: %w", err)
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}

// CountStatusLog returns the total number of log entries for a service.
func (r *Repository) CountStatusLog(ctx context.Context, serviceID string) (int, error) {
	query := `SELECT COUNT(*) FROM service_status_log WHERE service_id = $1`
	var count int
	err := r.db.QueryRow(ctx, query, serviceID).Scan(&count)
	return count, err
}

func scanService(row pgx.Row) (*domain.Service, error) {
	var service domain.Service
	err := row.Scan(
		&service.ID,
		&service.OrganizationID,
		&service.Name,
		&service.Slug,
		&service.Description,
		&service.Status,
		&service.CreatedAt,
		&service.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &service, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
