// Package postgres provides PostgreSQL implementation of incidents repository.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/ayerhssb/status-page/internal/domain"
	"github.com/ayerhssb/status-page/internal/incidents"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres error codes reported when concurrent transactions collide.
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

const incidentColumns = `
	id, organization_id, service_id, title, description, status, impact,
	resolved_at, created_by, created_at, updated_at`

// querier is an interface for database operations that both *pgxpool.Pool and pgx.Tx implement.
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository implements incidents.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// RunInTx executes fn inside a database transaction.
func (r *Repository) RunInTx(ctx context.Context, fn func(ctx context.Context, tx incidents.Tx) error) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			slog.Error("failed to rollback transaction", "error", err)
		}
	}()

	if err := fn(ctx, &txStore{tx: tx}); err != nil {
		return translateError(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return translateError(fmt.Errorf("commit transaction: %w", err))
	}
	return nil
}

// GetIncident retrieves an incident of an organization by ID.
func (r *Repository) GetIncident(ctx context.Context, organizationID, id string) (*domain.Incident, error) {
	return getIncident(ctx, r.db, organizationID, id, false)
}

// ListIncidents retrieves incidents with optional filters, newest first.
func (r *Repository) ListIncidents(ctx context.Context, filter incidents.IncidentFilter) ([]domain.Incident, error) {
	query := `SELECT ` + incidentColumns + ` FROM incidents WHERE organization_id = $1`
	args := []interface{}{filter.OrganizationID}
	argNum := 2

	if filter.ServiceID != nil {
		query += fmt.Sprintf(" AND service_id = $%d", argNum)
		args = append(args, *filter.ServiceID)
		argNum++
	}

	if filter.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argNum)
		args = append(args, *filter.Status)
		argNum++
	}

	if filter.ActiveOnly {
		query += " AND status <> 'RESOLVED'"
	}

	if filter.CreatedSince != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argNum)
		args = append(args, *filter.CreatedSince)
		argNum++
	}

	query += " ORDER BY created_at DESC, id"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argNum)
		args = append(args, filter.Limit)
		argNum++
	}

	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argNum)
		args = append(args, filter.Offset)
	}

	return queryIncidents(ctx, r.db, query, args...)
}

// ListIncidentUpdates retrieves the timeline of an incident, oldest first.
func (r *Repository) ListIncidentUpdates(ctx context.Context, incidentID string) ([]domain.IncidentUpdate, error) {
	query := `
		SELECT id, incident_id, message, status, created_by, created_at
		FROM incident_updates
		WHERE incident_id = $1
		ORDER BY created_at, id
	`
	rows, err := r.db.Query(ctx, query, incidentID)
	if err != nil {
		return nil, fmt.Errorf("list incident updates: %w", err)
	}
	defer rows.Close()

	updates := make([]domain.IncidentUpdate, 0)
	for rows.Next() {
		u, err := scanIncidentUpdate(rows)
		if err != nil {
			return nil, err
		}
		updates = append(updates, u)
	}
	return updates, rows.Err()
}

// ListUpdatesByIncidents retrieves the timelines of several incidents in one query.
func (r *Repository) ListUpdatesByIncidents(ctx context.Context, incidentIDs []string) (map[string][]domain.IncidentUpdate, error) {
	timelines := make(map[string][]domain.IncidentUpdate, len(incidentIDs))
	if len(incidentIDs) == 0 {
		return timelines, nil
	}

	query := `
		SELECT id, incident_id, message, status, created_by, created_at
		FROM incident_updates
		WHERE incident_id = ANY($1::uuid[])
		ORDER BY incident_id, created_at, id
	`
	rows, err := r.db.Query(ctx, query, incidentIDs)
	if err != nil {
		return nil, fmt.Errorf("list incident updates: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		u, err := scanIncidentUpdate(rows)
		if err != nil {
			return nil, err
		}
		timelines[u.IncidentID] = append(timelines[u.IncidentID], u)
	}
	return timelines, rows.Err()
}

func scanIncidentUpdate(rows pgx.Rows) (domain.IncidentUpdate, error) {
	var u domain.IncidentUpdate
	if err := rows.Scan(&u.ID, &u.IncidentID, &u.Message, &u.Status, &u.CreatedBy, &u.CreatedAt); err != nil {
		return domain.IncidentUpdate{}, fmt.Errorf("scan incident update: %w", err)
	}
	return u, nil
}

// ListServiceRefs returns all services of an organization, or of every
// organization when organizationID is empty.
func (r *Repository) ListServiceRefs(ctx context.Context, organizationID string) ([]incidents.ServiceRef, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, organization_id FROM services WHERE ($1 = '' OR organization_id = $1) ORDER BY id`,
		organizationID,
	)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	defer rows.Close()

	refs := make([]incidents.ServiceRef, 0)
	for rows.Next() {
		var ref incidents.ServiceRef
		if err := rows.Scan(&ref.ID, &ref.OrganizationID); err != nil {
			return nil, fmt.Errorf("scan service: %w", err)
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

// txStore implements incidents.Tx on top of a pgx transaction.
type txStore struct {
	tx pgx.Tx
}

// LockServices locks service rows in id order with SELECT ... FOR UPDATE.
func (s *txStore) LockServices(ctx context.Context, organizationID string, serviceIDs ...string) error {
	ids := uniqueSorted(serviceIDs)
	if len(ids) == 0 {
		return nil
	}

	rows, err := s.tx.Query(ctx, `
		SELECT id FROM services
		WHERE id = ANY($1::uuid[]) AND ($2 = '' OR organization_id = $2)
		ORDER BY id
		FOR UPDATE
	`, ids, organizationID)
	if err != nil {
		return fmt.Errorf("lock services: %w", err)
	}
	defer rows.Close()

	locked := 0
	for rows.Next() {
		locked++
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("lock services: %w", err)
	}

	if locked != len(ids) {
		return incidents.ErrServiceNotFound
	}
	return nil
}

// GetIncident reads an incident without locking it.
func (s *txStore) GetIncident(ctx context.Context, organizationID, id string) (*domain.Incident, error) {
	return getIncident(ctx, s.tx, organizationID, id, false)
}

// LockIncident reads an incident and locks its row.
func (s *txStore) LockIncident(ctx context.Context, organizationID, id string) (*domain.Incident, error) {
	return getIncident(ctx, s.tx, organizationID, id, true)
}

// GetActiveIncidentsByService returns all unresolved incidents of a service.
func (s *txStore) GetActiveIncidentsByService(ctx context.Context, serviceID string) ([]domain.Incident, error) {
	query := `SELECT ` + incidentColumns + ` FROM incidents WHERE service_id = $1 AND status <> 'RESOLVED'`
	return queryIncidents(ctx, s.tx, query, serviceID)
}

// CreateIncident inserts an incident together with its initial update.
func (s *txStore) CreateIncident(ctx context.Context, incident *domain.Incident, initial *domain.IncidentUpdate) error {
	query := `
		INSERT INTO incidents (
			organization_id, service_id, title, description, status, impact, resolved_at, created_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at
	`
	err := s.tx.QueryRow(ctx, query,
		incident.OrganizationID,
		incident.ServiceID,
		incident.Title,
		incident.Description,
		incident.Status,
		incident.Impact,
		incident.ResolvedAt,
		incident.CreatedBy,
	).Scan(&incident.ID, &incident.CreatedAt, &incident.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert incident: %w", err)
	}

	initial.IncidentID = incident.ID
	return s.AppendIncidentUpdate(ctx, initial)
}

// UpdateIncident persists all mutable incident fields.
func (s *txStore) UpdateIncident(ctx context.Context, incident *domain.Incident) error {
	query := `
		UPDATE incidents
		SET service_id = $3, title = $4, description = $5, status = $6, impact = $7,
		    resolved_at = $8, updated_at = NOW()
		WHERE id = $1 AND organization_id = $2
		RETURNING updated_at
	`
	err := s.tx.QueryRow(ctx, query,
		incident.ID,
		incident.OrganizationID,
		incident.ServiceID,
		incident.Title,
		incident.Description,
		incident.Status,
		incident.Impact,
		incident.ResolvedAt,
	).Scan(&incident.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return incidents.ErrIncidentNotFound
		}
		return fmt.Errorf("update incident: %w", err)
	}
	return nil
}

// DeleteIncident removes an incident. Its updates are removed by cascade.
func (s *txStore) DeleteIncident(ctx context.Context, organizationID, id string) error {
	result, err := s.tx.Exec(ctx, `DELETE FROM incidents WHERE id = $1 AND organization_id = $2`, id, organizationID)
	if err != nil {
		return fmt.Errorf("delete incident: %w", err)
	}
	if result.RowsAffected() == 0 {
		return incidents.ErrIncidentNotFound
	}
	return nil
}

// AppendIncidentUpdate inserts a timeline entry.
func (s *txStore) AppendIncidentUpdate(ctx context.Context, update *domain.IncidentUpdate) error {
	query := `
		INSERT INTO incident_updates (incident_id, message, status, created_by)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`
	err := s.tx.QueryRow(ctx, query,
		update.IncidentID,
		update.Message,
		update.Status,
		update.CreatedBy,
	).Scan(&update.ID, &update.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert incident update: %w", err)
	}
	return nil
}

// GetServiceStatus reads the stored status of a service.
func (s *txStore) GetServiceStatus(ctx context.Context, serviceID string) (domain.ServiceStatus, error) {
	var status domain.ServiceStatus
	err := s.tx.QueryRow(ctx, `SELECT status FROM services WHERE id = $1`, serviceID).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", incidents.ErrServiceNotFound
		}
		return "", fmt.Errorf("get service status: %w", err)
	}
	return status, nil
}

// SetServiceStatus writes the derived status of a service.
func (s *txStore) SetServiceStatus(ctx context.Context, serviceID string, status domain.ServiceStatus) error {
	result, err := s.tx.Exec(ctx, `UPDATE services SET status = $2, updated_at = NOW() WHERE id = $1`, serviceID, status)
	if err != nil {
		return fmt.Errorf("update service status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return incidents.ErrServiceNotFound
	}
	return nil
}

// CreateStatusLogEntry records a derived status change.
func (s *txStore) CreateStatusLogEntry(ctx context.Context, entry *domain.ServiceStatusLogEntry) error {
	query := `
		INSERT INTO service_status_log (service_id, old_status, new_status, incident_id, reason, created_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`
	err := s.tx.QueryRow(ctx, query,
		entry.ServiceID,
		entry.OldStatus,
		entry.NewStatus,
		entry.IncidentID,
		entry.Reason,
		entry.CreatedBy,
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert status log entry: %w", err)
	}
	return nil
}

func getIncident(ctx context.Context, q querier, organizationID, id string, forUpdate bool) (*domain.Incident, error) {
	query := `SELECT ` + incidentColumns + ` FROM incidents WHERE id = $1 AND organization_id = $2`
	if forUpdate {
		query += " FOR UPDATE"
	}

	incident, err := scanIncident(q.QueryRow(ctx, query, id, organizationID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, incidents.ErrIncidentNotFound
		}
		return nil, fmt.Errorf("get incident: %w", err)
	}
	return incident, nil
}

func queryIncidents(ctx context.Context, q querier, query string, args ...any) ([]domain.Incident, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query incidents: %w", err)
	}
	defer rows.Close()

	list := make([]domain.Incident, 0)
	for rows.Next() {
		incident, err := scanIncident(rows)
		if err != nil {
			return nil, fmt.Errorf("scan incident: %w", err)
		}
		list = append(list, *incident)
	}
	return list, rows.Err()
}

func scanIncident(row pgx.Row) (*domain.Incident, error) {
	var incident domain.Incident
	err := row.Scan(
		&incident.ID,
		&incident.OrganizationID,
		&incident.ServiceID,
		&incident.Title,
		&incident.Description,
		&incident.Status,
		&incident.Impact,
		&incident.ResolvedAt,
		&incident.CreatedBy,
		&incident.CreatedAt,
		&incident.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &incident, nil
}

// translateError reports transaction collisions as conflicts so the
// controller can retry them.
func translateError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeSerializationFailure, codeDeadlockDetected:
			return fmt.Errorf("%w: %w", incidents.ErrConcurrentModification, err)
		}
	}
	return err
}

func uniqueSorted(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
