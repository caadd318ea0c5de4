// Package incidents implements the incident lifecycle and the derivation of
// service status from active incidents.
package incidents

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ayerhssb/status-page/internal/domain"
	"github.com/ayerhssb/status-page/internal/pkg/ctxlog"
)

const systemActor = "system"

// EventPublisher emits change notifications once a unit of work has committed.
type EventPublisher interface {
	Publish(ctx context.Context, organizationID string, name domain.EventName, payload domain.EventPayload) error
}

// Config contains controller configuration.
type Config struct {
	MaxConflictRetries int
	ConflictBackoff    time.Duration
}

// DefaultConfig returns default controller configuration.
func DefaultConfig() Config {
	return Config{
		MaxConflictRetries: 3,
		ConflictBackoff:    20 * time.Millisecond,
	}
}

// Service implements the incident lifecycle. Every operation runs as one
// atomic unit that mutates incidents and re-derives the status of each
// affected service before committing.
type Service struct {
	repo      Repository
	publisher EventPublisher
	config    Config
	now       func() time.Time
}

// NewService creates a new incident service. publisher may be nil.
func NewService(repo Repository, publisher EventPublisher, config Config) *Service {
	if config.MaxConflictRetries < 0 {
		config.MaxConflictRetries = 0
	}
	return &Service{
		repo:      repo,
		publisher: publisher,
		config:    config,
		now:       time.Now,
	}
}

// CreateIncidentInput holds data for creating an incident.
type CreateIncidentInput struct {
	ServiceID   string
	Title       string
	Description string
	Status      domain.IncidentStatus
	Impact      domain.IncidentImpact
}

func (in CreateIncidentInput) validate() error {
	if strings.TrimSpace(in.ServiceID) == "" {
		return ErrServiceRequired
	}
	if strings.TrimSpace(in.Title) == "" {
		return ErrTitleRequired
	}
	if strings.TrimSpace(in.Description) == "" {
		return ErrDescriptionRequired
	}
	if !in.Status.IsValid() {
		return ErrInvalidStatus
	}
	if !in.Impact.IsValid() {
		return ErrInvalidImpact
	}
	return nil
}

// UpdateIncidentInput holds the full replacement state of an incident.
type UpdateIncidentInput struct {
	ServiceID   string
	Title       string
	Description string
	Status      domain.IncidentStatus
	Impact      domain.IncidentImpact
}

func (in UpdateIncidentInput) validate() error {
	return CreateIncidentInput(in).validate()
}

// AddUpdateInput holds data for appending an update to an incident.
type AddUpdateInput struct {
	Message string
	Status  domain.IncidentStatus
}

func (in AddUpdateInput) validate() error {
	if strings.TrimSpace(in.Message) == "" {
		return ErrMessageRequired
	}
	if !in.Status.IsValid() {
		return ErrInvalidStatus
	}
	return nil
}

// RecomputeResult describes the outcome of re-deriving one service's status.
type RecomputeResult struct {
	ServiceID string               `json:"service_id"`
	Previous  domain.ServiceStatus `json:"previous_status"`
	Status    domain.ServiceStatus `json:"status"`
	Changed   bool                 `json:"changed"`
}

// CreateIncident creates an incident with its initial timeline entry.
func (s *Service) CreateIncident(ctx context.Context, caller domain.Caller, input CreateIncidentInput) (*domain.Incident, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}

	var created *domain.Incident
	err := s.withConflictRetry(ctx, "create incident", func(ctx context.Context, tx Tx) error {
		if err := tx.LockServices(ctx, caller.OrganizationID, input.ServiceID); err != nil {
			return unknownService(err)
		}

		incident := &domain.Incident{
			OrganizationID: caller.OrganizationID,
			ServiceID:      input.ServiceID,
			Title:          input.Title,
			Description:    input.Description,
			Status:         input.Status,
			Impact:         input.Impact,
			CreatedBy:      caller.UserID,
		}
		if input.Status == domain.IncidentStatusResolved {
			now := s.now().UTC()
			incident.ResolvedAt = &now
		}

		initial := &domain.IncidentUpdate{
			Message:   fmt.Sprintf("Incident created: %s", input.Description),
			Status:    input.Status,
			CreatedBy: caller.UserID,
		}
		if err := tx.CreateIncident(ctx, incident, initial); err != nil {
			return fmt.Errorf("create incident: %w", err)
		}

		reason := fmt.Sprintf("Incident created: %s", incident.Title)
		if _, err := s.recompute(ctx, tx, input.ServiceID, &incident.ID, reason, caller.UserID); err != nil {
			return err
		}

		incident.Updates = []domain.IncidentUpdate{*initial}
		created = incident
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, caller.OrganizationID, domain.EventIncidentCreated, domain.EventPayload{
		IncidentID: created.ID,
		ServiceID:  created.ServiceID,
		Status:     string(created.Status),
		Impact:     created.Impact,
	})

	return created, nil
}

// UpdateIncident replaces an incident's fields. A status change appends one
// timeline entry. When the incident moves to another service both services
// are re-derived.
func (s *Service) UpdateIncident(ctx context.Context, caller domain.Caller, id string, input UpdateIncidentInput) (*domain.Incident, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}

	var (
		updated           *domain.Incident
		previousServiceID string
	)
	err := s.withConflictRetry(ctx, "update incident", func(ctx context.Context, tx Tx) error {
		current, err := tx.GetIncident(ctx, caller.OrganizationID, id)
		if err != nil {
			return err
		}

		if err := tx.LockServices(ctx, caller.OrganizationID, current.ServiceID, input.ServiceID); err != nil {
			return unknownService(err)
		}

		incident, err := tx.LockIncident(ctx, caller.OrganizationID, id)
		if err != nil {
			return err
		}
		if incident.ServiceID != current.ServiceID {
			return ErrConcurrentModification
		}

		if incident.Status == domain.IncidentStatusResolved && input.Status != domain.IncidentStatusResolved {
			return ErrIncidentResolved
		}

		statusChanged := incident.Status != input.Status
		oldServiceID := incident.ServiceID

		incident.ServiceID = input.ServiceID
		incident.Title = input.Title
		incident.Description = input.Description
		incident.Impact = input.Impact
		s.applyStatus(incident, input.Status)

		if err := tx.UpdateIncident(ctx, incident); err != nil {
			return fmt.Errorf("update incident: %w", err)
		}

		if statusChanged {
			update := &domain.IncidentUpdate{
				IncidentID: incident.ID,
				Message:    fmt.Sprintf("Status changed to %s", input.Status),
				Status:     input.Status,
				CreatedBy:  caller.UserID,
			}
			if err := tx.AppendIncidentUpdate(ctx, update); err != nil {
				return fmt.Errorf("append incident update: %w", err)
			}
		}

		reason := fmt.Sprintf("Incident updated: %s", incident.Title)
		for _, serviceID := range uniqueSorted(oldServiceID, incident.ServiceID) {
			if _, err := s.recompute(ctx, tx, serviceID, &incident.ID, reason, caller.UserID); err != nil {
				return err
			}
		}

		updated = incident
		previousServiceID = ""
		if oldServiceID != incident.ServiceID {
			previousServiceID = oldServiceID
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, caller.OrganizationID, domain.EventIncidentUpdated, domain.EventPayload{
		IncidentID:        updated.ID,
		ServiceID:         updated.ServiceID,
		PreviousServiceID: previousServiceID,
		Status:            string(updated.Status),
		Impact:            updated.Impact,
	})

	return updated, nil
}

// AddIncidentUpdate appends an operator statement to the incident's timeline
// and moves the incident to the stated status.
func (s *Service) AddIncidentUpdate(ctx context.Context, caller domain.Caller, incidentID string, input AddUpdateInput) (*domain.IncidentUpdate, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}

	var (
		appended *domain.IncidentUpdate
		incident *domain.Incident
	)
	err := s.withConflictRetry(ctx, "add incident update", func(ctx context.Context, tx Tx) error {
		current, err := tx.GetIncident(ctx, caller.OrganizationID, incidentID)
		if err != nil {
			return err
		}

		if err := tx.LockServices(ctx, caller.OrganizationID, current.ServiceID); err != nil {
			return err
		}

		locked, err := tx.LockIncident(ctx, caller.OrganizationID, incidentID)
		if err != nil {
			return err
		}
		if locked.ServiceID != current.ServiceID {
			return ErrConcurrentModification
		}

		if locked.Status == domain.IncidentStatusResolved && input.Status != domain.IncidentStatusResolved {
			return ErrIncidentResolved
		}

		update := &domain.IncidentUpdate{
			IncidentID: locked.ID,
			Message:    input.Message,
			Status:     input.Status,
			CreatedBy:  caller.UserID,
		}
		if err := tx.AppendIncidentUpdate(ctx, update); err != nil {
			return fmt.Errorf("append incident update: %w", err)
		}

		s.applyStatus(locked, input.Status)
		if err := tx.UpdateIncident(ctx, locked); err != nil {
			return fmt.Errorf("update incident: %w", err)
		}

		reason := fmt.Sprintf("Incident update: %s", locked.Title)
		if _, err := s.recompute(ctx, tx, locked.ServiceID, &locked.ID, reason, caller.UserID); err != nil {
			return err
		}

		appended = update
		incident = locked
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, caller.OrganizationID, domain.EventIncidentUpdated, domain.EventPayload{
		IncidentID: incident.ID,
		ServiceID:  incident.ServiceID,
		Status:     string(incident.Status),
		Impact:     incident.Impact,
		Update: &domain.UpdateSnapshot{
			ID:        appended.ID,
			Message:   appended.Message,
			Status:    appended.Status,
			CreatedAt: appended.CreatedAt,
		},
	})

	return appended, nil
}

// DeleteIncident removes an incident with its timeline and re-derives the
// status of the service it belonged to.
func (s *Service) DeleteIncident(ctx context.Context, caller domain.Caller, id string) error {
	var deleted *domain.Incident
	err := s.withConflictRetry(ctx, "delete incident", func(ctx context.Context, tx Tx) error {
		current, err := tx.GetIncident(ctx, caller.OrganizationID, id)
		if err != nil {
			return err
		}

		if err := tx.LockServices(ctx, caller.OrganizationID, current.ServiceID); err != nil {
			return err
		}

		locked, err := tx.LockIncident(ctx, caller.OrganizationID, id)
		if err != nil {
			return err
		}
		if locked.ServiceID != current.ServiceID {
			return ErrConcurrentModification
		}

		if err := tx.DeleteIncident(ctx, caller.OrganizationID, id); err != nil {
			return err
		}

		reason := fmt.Sprintf("Incident deleted: %s", locked.Title)
		if _, err := s.recompute(ctx, tx, locked.ServiceID, nil, reason, caller.UserID); err != nil {
			return err
		}

		deleted = locked
		return nil
	})
	if err != nil {
		return err
	}

	s.publish(ctx, caller.OrganizationID, domain.EventIncidentDeleted, domain.EventPayload{
		IncidentID: deleted.ID,
		ServiceID:  deleted.ServiceID,
		Status:     string(deleted.Status),
		Impact:     deleted.Impact,
	})

	return nil
}

// GetIncident returns an incident with its timeline.
func (s *Service) GetIncident(ctx context.Context, organizationID, id string) (*domain.Incident, error) {
	incident, err := s.repo.GetIncident(ctx, organizationID, id)
	if err != nil {
		return nil, err
	}

	updates, err := s.repo.ListIncidentUpdates(ctx, incident.ID)
	if err != nil {
		return nil, fmt.Errorf("list incident updates: %w", err)
	}
	incident.Updates = updates

	return incident, nil
}

// ListIncidents returns incidents matching the filter, newest first, with their timelines.
func (s *Service) ListIncidents(ctx context.Context, filter IncidentFilter) ([]domain.Incident, error) {
	list, err := s.repo.ListIncidents(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list incidents: %w", err)
	}

	if len(list) == 0 {
		return list, nil
	}

	ids := make([]string, len(list))
	for i := range list {
		ids[i] = list[i].ID
	}
	timelines, err := s.repo.ListUpdatesByIncidents(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("list incident updates: %w", err)
	}
	for i := range list {
		list[i].Updates = timelines[list[i].ID]
		if list[i].Updates == nil {
			list[i].Updates = []domain.IncidentUpdate{}
		}
	}

	return list, nil
}

// ListIncidentUpdates returns the timeline of an incident, oldest first.
func (s *Service) ListIncidentUpdates(ctx context.Context, organizationID, incidentID string) ([]domain.IncidentUpdate, error) {
	if _, err := s.repo.GetIncident(ctx, organizationID, incidentID); err != nil {
		return nil, err
	}
	return s.repo.ListIncidentUpdates(ctx, incidentID)
}

// RecomputeService re-derives the status of one service from its active incidents.
func (s *Service) RecomputeService(ctx context.Context, organizationID, serviceID, actor string) (*RecomputeResult, error) {
	var result *RecomputeResult
	err := s.withConflictRetry(ctx, "recompute service", func(ctx context.Context, tx Tx) error {
		if err := tx.LockServices(ctx, organizationID, serviceID); err != nil {
			return err
		}
		r, err := s.recompute(ctx, tx, serviceID, nil, "Status recomputed", actor)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publishRepair(ctx, organizationID, result)
	return result, nil
}

// RecomputeAll re-derives every service status, one service per unit of work.
// An empty organizationID covers all organizations.
func (s *Service) RecomputeAll(ctx context.Context, organizationID string) ([]RecomputeResult, error) {
	refs, err := s.repo.ListServiceRefs(ctx, organizationID)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}

	results := make([]RecomputeResult, 0, len(refs))
	var errs []error
	for _, ref := range refs {
		id := ref.ID
		if err := ctx.Err(); err != nil {
			return results, err
		}

		var result *RecomputeResult
		err := s.withConflictRetry(ctx, "reconcile service", func(ctx context.Context, tx Tx) error {
			if err := tx.LockServices(ctx, "", id); err != nil {
				return err
			}
			r, err := s.recompute(ctx, tx, id, nil, "Status reconciliation", systemActor)
			if err != nil {
				return err
			}
			result = r
			return nil
		})
		if err != nil {
			if errors.Is(err, ErrServiceNotFound) {
				continue
			}
			errs = append(errs, fmt.Errorf("service %s: %w", id, err))
			continue
		}
		s.publishRepair(ctx, ref.OrganizationID, result)
		results = append(results, *result)
	}

	return results, errors.Join(errs...)
}

// recompute re-derives a locked service's status and records the change.
func (s *Service) recompute(ctx context.Context, tx Tx, serviceID string, incidentID *string, reason, actor string) (*RecomputeResult, error) {
	active, err := tx.GetActiveIncidentsByService(ctx, serviceID)
	if err != nil {
		return nil, fmt.Errorf("get active incidents: %w", err)
	}

	target, err := DeriveServiceStatus(active)
	if err != nil {
		return nil, fmt.Errorf("derive status of service %s: %w", serviceID, err)
	}

	previous, err := tx.GetServiceStatus(ctx, serviceID)
	if err != nil {
		return nil, fmt.Errorf("get service status: %w", err)
	}

	result := &RecomputeResult{
		ServiceID: serviceID,
		Previous:  previous,
		Status:    target,
		Changed:   previous != target,
	}
	if !result.Changed {
		recordRecomputation("unchanged")
		return result, nil
	}

	if err := tx.SetServiceStatus(ctx, serviceID, target); err != nil {
		return nil, fmt.Errorf("set service status: %w", err)
	}

	if actor == "" {
		actor = systemActor
	}
	entry := &domain.ServiceStatusLogEntry{
		ServiceID:  serviceID,
		OldStatus:  previous,
		NewStatus:  target,
		IncidentID: incidentID,
		Reason:     reason,
		CreatedBy:  actor,
	}
	if err := tx.CreateStatusLogEntry(ctx, entry); err != nil {
		return nil, fmt.Errorf("create status log: %w", err)
	}

	recordRecomputation("changed")
	ctxlog.FromContext(ctx).Debug("service status changed",
		"service_id", serviceID,
		"old_status", previous,
		"new_status", target,
	)
	return result, nil
}

// applyStatus sets the incident status keeping resolved_at in step with it.
func (s *Service) applyStatus(incident *domain.Incident, status domain.IncidentStatus) {
	switch {
	case status != domain.IncidentStatusResolved:
		incident.ResolvedAt = nil
	case incident.Status != domain.IncidentStatusResolved || incident.ResolvedAt == nil:
		now := s.now().UTC()
		incident.ResolvedAt = &now
	}
	incident.Status = status
}

// withConflictRetry runs fn in a unit of work, retrying it a bounded number
// of times when the store reports a conflict.
func (s *Service) withConflictRetry(ctx context.Context, op string, fn func(ctx context.Context, tx Tx) error) error {
	logger := ctxlog.FromContext(ctx)

	var err error
	for attempt := 0; attempt <= s.config.MaxConflictRetries; attempt++ {
		if attempt > 0 {
			recordConflictRetry(op)
			logger.Warn("retrying after conflict",
				"operation", op,
				"attempt", attempt,
				"max_retries", s.config.MaxConflictRetries,
				"error", err,
			)
			if !sleep(ctx, s.config.ConflictBackoff*time.Duration(attempt)) {
				return fmt.Errorf("%s: %w", op, ctx.Err())
			}
		}

		err = s.repo.RunInTx(ctx, fn)
		if err == nil || !errors.Is(err, domain.ErrConflict) {
			return err
		}
	}

	return fmt.Errorf("%s: retries exhausted: %w", op, err)
}

// publishRepair announces a repaired status as incident-updated with a
// service-only payload, so observers refetch.
func (s *Service) publishRepair(ctx context.Context, organizationID string, result *RecomputeResult) {
	if !result.Changed {
		return
	}
	s.publish(ctx, organizationID, domain.EventIncidentUpdated, domain.EventPayload{
		ServiceID: result.ServiceID,
		Status:    string(result.Status),
	})
}

func (s *Service) publish(ctx context.Context, organizationID string, name domain.EventName, payload domain.EventPayload) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, organizationID, name, payload); err != nil {
		ctxlog.FromContext(ctx).Warn("failed to publish event",
			"event", name,
			"organization_id", organizationID,
			"service_id", payload.ServiceID,
			"error", err,
		)
	}
}

// unknownService turns a missing service into a validation failure of the request.
func unknownService(err error) error {
	if errors.Is(err, ErrServiceNotFound) {
		return ErrUnknownService
	}
	return err
}

func uniqueSorted(ids ...string) []string {
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

// sleep waits for duration or context cancellation. Returns false if cancelled.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
