package incidents

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ayerhssb/status-page/internal/domain"
	"github.com/google/uuid"
)

type fakeService struct {
	organizationID string
	status         domain.ServiceStatus
}

// fakeStore is an in-memory Repository. Each service has its own lock held
// for the rest of the unit of work once taken, and every service-scoped read
// or write fails unless the unit of work holds that service's lock.
type fakeStore struct {
	mu        sync.Mutex
	services  map[string]*fakeService
	incidents map[string]domain.Incident
	updates   map[string][]domain.IncidentUpdate
	statusLog []domain.ServiceStatusLogEntry
	clock     time.Time

	locks map[string]*sync.Mutex

	// conflicts makes the next N units of work fail with a conflict after
	// fn has run, discarding everything they wrote.
	conflicts int
	txCount   int

	batchUpdateQueries int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		services:  make(map[string]*fakeService),
		incidents: make(map[string]domain.Incident),
		updates:   make(map[string][]domain.IncidentUpdate),
		locks:     make(map[string]*sync.Mutex),
		clock:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (f *fakeStore) addService(organizationID string) string {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := uuid.NewString()
	f.services[id] = &fakeService{organizationID: organizationID, status: domain.ServiceStatusOperational}
	f.locks[id] = &sync.Mutex{}
	return id
}

func (f *fakeStore) serviceStatus(id string) domain.ServiceStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.services[id].status
}

// corruptServiceStatus writes a status bypassing recomputation.
func (f *fakeStore) corruptServiceStatus(id string, status domain.ServiceStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.services[id].status = status
}

func (f *fakeStore) incident(id string) (domain.Incident, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	inc, ok := f.incidents[id]
	return inc, ok
}

func (f *fakeStore) updateCount(incidentID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.updates[incidentID])
}

func (f *fakeStore) incidentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.incidents)
}

func (f *fakeStore) statusLogFor(serviceID string) []domain.ServiceStatusLogEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.ServiceStatusLogEntry
	for _, e := range f.statusLog {
		if e.ServiceID == serviceID {
			out = append(out, e)
		}
	}
	return out
}

// serviceIncidents returns every stored incident of a service.
func (f *fakeStore) serviceIncidents(serviceID string) []domain.Incident {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Incident
	for _, inc := range f.incidents {
		if inc.ServiceID == serviceID {
			out = append(out, inc)
		}
	}
	return out
}

func (f *fakeStore) tick() time.Time {
	f.clock = f.clock.Add(time.Millisecond)
	return f.clock
}

func (f *fakeStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	f.mu.Lock()
	f.txCount++
	injectConflict := f.conflicts > 0
	if injectConflict {
		f.conflicts--
	}
	f.mu.Unlock()

	tx := &fakeTx{store: f, locked: make(map[string]bool)}
	defer tx.release()

	err := fn(ctx, tx)
	if err == nil && injectConflict {
		err = fmt.Errorf("commit transaction: %w", ErrConcurrentModification)
	}
	if err != nil {
		tx.rollback()
		return err
	}
	return nil
}

func (f *fakeStore) GetIncident(_ context.Context, organizationID, id string) (*domain.Incident, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.getIncidentLocked(organizationID, id)
}

func (f *fakeStore) getIncidentLocked(organizationID, id string) (*domain.Incident, error) {
	inc, ok := f.incidents[id]
	if !ok || inc.OrganizationID != organizationID {
		return nil, ErrIncidentNotFound
	}
	return &inc, nil
}

func (f *fakeStore) ListIncidents(_ context.Context, filter IncidentFilter) ([]domain.Incident, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	list := make([]domain.Incident, 0)
	for _, inc := range f.incidents {
		if inc.OrganizationID != filter.OrganizationID {
			continue
		}
		if filter.ServiceID != nil && inc.ServiceID != *filter.ServiceID {
			continue
		}
		if filter.Status != nil && inc.Status != *filter.Status {
			continue
		}
		if filter.ActiveOnly && !inc.IsActive() {
			continue
		}
		if filter.CreatedSince != nil && inc.CreatedAt.Before(*filter.CreatedSince) {
			continue
		}
		list = append(list, inc)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })

	if filter.Offset > 0 {
		if filter.Offset >= len(list) {
			return []domain.Incident{}, nil
		}
		list = list[filter.Offset:]
	}
	if filter.Limit > 0 && len(list) > filter.Limit {
		list = list[:filter.Limit]
	}
	return list, nil
}

func (f *fakeStore) ListIncidentUpdates(_ context.Context, incidentID string) ([]domain.IncidentUpdate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.IncidentUpdate, len(f.updates[incidentID]))
	copy(out, f.updates[incidentID])
	return out, nil
}

func (f *fakeStore) ListUpdatesByIncidents(_ context.Context, incidentIDs []string) (map[string][]domain.IncidentUpdate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batchUpdateQueries++
	out := make(map[string][]domain.IncidentUpdate, len(incidentIDs))
	for _, id := range incidentIDs {
		if updates := f.updates[id]; len(updates) > 0 {
			out[id] = append([]domain.IncidentUpdate(nil), updates...)
		}
	}
	return out, nil
}

func (f *fakeStore) ListServiceRefs(_ context.Context, organizationID string) ([]ServiceRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	refs := make([]ServiceRef, 0, len(f.services))
	for id, svc := range f.services {
		if organizationID == "" || svc.organizationID == organizationID {
			refs = append(refs, ServiceRef{ID: id, OrganizationID: svc.organizationID})
		}
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].ID < refs[j].ID })
	return refs, nil
}

type fakeTx struct {
	store  *fakeStore
	locked map[string]bool
	held   []*sync.Mutex
	undo   []func()
}

func (t *fakeTx) release() {
	for i := len(t.held) - 1; i >= 0; i-- {
		t.held[i].Unlock()
	}
	t.held = nil
}

func (t *fakeTx) rollback() {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

func (t *fakeTx) requireLocked(serviceID string) error {
	if !t.locked[serviceID] {
		return fmt.Errorf("service %s accessed without holding its lock", serviceID)
	}
	return nil
}

func (t *fakeTx) LockServices(_ context.Context, organizationID string, serviceIDs ...string) error {
	ids := uniqueSorted(serviceIDs...)

	t.store.mu.Lock()
	mutexes := make([]*sync.Mutex, 0, len(ids))
	for _, id := range ids {
		svc, ok := t.store.services[id]
		if !ok || (organizationID != "" && svc.organizationID != organizationID) {
			t.store.mu.Unlock()
			return ErrServiceNotFound
		}
		mutexes = append(mutexes, t.store.locks[id])
	}
	t.store.mu.Unlock()

	for i, id := range ids {
		if t.locked[id] {
			continue
		}
		mutexes[i].Lock()
		t.held = append(t.held, mutexes[i])
		t.locked[id] = true
	}
	return nil
}

func (t *fakeTx) GetIncident(_ context.Context, organizationID, id string) (*domain.Incident, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	return t.store.getIncidentLocked(organizationID, id)
}

func (t *fakeTx) LockIncident(_ context.Context, organizationID, id string) (*domain.Incident, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	return t.store.getIncidentLocked(organizationID, id)
}

func (t *fakeTx) GetActiveIncidentsByService(_ context.Context, serviceID string) ([]domain.Incident, error) {
	if err := t.requireLocked(serviceID); err != nil {
		return nil, err
	}

	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	var out []domain.Incident
	for _, inc := range t.store.incidents {
		if inc.ServiceID == serviceID && inc.IsActive() {
			out = append(out, inc)
		}
	}
	return out, nil
}

func (t *fakeTx) CreateIncident(_ context.Context, incident *domain.Incident, initial *domain.IncidentUpdate) error {
	if err := t.requireLocked(incident.ServiceID); err != nil {
		return err
	}

	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	now := t.store.tick()
	incident.ID = uuid.NewString()
	incident.CreatedAt = now
	incident.UpdatedAt = now
	stored := *incident
	stored.Updates = nil
	t.store.incidents[incident.ID] = stored

	initial.ID = uuid.NewString()
	initial.IncidentID = incident.ID
	initial.CreatedAt = now
	t.store.updates[incident.ID] = []domain.IncidentUpdate{*initial}

	id := incident.ID
	t.undo = append(t.undo, func() {
		delete(t.store.incidents, id)
		delete(t.store.updates, id)
	})
	return nil
}

func (t *fakeTx) UpdateIncident(_ context.Context, incident *domain.Incident) error {
	t.store.mu.Lock()
	old, err := t.store.getIncidentLocked(incident.OrganizationID, incident.ID)
	t.store.mu.Unlock()
	if err != nil {
		return err
	}
	if err := t.requireLocked(old.ServiceID); err != nil {
		return err
	}
	if err := t.requireLocked(incident.ServiceID); err != nil {
		return err
	}

	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	incident.UpdatedAt = t.store.tick()
	stored := *incident
	stored.Updates = nil
	t.store.incidents[incident.ID] = stored

	previous := *old
	t.undo = append(t.undo, func() { t.store.incidents[previous.ID] = previous })
	return nil
}

func (t *fakeTx) DeleteIncident(_ context.Context, organizationID, id string) error {
	t.store.mu.Lock()
	old, err := t.store.getIncidentLocked(organizationID, id)
	t.store.mu.Unlock()
	if err != nil {
		return err
	}
	if err := t.requireLocked(old.ServiceID); err != nil {
		return err
	}

	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	previous := *old
	previousUpdates := t.store.updates[id]
	delete(t.store.incidents, id)
	delete(t.store.updates, id)
	t.undo = append(t.undo, func() {
		t.store.incidents[previous.ID] = previous
		t.store.updates[previous.ID] = previousUpdates
	})
	return nil
}

func (t *fakeTx) AppendIncidentUpdate(_ context.Context, update *domain.IncidentUpdate) error {
	t.store.mu.Lock()
	inc, ok := t.store.incidents[update.IncidentID]
	t.store.mu.Unlock()
	if !ok {
		return ErrIncidentNotFound
	}
	if err := t.requireLocked(inc.ServiceID); err != nil {
		return err
	}

	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	update.ID = uuid.NewString()
	update.CreatedAt = t.store.tick()
	n := len(t.store.updates[update.IncidentID])
	t.store.updates[update.IncidentID] = append(t.store.updates[update.IncidentID], *update)

	incidentID := update.IncidentID
	t.undo = append(t.undo, func() {
		t.store.updates[incidentID] = t.store.updates[incidentID][:n]
	})
	return nil
}

func (t *fakeTx) GetServiceStatus(_ context.Context, serviceID string) (domain.ServiceStatus, error) {
	if err := t.requireLocked(serviceID); err != nil {
		return "", err
	}

	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	svc, ok := t.store.services[serviceID]
	if !ok {
		return "", ErrServiceNotFound
	}
	return svc.status, nil
}

func (t *fakeTx) SetServiceStatus(_ context.Context, serviceID string, status domain.ServiceStatus) error {
	if err := t.requireLocked(serviceID); err != nil {
		return err
	}

	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	svc, ok := t.store.services[serviceID]
	if !ok {
		return ErrServiceNotFound
	}
	previous := svc.status
	svc.status = status
	t.undo = append(t.undo, func() { svc.status = previous })
	return nil
}

func (t *fakeTx) CreateStatusLogEntry(_ context.Context, entry *domain.ServiceStatusLogEntry) error {
	if err := t.requireLocked(entry.ServiceID); err != nil {
		return err
	}

	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	entry.ID = uuid.NewString()
	entry.CreatedAt = t.store.tick()
	n := len(t.store.statusLog)
	t.store.statusLog = append(t.store.statusLog, *entry)
	t.undo = append(t.undo, func() { t.store.statusLog = t.store.statusLog[:n] })
	return nil
}

type publishedEvent struct {
	organizationID string
	name           domain.EventName
	payload        domain.EventPayload
}

type fakePublisher struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error
	// onPublish runs before the event is recorded.
	onPublish func(publishedEvent)
}

func (p *fakePublisher) Publish(_ context.Context, organizationID string, name domain.EventName, payload domain.EventPayload) error {
	ev := publishedEvent{organizationID: organizationID, name: name, payload: payload}
	if p.onPublish != nil {
		p.onPublish(ev)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *fakePublisher) recorded() []publishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]publishedEvent, len(p.events))
	copy(out, p.events)
	return out
}
