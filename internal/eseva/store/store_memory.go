package store

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"
	"time"

	"eseva/internal/eseva/models"
	id "eseva/pkg/domain"
	"eseva/pkg/platform/sentinel"
)

// Error Contract:
// - ErrNotFound when the application does not exist
// InMemoryStore keeps applications and documents in maps. RunInTx serializes
// transactions and undoes their inserts when fn fails.
type InMemoryStore struct {
	txMu sync.Mutex

	mu     sync.RWMutex
	apps   map[id.ApplicationID]*models.Application
	docs   map[id.ApplicationID][]*models.Document
	seq    map[id.ApplicationID]int64
	nextID int64
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		apps: make(map[id.ApplicationID]*models.Application),
		docs: make(map[id.ApplicationID][]*models.Document),
		seq:  make(map[id.ApplicationID]int64),
	}
}

type journalKey struct{}

type journal struct {
	apps []id.ApplicationID
	docs map[id.ApplicationID]int
}

func journalFrom(ctx context.Context) *journal {
	j, _ := ctx.Value(journalKey{}).(*journal)
	return j
}

func (s *InMemoryStore) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	j := &journal{docs: make(map[id.ApplicationID]int)}
	if err := fn(context.WithValue(ctx, journalKey{}, j)); err != nil {
		s.rollback(j)
		return err
	}
	return nil
}

func (s *InMemoryStore) rollback(j *journal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for appID, n := range j.docs {
		docs := s.docs[appID]
		s.docs[appID] = docs[:len(docs)-n]
		if len(s.docs[appID]) == 0 {
			delete(s.docs, appID)
		}
	}
	for _, appID := range j.apps {
		delete(s.apps, appID)
		delete(s.seq, appID)
	}
}

func cloneApp(a *models.Application) *models.Application {
	cp := *a
	cp.ApplicantDetails = maps.Clone(a.ApplicantDetails)
	return &cp
}

func (s *InMemoryStore) CreateApplication(ctx context.Context, app *models.Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.apps[app.ID]; exists {
		return fmt.Errorf("application exists: %w", sentinel.ErrConflict)
	}
	s.apps[app.ID] = cloneApp(app)
	s.nextID++
	s.seq[app.ID] = s.nextID
	if j := journalFrom(ctx); j != nil {
		j.apps = append(j.apps, app.ID)
	}
	return nil
}

func (s *InMemoryStore) CreateDocuments(ctx context.Context, docs []*models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j := journalFrom(ctx)
	for _, d := range docs {
		if _, ok := s.apps[d.ApplicationID]; !ok {
			return fmt.Errorf("document owner missing: %w", sentinel.ErrNotFound)
		}
	}
	for _, d := range docs {
		cp := *d
		s.docs[d.ApplicationID] = append(s.docs[d.ApplicationID], &cp)
		if j != nil {
			j.docs[d.ApplicationID]++
		}
	}
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, appID id.ApplicationID) (*models.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	app, ok := s.apps[appID]
	if !ok {
		return nil, fmt.Errorf("application not found: %w", sentinel.ErrNotFound)
	}
	return cloneApp(app), nil
}

// ListAll returns every application, newest first.
func (s *InMemoryStore) ListAll(_ context.Context) ([]*models.Application, error) {
	return s.list(func(*models.Application) bool { return true }), nil
}

// ListByUser returns the user's applications, newest first.
func (s *InMemoryStore) ListByUser(_ context.Context, userID id.UserID) ([]*models.Application, error) {
	return s.list(func(a *models.Application) bool { return a.UserID == userID }), nil
}

func (s *InMemoryStore) list(keep func(*models.Application) bool) []*models.Application {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Application, 0, len(s.apps))
	for _, app := range s.apps {
		if keep(app) {
			out = append(out, cloneApp(app))
		}
	}
	// Insertion sequence breaks ties between identical timestamps.
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return s.seq[out[i].ID] > s.seq[out[j].ID]
	})
	return out
}

func (s *InMemoryStore) UpdateStatus(_ context.Context, appID id.ApplicationID, status models.Status, adminID id.UserID, remarks string) (*models.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	app, ok := s.apps[appID]
	if !ok {
		return nil, fmt.Errorf("application not found: %w", sentinel.ErrNotFound)
	}
	app.Status = status
	app.AdminID = &adminID
	app.AdminRemarks = &remarks
	return cloneApp(app), nil
}

func (s *InMemoryStore) MarkProcessed(_ context.Context, appID id.ApplicationID, agentID id.UserID, remarks string, at time.Time) (*models.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	app, ok := s.apps[appID]
	if !ok {
		return nil, fmt.Errorf("application not found: %w", sentinel.ErrNotFound)
	}
	app.Status = models.StatusProcessed
	app.AgentID = &agentID
	app.AgentRemarks = &remarks
	app.ProcessedAt = &at
	return cloneApp(app), nil
}

func (s *InMemoryStore) ListDocuments(_ context.Context, appID id.ApplicationID) ([]*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	docs := s.docs[appID]
	out := make([]*models.Document, 0, len(docs))
	for _, d := range docs {
		cp := *d
		out = append(out, &cp)
	}
	return out, nil
}
