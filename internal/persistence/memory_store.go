package persistence

import (
	"context"
	"sort"
	"sync"

	"github.com/petrijr/uiflow/pkg/api"
)

// InMemoryStore is a simple, goroutine-safe implementation of FlowStore,
// RunStore and AttemptStore backed by maps. Runs are copied on the way in
// and out so callers never share state with the store.
type InMemoryStore struct {
	mu       sync.RWMutex
	flows    map[string]api.FlowDefinition
	runs     map[string]*api.FlowRun
	attempts map[string][]api.AttemptEvent
}

// NewInMemoryStore creates a new InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		flows:    make(map[string]api.FlowDefinition),
		runs:     make(map[string]*api.FlowRun),
		attempts: make(map[string][]api.AttemptEvent),
	}
}

// Ensure InMemoryStore implements the interfaces.
var (
	_ FlowStore    = (*InMemoryStore)(nil)
	_ RunStore     = (*InMemoryStore)(nil)
	_ AttemptStore = (*InMemoryStore)(nil)
)

func (s *InMemoryStore) SaveFlow(def api.FlowDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.flows[def.Name] = def
	return nil
}

func (s *InMemoryStore) GetFlow(name string) (api.FlowDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	def, ok := s.flows[name]
	if !ok {
		return api.FlowDefinition{}, ErrFlowNotFound
	}

	return def, nil
}

func (s *InMemoryStore) ListFlows() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.flows))
	for name := range s.flows {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *InMemoryStore) SaveRun(run *api.FlowRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs[run.ID] = cloneRun(run)
	return nil
}

func (s *InMemoryStore) UpdateRun(run *api.FlowRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runs[run.ID]; !ok {
		return ErrRunNotFound
	}

	s.runs[run.ID] = cloneRun(run)
	return nil
}

func (s *InMemoryStore) GetRun(id string) (*api.FlowRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok {
		return nil, ErrRunNotFound
	}

	return cloneRun(run), nil
}

func (s *InMemoryStore) ListRuns(filter RunFilter) ([]*api.FlowRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*api.FlowRun

	for _, run := range s.runs {
		if filter.FlowName != "" && run.Name != filter.FlowName {
			continue
		}
		if filter.Status != "" && run.Status != filter.Status {
			continue
		}
		result = append(result, cloneRun(run))
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].StartedAt.Equal(result[j].StartedAt) {
			return result[i].StartedAt.After(result[j].StartedAt)
		}
		return result[i].ID < result[j].ID
	})
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}

	return result, nil
}

func (s *InMemoryStore) AppendAttempt(ctx context.Context, ev api.AttemptEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.attempts[ev.RunID] = append(s.attempts[ev.RunID], ev)
	return nil
}

func (s *InMemoryStore) ListAttempts(ctx context.Context, runID string) ([]api.AttemptEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]api.AttemptEvent(nil), s.attempts[runID]...), nil
}

func cloneRun(run *api.FlowRun) *api.FlowRun {
	cp := *run
	if run.StepResults != nil {
		cp.StepResults = make(map[int]any, len(run.StepResults))
		for k, v := range run.StepResults {
			cp.StepResults[k] = v
		}
	}
	return &cp
}
