package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/JakeFAU/pagewatch/internal/watch"
)

// MonitorStore keeps monitors in process memory for development and tests.
type MonitorStore struct {
	mu    sync.RWMutex
	byID  map[string]watch.Monitor
	byURL map[string]string
}

// NewMonitorStore constructs an empty MonitorStore.
func NewMonitorStore() *MonitorStore {
	return &MonitorStore{
		byID:  make(map[string]watch.Monitor),
		byURL: make(map[string]string),
	}
}

// Create stores m unless its URL is already watched.
func (s *MonitorStore) Create(_ context.Context, m watch.Monitor) (watch.Monitor, bool, error) {
	if m.ID == "" {
		return watch.Monitor{}, false, fmt.Errorf("monitor id is required")
	}
	if m.URL == "" {
		return watch.Monitor{}, false, fmt.Errorf("monitor url is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.byURL[m.URL]; ok {
		return cloneMonitor(s.byID[id]), false, nil
	}
	if _, exists := s.byID[m.ID]; exists {
		return watch.Monitor{}, false, fmt.Errorf("monitor %s already exists", m.ID)
	}
	stored := cloneMonitor(m)
	s.byID[m.ID] = stored
	s.byURL[m.URL] = m.ID
	return cloneMonitor(stored), true, nil
}

// GetByID returns the monitor with the given id.
func (s *MonitorStore) GetByID(_ context.Context, id string) (watch.Monitor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.byID[id]
	if !ok {
		return watch.Monitor{}, watch.ErrNotFound
	}
	return cloneMonitor(m), nil
}

// GetByURL returns the monitor watching url.
func (s *MonitorStore) GetByURL(_ context.Context, url string) (watch.Monitor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byURL[url]
	if !ok {
		return watch.Monitor{}, watch.ErrNotFound
	}
	return cloneMonitor(s.byID[id]), nil
}

// List returns every monitor ordered by creation time.
func (s *MonitorStore) List(_ context.Context) ([]watch.Monitor, error) {
	s.mu.RLock()
	out := make([]watch.Monitor, 0, len(s.byID))
	for _, m := range s.byID {
		out = append(out, cloneMonitor(m))
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// UpdateObservedValue records the outcome of a check.
func (s *MonitorStore) UpdateObservedValue(_ context.Context, id string, obs watch.Observation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byID[id]
	if !ok {
		return watch.ErrNotFound
	}
	m.LastValue = cloneString(obs.Value)
	confidence := obs.Confidence
	m.LastConfidence = &confidence
	checkedAt := obs.CheckedAt
	m.LastCheckedAt = &checkedAt
	m.ConditionMet = obs.ConditionMet
	s.byID[id] = m
	return nil
}

// UpdateExtractionRule caches an XPath rule for the monitor.
func (s *MonitorStore) UpdateExtractionRule(_ context.Context, id string, rule string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byID[id]
	if !ok {
		return watch.ErrNotFound
	}
	m.ExtractionRule = &rule
	s.byID[id] = m
	return nil
}

func cloneMonitor(m watch.Monitor) watch.Monitor {
	out := m
	out.LastValue = cloneString(m.LastValue)
	out.ExtractionRule = cloneString(m.ExtractionRule)
	if m.LastConfidence != nil {
		v := *m.LastConfidence
		out.LastConfidence = &v
	}
	if m.LastCheckedAt != nil {
		v := *m.LastCheckedAt
		out.LastCheckedAt = &v
	}
	return out
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
