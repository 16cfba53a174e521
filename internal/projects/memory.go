// Package projects provides an in-memory project store.
package projects

import (
	"context"
	"fmt"
	"sync"

	"github.com/luciancaetano/vowsock"
)

// MemoryStore is a ProjectStore keyed by project name.
type MemoryStore struct {
	mu       sync.RWMutex
	projects map[string]vowsock.Project
}

// NewMemoryStore creates a store holding projects.
func NewMemoryStore(projects ...vowsock.Project) *MemoryStore {
	s := &MemoryStore{projects: make(map[string]vowsock.Project, len(projects))}
	for _, p := range projects {
		s.projects[p.Name] = p
	}
	return s
}

// Put adds or replaces a project.
func (s *MemoryStore) Put(p vowsock.Project) error {
	if p.Name == "" {
		return fmt.Errorf("project %q: empty name", p.ID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projects[p.Name] = p
	return nil
}

// Delete removes a project by name.
func (s *MemoryStore) Delete(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.projects, name)
}

// FindByName returns the project named name.
func (s *MemoryStore) FindByName(ctx context.Context, name string) (vowsock.Project, error) {
	if err := ctx.Err(); err != nil {
		return vowsock.Project{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[name]
	if !ok {
		return vowsock.Project{}, vowsock.ErrNonexistentProject
	}
	return p, nil
}
