package services

import (
	"sort"
	"sync"
)

// Service is an operator-facing view of one part of the running server: a
// status snapshot plus named actions.
type Service interface {
	Name() string
	Status() (any, error)
	Actions() map[string]Action
}

// Action executes a service command.
type Action func() (string, error)

// ServiceRegistry stores services by name.
type ServiceRegistry struct {
	repo map[string]Service
	mu   sync.RWMutex
}

// NewServiceRegistry initializes an empty service registry.
func NewServiceRegistry() *ServiceRegistry {
	return &ServiceRegistry{
		repo: make(map[string]Service),
	}
}

// Register adds a service to the registry by name.
func (sr *ServiceRegistry) Register(p Service) {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	sr.repo[p.Name()] = p
}

// All returns a snapshot of all registered services.
func (sr *ServiceRegistry) All() map[string]Service {
	sr.mu.RLock()
	defer sr.mu.RUnlock()
	out := make(map[string]Service, len(sr.repo))
	for name, svc := range sr.repo {
		out[name] = svc
	}
	return out
}

// Get returns a service by name.
func (sr *ServiceRegistry) Get(name string) (Service, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()
	p, ok := sr.repo[name]
	return p, ok
}

// Names lists registered services in order.
func (sr *ServiceRegistry) Names() []string {
	sr.mu.RLock()
	defer sr.mu.RUnlock()
	names := make([]string, 0, len(sr.repo))
	for name := range sr.repo {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
