package registry

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/ajitpratap0/nebula-hubspot/pkg/connector/core"
	"github.com/ajitpratap0/nebula-hubspot/pkg/errors"
	"github.com/ajitpratap0/nebula-hubspot/pkg/logger"
)

// Registry manages resource registration and instantiation
type Registry struct {
	resources map[string]ResourceFactory
	mu        sync.RWMutex
	logger    *zap.Logger
}

// ResourceFactory creates a resource bound to the fetcher that will read
// its pages.
type ResourceFactory func(fetcher core.PageFetcher) core.Resource

// Global registry instance
var globalRegistry = NewRegistry()

// NewRegistry creates a new resource registry
func NewRegistry() *Registry {
	return &Registry{
		resources: make(map[string]ResourceFactory),
		logger:    logger.Get().With(zap.String("component", "resource_registry")),
	}
}

// RegisterResource registers a resource factory
func (r *Registry) RegisterResource(name string, factory ResourceFactory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.resources[name]; exists {
		return errors.New(errors.ErrorTypeConfig, fmt.Sprintf("resource %s already registered", name))
	}

	r.resources[name] = factory
	r.logger.Debug("resource registered", zap.String("name", name))
	return nil
}

// CreateResource creates a resource instance bound to fetcher
func (r *Registry) CreateResource(name string, fetcher core.PageFetcher) (core.Resource, error) {
	r.mu.RLock()
	factory, exists := r.resources[name]
	r.mu.RUnlock()

	if !exists {
		return nil, errors.New(errors.ErrorTypeConfig, fmt.Sprintf("resource %s not found", name)).
			WithDetail("available", r.ListResources())
	}

	return factory(fetcher), nil
}

// ListResources returns the registered resource names in sorted order
func (r *Registry) ListResources() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.resources))
	for name := range r.resources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasResource checks if a resource is registered
func (r *Registry) HasResource(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.resources[name]
	return exists
}

// Clear removes all registered resources (mainly for testing)
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resources = make(map[string]ResourceFactory)
}

// Global registry functions

// RegisterResource registers a resource in the global registry
func RegisterResource(name string, factory ResourceFactory) error {
	return globalRegistry.RegisterResource(name, factory)
}

// CreateResource creates a resource from the global registry
func CreateResource(name string, fetcher core.PageFetcher) (core.Resource, error) {
	return globalRegistry.CreateResource(name, fetcher)
}

// ListResources returns registered resources from the global registry
func ListResources() []string {
	return globalRegistry.ListResources()
}

// HasResource checks if a resource is registered in the global registry
func HasResource(name string) bool {
	return globalRegistry.HasResource(name)
}

// GetRegistry returns the global registry instance
func GetRegistry() *Registry {
	return globalRegistry
}
