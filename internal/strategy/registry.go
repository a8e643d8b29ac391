package strategy

import (
	"sort"
	"sync"

	"github.com/newthinker/cta/internal/core"
	"go.uber.org/zap"
)

// Registry maps strategy class names to factories
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	logger    *zap.Logger
}

// NewRegistry creates an empty registry
func NewRegistry(logger ...*zap.Logger) *Registry {
	var l *zap.Logger
	if len(logger) > 0 && logger[0] != nil {
		l = logger[0]
	} else {
		l = zap.NewNop()
	}
	return &Registry{
		factories: make(map[string]Factory),
		logger:    l,
	}
}

// Register adds a strategy class, replacing any previous one with the same name
func (r *Registry) Register(class string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[class]; ok {
		r.logger.Warn("replacing strategy class", zap.String("class", class))
	}
	r.factories[class] = f
}

// Get retrieves a factory by class name
func (r *Registry) Get(class string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[class]
	return f, ok
}

// Names returns all registered class names, sorted
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New builds an instance of class bound to host
func (r *Registry) New(class string, host Host, setting Setting) (Template, error) {
	f, ok := r.Get(class)
	if !ok {
		return nil, core.WrapError(core.ErrStrategyNotFound, errUnknownClass(class))
	}
	return f(host, setting)
}
