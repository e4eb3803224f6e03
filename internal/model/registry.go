package model

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"conductor/internal/logging"
	"conductor/internal/types"
)

// Spec identifies a configured model.
type Spec struct {
	Provider string
	Model    string
	APIKey   string
	Timeout  time.Duration
}

// key identifies the built client. The API key enters only as a short
// fingerprint, so rotating it or changing the timeout builds a new pair.
func (s Spec) key() string {
	sum := sha256.Sum256([]byte(s.APIKey))
	return fmt.Sprintf("%s#%s#%s", s.label(), hex.EncodeToString(sum[:4]), s.Timeout)
}

// label is the loggable part of the key.
func (s Spec) label() string {
	return s.Provider + "/" + s.Model
}

// Pair bundles the adapter and drafter built for one Spec.
type Pair struct {
	Adapter types.ModelAdapter
	Drafter types.GraphDrafter
}

// Factory builds a Pair for a Spec.
type Factory func(ctx context.Context, spec Spec) (Pair, error)

// Registry caches adapter instances by provider, model, key and timeout so that config reloads
// and repeated turns reuse clients. It holds at most maxEntries pairs and
// drops the least recently built one when full.
type Registry struct {
	mu         sync.Mutex
	factory    Factory
	maxEntries int
	pairs      map[string]Pair
	order      []string
}

// NewRegistry creates a registry. A nil factory uses GeminiFactory.
func NewRegistry(factory Factory, maxEntries int) *Registry {
	if factory == nil {
		factory = GeminiFactory
	}
	if maxEntries <= 0 {
		maxEntries = 4
	}
	return &Registry{
		factory:    factory,
		maxEntries: maxEntries,
		pairs:      make(map[string]Pair),
	}
}

// Get returns the cached pair for spec, building it on first use. Provider
// "none" and the empty provider yield an empty Pair.
func (r *Registry) Get(ctx context.Context, spec Spec) (Pair, error) {
	if spec.Provider == "" || spec.Provider == "none" {
		return Pair{}, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	k := spec.key()
	if p, ok := r.pairs[k]; ok {
		return p, nil
	}

	p, err := r.factory(ctx, spec)
	if err != nil {
		return Pair{}, fmt.Errorf("failed to build %s adapter: %w", spec.label(), err)
	}
	logging.Model("registry: built adapter %s", spec.label())

	r.pairs[k] = p
	r.order = append(r.order, k)
	for len(r.order) > r.maxEntries {
		oldest := r.order[0]
		r.order = r.order[1:]
		delete(r.pairs, oldest)
		logging.Get(logging.CategoryModel).Debug("registry: dropped adapter %s", oldest)
	}
	return p, nil
}

// Len returns the number of cached pairs.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pairs)
}

// GeminiFactory builds Gemini adapters.
func GeminiFactory(ctx context.Context, spec Spec) (Pair, error) {
	switch spec.Provider {
	case "gemini":
		a, err := NewGeminiAdapter(ctx, spec.APIKey, spec.Model, spec.Timeout)
		if err != nil {
			return Pair{}, err
		}
		return Pair{Adapter: a, Drafter: NewGeminiDrafter(a)}, nil
	}
	return Pair{}, fmt.Errorf("unsupported model provider %q", spec.Provider)
}
