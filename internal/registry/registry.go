// Package registry holds validated schemas keyed by effective date and
// resolves the schema that applies to an extract date.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/cpsdecode/cpsdecode/internal/errors"
	"github.com/cpsdecode/cpsdecode/pkg/types"
)

// Registry is an immutable, date-ordered set of schemas. It is safe for
// concurrent use. Schemas returned by it must not be modified.
type Registry struct {
	dates   []types.YearMonth
	schemas []*types.Schema
}

// Builder collects schemas before a Registry is frozen. Register may be
// called from multiple goroutines.
type Builder struct {
	mu      sync.Mutex
	schemas map[types.YearMonth]*types.Schema
	frozen  bool
}

// NewBuilder creates an empty builder.
func NewBuilder() *Builder {
	return &Builder{schemas: make(map[types.YearMonth]*types.Schema)}
}

// Register adds a copy of s. Registering a second schema for an effective
// date that is already taken fails with DUPLICATE_EFFECTIVE_DATE.
func (b *Builder) Register(s *types.Schema) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.frozen {
		return errors.NewInternalError("register after freeze", nil)
	}
	if existing, ok := b.schemas[s.EffectiveDate]; ok {
		return errors.NewRegistryError(errors.CodeDuplicateEffectiveDate,
			fmt.Sprintf("effective date %s already registered by %s", s.EffectiveDate, existing.Vintage)).
			WithDetails(map[string]interface{}{"vintage": s.Vintage, "effective_date": s.EffectiveDate.String()})
	}
	b.schemas[s.EffectiveDate] = s.Clone()
	return nil
}

// Freeze returns the registry built so far. The builder rejects further
// registrations afterwards.
func (b *Builder) Freeze() *Registry {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.frozen = true

	r := &Registry{
		dates:   make([]types.YearMonth, 0, len(b.schemas)),
		schemas: make([]*types.Schema, 0, len(b.schemas)),
	}
	for d := range b.schemas {
		r.dates = append(r.dates, d)
	}
	sort.Slice(r.dates, func(i, j int) bool { return r.dates[i] < r.dates[j] })
	for _, d := range r.dates {
		r.schemas = append(r.schemas, b.schemas[d])
	}
	return r
}

// New builds a registry directly from schemas.
func New(schemas ...*types.Schema) (*Registry, error) {
	b := NewBuilder()
	for _, s := range schemas {
		if err := b.Register(s); err != nil {
			return nil, err
		}
	}
	return b.Freeze(), nil
}

// Resolve returns the schema with the latest effective date not after d.
// A date before every registered schema fails with NO_APPLICABLE_SCHEMA.
func (r *Registry) Resolve(d types.YearMonth) (*types.Schema, error) {
	// first index with date > d
	i := sort.Search(len(r.dates), func(i int) bool { return r.dates[i] > d })
	if i == 0 {
		details := map[string]interface{}{"extract_date": d.String()}
		if len(r.dates) > 0 {
			details["earliest"] = r.dates[0].String()
		}
		return nil, errors.NewRegistryError(errors.CodeNoApplicableSchema,
			fmt.Sprintf("no schema in effect for %s", d)).WithDetails(details)
	}
	return r.schemas[i-1], nil
}

// Get returns the schema registered for exactly the given effective date.
func (r *Registry) Get(effective types.YearMonth) (*types.Schema, bool) {
	i := sort.Search(len(r.dates), func(i int) bool { return r.dates[i] >= effective })
	if i < len(r.dates) && r.dates[i] == effective {
		return r.schemas[i], true
	}
	return nil, false
}

// Len returns the number of registered schemas.
func (r *Registry) Len() int {
	return len(r.dates)
}

// Dates returns the registered effective dates in ascending order.
func (r *Registry) Dates() []types.YearMonth {
	out := make([]types.YearMonth, len(r.dates))
	copy(out, r.dates)
	return out
}

// Schemas returns the registered schemas in ascending date order.
func (r *Registry) Schemas() []*types.Schema {
	out := make([]*types.Schema, len(r.schemas))
	copy(out, r.schemas)
	return out
}
