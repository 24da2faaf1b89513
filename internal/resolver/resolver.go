// Package resolver maps open-vocabulary detector labels to disposal categories.
package resolver

import (
	"errors"
	"fmt"
	"strings"

	"github.com/example/waste-sort/internal/category"
)

// Table is the data behind a Resolver. Keywords are matched as substrings of
// the lower-cased label; Exact is consulted only when no keyword matches.
type Table struct {
	ContainerKeywords []string               `json:"container_keywords" yaml:"container_keywords"`
	FoodKeywords      []string               `json:"food_keywords" yaml:"food_keywords"`
	Exact             map[string]category.ID `json:"exact" yaml:"exact"`
}

// Validate reports the first problem that would make the table ambiguous.
func (t Table) Validate() error {
	for _, kw := range t.ContainerKeywords {
		if strings.TrimSpace(kw) == "" {
			return errors.New("container keywords: empty keyword")
		}
	}
	for _, kw := range t.FoodKeywords {
		if strings.TrimSpace(kw) == "" {
			return errors.New("food keywords: empty keyword")
		}
	}
	seen := make(map[string]struct{}, len(t.Exact))
	for label, id := range t.Exact {
		if strings.TrimSpace(label) == "" {
			return errors.New("exact table: empty label")
		}
		if !id.Valid() {
			return fmt.Errorf("exact table: label %q maps to unknown category %q", label, id)
		}
		key := normalize(label)
		if _, dup := seen[key]; dup {
			return fmt.Errorf("exact table: label %q is listed more than once after normalisation", key)
		}
		seen[key] = struct{}{}
	}
	return nil
}

// Resolver is pure and read-only after construction, so one instance can be
// shared by every request.
type Resolver struct {
	containers []string
	food       []string
	exact      map[string]category.ID
}

// New builds a Resolver from t. Keywords and labels are normalised once here.
func New(t Table) (*Resolver, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	r := &Resolver{
		containers: normalizeAll(t.ContainerKeywords),
		food:       normalizeAll(t.FoodKeywords),
		exact:      make(map[string]category.ID, len(t.Exact)),
	}
	for label, id := range t.Exact {
		r.exact[normalize(label)] = id
	}
	return r, nil
}

// Default returns a Resolver over DefaultTable.
func Default() *Resolver {
	r, err := New(DefaultTable())
	if err != nil {
		panic(err)
	}
	return r
}

// Resolve returns the disposal category for label. Container keywords win over
// food keywords, and both win over the exact table; anything else is general waste.
func (r *Resolver) Resolve(label string) category.ID {
	l := normalize(label)
	if containsAny(l, r.containers) {
		return category.Recyclable
	}
	if containsAny(l, r.food) {
		return category.KitchenWaste
	}
	if id, ok := r.exact[l]; ok {
		return id
	}
	return category.GeneralWaste
}

func containsAny(label string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(label, kw) {
			return true
		}
	}
	return false
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func normalizeAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, normalize(s))
	}
	return out
}
