package category

import (
	"fmt"
	"regexp"
)

var hexColor = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

// Registry is the read-only lookup table of disposal categories.
// It is built once at startup and is safe for concurrent use.
type Registry struct {
	byID  map[ID]Category
	guide Guide
}

// NewRegistry validates entries and builds a registry. Exactly the three known
// categories must be present.
func NewRegistry(entries []Category, guide Guide) (*Registry, error) {
	byID := make(map[ID]Category, len(IDs))
	for _, c := range entries {
		if !c.ID.Valid() {
			return nil, fmt.Errorf("unknown category id %q", c.ID)
		}
		if _, dup := byID[c.ID]; dup {
			return nil, fmt.Errorf("duplicate category id %q", c.ID)
		}
		if c.Name == "" || c.NameEn == "" {
			return nil, fmt.Errorf("category %q: name and name_en are required", c.ID)
		}
		if !hexColor.MatchString(c.Color) {
			return nil, fmt.Errorf("category %q: invalid color %q", c.ID, c.Color)
		}
		c.Examples = append([]string(nil), c.Examples...)
		byID[c.ID] = c
	}
	for _, id := range IDs {
		if _, ok := byID[id]; !ok {
			return nil, fmt.Errorf("category %q is missing", id)
		}
	}

	guide.GeneralRules = append([]string(nil), guide.GeneralRules...)
	return &Registry{byID: byID, guide: guide}, nil
}

// Get returns the category for id. Unknown or empty ids fall back to general waste.
func (r *Registry) Get(id ID) Category {
	if c, ok := r.byID[id]; ok {
		return c
	}
	return r.byID[GeneralWaste]
}

// All returns every category in display order.
func (r *Registry) All() []Category {
	out := make([]Category, 0, len(IDs))
	for _, id := range IDs {
		out = append(out, r.byID[id])
	}
	return out
}

// Guide returns the general sorting rules.
func (r *Registry) Guide() Guide {
	return r.guide
}
