package resolver

import (
	"testing"

	"github.com/example/waste-sort/internal/category"
)

func TestResolveDefaultTable(t *testing.T) {
	t.Parallel()

	r := Default()
	tests := []struct {
		label string
		want  category.ID
	}{
		// Container keywords.
		{label: "bottle", want: category.Recyclable},
		{label: "wine glass", want: category.Recyclable},
		{label: "cup", want: category.Recyclable},
		{label: "Bowl", want: category.Recyclable},
		{label: "vase", want: category.Recyclable},

		// Food keywords.
		{label: "banana", want: category.KitchenWaste},
		{label: "hot dog", want: category.KitchenWaste},
		{label: "PIZZA", want: category.KitchenWaste},
		{label: "pineapple", want: category.KitchenWaste},

		// Exact table.
		{label: "cell phone", want: category.Recyclable},
		{label: "fork", want: category.Recyclable},
		{label: "  Laptop ", want: category.Recyclable},
		{label: "chair", want: category.GeneralWaste},

		// Default.
		{label: "person", want: category.GeneralWaste},
		{label: "", want: category.GeneralWaste},
		{label: "forklift", want: category.GeneralWaste},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.label, func(t *testing.T) {
			t.Parallel()
			if got := r.Resolve(tc.label); got != tc.want {
				t.Errorf("Resolve(%q) = %q, want %q", tc.label, got, tc.want)
			}
		})
	}
}

func TestResolveContainerBeatsFood(t *testing.T) {
	t.Parallel()

	r := Default()
	// "cupcake" contains both "cup" and "cake"; the container rule is checked first.
	if got := r.Resolve("cupcake"); got != category.Recyclable {
		t.Fatalf("Resolve(cupcake) = %q, want %q", got, category.Recyclable)
	}
	if got := r.Resolve("bubble tea cup"); got != category.Recyclable {
		t.Fatalf("Resolve(bubble tea cup) = %q, want %q", got, category.Recyclable)
	}
}

func TestResolveKeywordBeatsExactTable(t *testing.T) {
	t.Parallel()

	r, err := New(Table{
		ContainerKeywords: []string{"glass"},
		FoodKeywords:      []string{"banana"},
		Exact: map[string]category.ID{
			"wine glass":   category.GeneralWaste,
			"banana split": category.Recyclable,
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := r.Resolve("wine glass"); got != category.Recyclable {
		t.Fatalf("Resolve(wine glass) = %q, want %q", got, category.Recyclable)
	}
	if got := r.Resolve("banana split"); got != category.KitchenWaste {
		t.Fatalf("Resolve(banana split) = %q, want %q", got, category.KitchenWaste)
	}
}

// Substring matching routes "glasses" (eyewear) through the "glass" keyword.
// The behaviour is pinned here so any change to it is deliberate.
func TestResolveGlassesMatchesGlassKeyword(t *testing.T) {
	t.Parallel()

	if got := Default().Resolve("glasses"); got != category.Recyclable {
		t.Fatalf("Resolve(glasses) = %q, want %q", got, category.Recyclable)
	}
}

func TestResolveIsTotalAndDeterministic(t *testing.T) {
	t.Parallel()

	r := Default()
	labels := []string{"bottle", "banana", "chair", "unknown thing", "", "日本", "TV", "tv "}
	for _, label := range labels {
		first := r.Resolve(label)
		if !first.Valid() {
			t.Fatalf("Resolve(%q) returned unknown id %q", label, first)
		}
		for i := 0; i < 5; i++ {
			if got := r.Resolve(label); got != first {
				t.Fatalf("Resolve(%q) not deterministic: %q then %q", label, first, got)
			}
		}
	}
}

func TestNewNormalisesTable(t *testing.T) {
	t.Parallel()

	r, err := New(Table{
		ContainerKeywords: []string{" JAR "},
		Exact:             map[string]category.ID{"Cell Phone": category.Recyclable},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := r.Resolve("jam jar"); got != category.Recyclable {
		t.Fatalf("Resolve(jam jar) = %q, want %q", got, category.Recyclable)
	}
	if got := r.Resolve("cell phone"); got != category.Recyclable {
		t.Fatalf("Resolve(cell phone) = %q, want %q", got, category.Recyclable)
	}
}

func TestNewRejectsInvalidTables(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		table Table
	}{
		{name: "empty container keyword", table: Table{ContainerKeywords: []string{"bottle", " "}}},
		{name: "empty food keyword", table: Table{FoodKeywords: []string{""}}},
		{name: "empty exact label", table: Table{Exact: map[string]category.ID{"": category.Recyclable}}},
		{name: "unknown category", table: Table{Exact: map[string]category.ID{"battery": "hazardous"}}},
		{name: "labels colliding after normalisation", table: Table{Exact: map[string]category.ID{
			"Chair":  category.GeneralWaste,
			"chair ": category.Recyclable,
		}}},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := New(tc.table); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestDefaultTableReturnsFreshCopy(t *testing.T) {
	t.Parallel()

	a := DefaultTable()
	a.Exact["chair"] = category.Recyclable
	a.ContainerKeywords[0] = "mutated"

	b := DefaultTable()
	if b.Exact["chair"] != category.GeneralWaste {
		t.Fatalf("default exact table was mutated: %q", b.Exact["chair"])
	}
	if b.ContainerKeywords[0] != "bottle" {
		t.Fatalf("default container keywords were mutated: %q", b.ContainerKeywords[0])
	}
}
