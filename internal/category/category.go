package category

// ID identifies one of the three disposal categories.
type ID string

const (
	Recyclable   ID = "recyclable"
	KitchenWaste ID = "kitchen_waste"
	GeneralWaste ID = "general_waste"
)

// IDs lists the known categories in display order.
var IDs = []ID{Recyclable, KitchenWaste, GeneralWaste}

// Valid reports whether id is one of the known categories.
func (id ID) Valid() bool {
	switch id {
	case Recyclable, KitchenWaste, GeneralWaste:
		return true
	}
	return false
}

// Category carries the bilingual display text and disposal instructions for a bin.
type Category struct {
	ID             ID       `json:"id" yaml:"id"`
	Name           string   `json:"name" yaml:"name"`
	NameEn         string   `json:"name_en" yaml:"name_en"`
	Color          string   `json:"color" yaml:"color"`
	Instructions   string   `json:"instructions" yaml:"instructions"`
	InstructionsEn string   `json:"instructions_en" yaml:"instructions_en"`
	Description    string   `json:"description,omitempty" yaml:"description"`
	DescriptionEn  string   `json:"description_en,omitempty" yaml:"description_en"`
	Examples       []string `json:"examples,omitempty" yaml:"examples"`
}

// Guide holds the general sorting rules shown next to the categories.
type Guide struct {
	Title        string   `json:"title" yaml:"title"`
	TitleEn      string   `json:"title_en" yaml:"title_en"`
	GeneralRules []string `json:"general_rules" yaml:"general_rules"`
}
