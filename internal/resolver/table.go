package resolver

import "github.com/example/waste-sort/internal/category"

// DefaultTable returns the built-in rules for COCO-style detector labels.
// A fresh copy is returned on every call.
func DefaultTable() Table {
	return Table{
		ContainerKeywords: []string{
			"bottle", "cup", "bowl", "glass", "jar", "can", "vase",
		},
		FoodKeywords: []string{
			"banana", "apple", "orange", "sandwich", "broccoli", "carrot",
			"hot dog", "pizza", "donut", "cake", "bread", "noodle",
			"vegetable", "fruit", "lemon", "grape", "tomato", "potato",
			"cabbage", "bubble tea",
		},
		Exact: map[string]category.ID{
			"fork":         category.Recyclable,
			"knife":        category.Recyclable,
			"spoon":        category.Recyclable,
			"scissors":     category.Recyclable,
			"laptop":       category.Recyclable,
			"keyboard":     category.Recyclable,
			"mouse":        category.Recyclable,
			"remote":       category.Recyclable,
			"cell phone":   category.Recyclable,
			"tv":           category.Recyclable,
			"book":         category.Recyclable,
			"backpack":     category.GeneralWaste,
			"umbrella":     category.GeneralWaste,
			"handbag":      category.GeneralWaste,
			"tie":          category.GeneralWaste,
			"suitcase":     category.GeneralWaste,
			"chair":        category.GeneralWaste,
			"couch":        category.GeneralWaste,
			"bed":          category.GeneralWaste,
			"dining table": category.GeneralWaste,
			"toilet":       category.GeneralWaste,
			"teddy bear":   category.GeneralWaste,
			"toothbrush":   category.GeneralWaste,
			"hair drier":   category.GeneralWaste,
			"potted plant": category.GeneralWaste,
		},
	}
}
