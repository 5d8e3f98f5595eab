package domain

import "fmt"

// Category names a label-to-code domain.
type Category string

const (
	CategoryPrecipitationType Category = "precipitation_type"
	CategorySurfaceCondition  Category = "surface_condition"
	CategoryWindDirection     Category = "wind_direction"
)

// Categories lists every label domain in a stable order.
var Categories = []Category{
	CategoryPrecipitationType,
	CategorySurfaceCondition,
	CategoryWindDirection,
}

// ParseCategory validates a category name.
func ParseCategory(s string) (Category, error) {
	for _, c := range Categories {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown category %q", s)
}

// CategoryCode maps a source label to a curated integer code. A nil Code
// means the label has been seen but not yet assigned.
type CategoryCode struct {
	Category    Category `json:"category" yaml:"-"`
	Label       string   `json:"label" yaml:"label"`
	Code        *int     `json:"code" yaml:"code"`
	Description *string  `json:"description,omitempty" yaml:"description,omitempty"`
}

// Resolution is the result of looking up one label.
type Resolution struct {
	Code *int
	// Unregistered is set when the label was absent from the table. The
	// owning station is flagged and its batch must not be stored.
	Unregistered bool
}

// UnregisteredLabel identifies a label that had no entry in the code table
// and the station whose report carried it.
type UnregisteredLabel struct {
	Category  Category `json:"category"`
	Label     string   `json:"label"`
	StationID int      `json:"station_id"`
}

// CodeResolver maps category labels to codes for the parser.
type CodeResolver interface {
	Resolve(category Category, label string, stationID int) Resolution
}
