package violations

import (
	"fmt"

	"github.com/traffiq/backend/pkg/config"
)

type Category struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

// Taxonomy is the fixed, ordered category list of one violation schema.
type Taxonomy []Category

func TaxonomyFromConfig(cats []config.CategoryConfig) Taxonomy {
	t := make(Taxonomy, len(cats))
	for i, c := range cats {
		label := c.Label
		if label == "" {
			label = c.Key
		}
		t[i] = Category{Key: c.Key, Label: label}
	}
	return t
}

func DefaultTaxonomy() Taxonomy {
	return TaxonomyFromConfig(config.DefaultCategories())
}

func (t Taxonomy) Keys() []string {
	keys := make([]string, len(t))
	for i, c := range t {
		keys[i] = c.Key
	}
	return keys
}

func (t Taxonomy) Lookup(key string) (Category, int, error) {
	for i, c := range t {
		if c.Key == key {
			return c, i, nil
		}
	}
	return Category{}, -1, fmt.Errorf("%w: unknown category %q", ErrInvalidInput, key)
}
