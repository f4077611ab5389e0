package billparse

import (
	_ "embed"
	"fmt"
	"slices"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// CategoryOther is assigned when no keyword matches.
const CategoryOther = "Other"

//go:embed categories.yaml
var categoriesYAML []byte

// Category is a spending category and the keywords that select it.
type Category struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
}

type categoriesConfig struct {
	Categories []Category `yaml:"categories"`
}

// categoryTable is decoded once and never modified afterwards.
var categoryTable = sync.OnceValue(func() []Category {
	table, err := loadCategories(categoriesYAML)
	if err != nil {
		panic(err)
	}
	return table
})

func loadCategories(data []byte) ([]Category, error) {
	var cfg categoriesConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling categories: %w", err)
	}
	for i, c := range cfg.Categories {
		if c.Name == "" {
			return nil, fmt.Errorf("category %d has no name", i)
		}
		for j, k := range c.Keywords {
			cfg.Categories[i].Keywords[j] = strings.ToLower(k)
		}
	}
	return cfg.Categories, nil
}

// Categorize returns the first category, in table order, with a keyword
// contained in the description, or CategoryOther.
func Categorize(description string) string {
	lower := strings.ToLower(description)
	for _, c := range categoryTable() {
		for _, keyword := range c.Keywords {
			if strings.Contains(lower, keyword) {
				return c.Name
			}
		}
	}
	return CategoryOther
}

// CategoryNames lists every category name in table order, ending with CategoryOther.
func CategoryNames() []string {
	table := categoryTable()
	names := make([]string, 0, len(table)+1)
	for _, c := range table {
		names = append(names, c.Name)
	}
	if !slices.Contains(names, CategoryOther) {
		names = append(names, CategoryOther)
	}
	return names
}
