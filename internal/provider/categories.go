package provider

import (
	_ "embed"
	"strings"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

//go:embed categories.yaml
var categoriesYAML []byte

type categoryTable struct {
	Categories map[string]map[string]string `yaml:"categories"`
}

var (
	categoriesOnce sync.Once
	categories     categoryTable
)

// categoryFilter resolves a generic category to the filter expression the
// given provider understands. Returns "" when no mapping exists; adapters
// then fall back to free-text search.
func categoryFilter(providerID, category string) string {
	categoriesOnce.Do(func() {
		if err := yaml.Unmarshal(categoriesYAML, &categories); err != nil {
			zap.L().Error("provider: parse embedded category table", zap.Error(err))
			categories.Categories = map[string]map[string]string{}
		}
	})

	key := strings.ToLower(strings.TrimSpace(category))
	// Fold a couple of common spellings.
	if key == "café" {
		key = "cafe"
	}
	if m, ok := categories.Categories[key]; ok {
		return m[providerID]
	}
	return ""
}
