package category

import (
	"context"
	_ "embed"
	"fmt"
	"os"

	"github.com/couchcryptid/road-weather-etl/internal/domain"
	"gopkg.in/yaml.v3"
)

//go:embed seed.yaml
var defaultSeed []byte

// seedFile is the on-disk layout: one list of label/code pairs per category.
type seedFile map[string][]domain.CategoryCode

// DefaultSeed returns the curated codes bundled with the binary.
func DefaultSeed() ([]domain.CategoryCode, error) {
	return parseSeed(defaultSeed)
}

// LoadSeed reads curated codes from a YAML file. An empty path returns the
// bundled defaults.
func LoadSeed(path string) ([]domain.CategoryCode, error) {
	if path == "" {
		return DefaultSeed()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	return parseSeed(data)
}

func parseSeed(data []byte) ([]domain.CategoryCode, error) {
	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse seed: %w", err)
	}
	var codes []domain.CategoryCode
	for _, c := range domain.Categories {
		for _, cc := range f[string(c)] {
			if cc.Label == "" {
				return nil, fmt.Errorf("parse seed: empty label in %s", c)
			}
			cc.Category = c
			codes = append(codes, cc)
		}
		delete(f, string(c))
	}
	for name := range f {
		return nil, fmt.Errorf("parse seed: unknown category %q", name)
	}
	return codes, nil
}

// Seed inserts any seed codes missing from the store. Existing labels keep
// their stored code.
func Seed(ctx context.Context, store Store, codes []domain.CategoryCode) (int, error) {
	if len(codes) == 0 {
		return 0, nil
	}
	n, err := store.CreateCategoryCodes(ctx, codes)
	if err != nil {
		return 0, fmt.Errorf("seed category codes: %w", err)
	}
	return n, nil
}
