package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Seed is the YAML shape of bundled catalog content.
type Seed struct {
	Keywords []string `yaml:"keywords"`
}

// LoadSeed reads and parses a seed file.
//
// Postcondition: Returns the parsed Seed, or an error naming path.
func LoadSeed(path string) (Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Seed{}, fmt.Errorf("reading seed %s: %w", path, err)
	}
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return Seed{}, fmt.Errorf("parsing seed %s: %w", path, err)
	}
	return seed, nil
}

// ApplySeed creates every seed keyword that does not exist yet.
//
// Postcondition: Returns how many keywords were created. Existing names are
// skipped; any other repository error aborts.
func ApplySeed(ctx context.Context, repo Repository, seed Seed, logger *zap.Logger) (int, error) {
	created := 0
	for _, name := range seed.Keywords {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		_, err := repo.CreateKeyword(ctx, name)
		switch {
		case errors.Is(err, ErrKeywordExists):
			logger.Debug("keyword already present", zap.String("name", name))
		case err != nil:
			return created, fmt.Errorf("seeding keyword %q: %w", name, err)
		default:
			created++
		}
	}
	return created, nil
}
