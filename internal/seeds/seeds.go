// Package seeds loads alert-rule metadata from YAML files through the
// alerts write path, so seeded data obeys the single-active-rule invariant.
package seeds

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/goccy/go-yaml"

	"github.com/TerraCast/TC-Backend/internal/alerts"
)

type ruleFile struct {
	Rules []ruleSpec `yaml:"rules"`
}

type ruleSpec struct {
	Field        string      `yaml:"field"`
	AuthRequired bool        `yaml:"auth_required"`
	Active       bool        `yaml:"active"`
	Ranges       []rangeSpec `yaml:"ranges"`
}

type rangeSpec struct {
	Lower          *float64 `yaml:"lower"`
	Upper          *float64 `yaml:"upper"`
	Color          string   `yaml:"color"`
	Alertable      bool     `yaml:"alertable"`
	Recommendation string   `yaml:"recommendation"`
}

// RuleSaver is the slice of the alerts store the seeder needs.
type RuleSaver interface {
	Save(ctx context.Context, m *alerts.Metadata) error
}

// SeedRules loads every rule in the YAML file and saves it via the store.
func SeedRules(ctx context.Context, store RuleSaver, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read seed file: %w", err)
	}
	var file ruleFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("parse seed file: %w", err)
	}

	for i, spec := range file.Rules {
		m := &alerts.Metadata{
			Field:        spec.Field,
			AuthRequired: spec.AuthRequired,
			Active:       spec.Active,
		}
		ranges := make([]alerts.Range, len(spec.Ranges))
		for j, r := range spec.Ranges {
			ranges[j] = alerts.Range{
				Lower:          r.Lower,
				Upper:          r.Upper,
				Color:          r.Color,
				Alertable:      r.Alertable,
				Recommendation: r.Recommendation,
			}
		}
		if err := m.SetRanges(ranges); err != nil {
			return fmt.Errorf("rule %d (%s): %w", i, spec.Field, err)
		}
		if err := store.Save(ctx, m); err != nil {
			return fmt.Errorf("rule %d (%s): %w", i, spec.Field, err)
		}
	}

	log.Printf("[seeds] seeded %d alert rules from %s", len(file.Rules), path)
	return nil
}
