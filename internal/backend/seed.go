package backend

import (
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/hpungsan/csm-companion/internal/db"
	"github.com/hpungsan/csm-companion/internal/pulse"
)

//go:embed seed.yaml
var defaultSeed []byte

// Seed is a fixture file of automations and pulse records.
type Seed struct {
	Automations []db.Automation      `yaml:"automations"`
	Pulses      map[string]SeedPulse `yaml:"pulses"`
}

// SeedPulse is a pulse record as written in a fixture file. Field values are
// written without the editor wrapper unless Raw is set.
type SeedPulse struct {
	Raw       bool              `yaml:"raw"`
	Fields    map[string]string `yaml:"fields"`
	UpdatedOn string            `yaml:"sys_updated_on"`
	UpdatedBy string            `yaml:"sys_updated_by"`
}

// Record converts the fixture to a pulse record.
func (p SeedPulse) Record() (*pulse.Record, error) {
	r := &pulse.Record{UpdatedOn: p.UpdatedOn, UpdatedBy: p.UpdatedBy}
	names := make([]string, 0, len(p.Fields))
	for name := range p.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		value := p.Fields[name]
		if !p.Raw {
			value = "<p>" + value + "</p>"
		}
		if !r.SetField(name, &value) {
			return nil, fmt.Errorf("unknown pulse field %q", name)
		}
	}
	return r, nil
}

// ParseSeed decodes a fixture document.
func ParseSeed(data []byte) (*Seed, error) {
	var s Seed
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse seed: %w", err)
	}
	return &s, nil
}

// LoadSeed reads a fixture file. An empty path loads the built-in fixtures.
func LoadSeed(path string) (*Seed, error) {
	if path == "" {
		return ParseSeed(defaultSeed)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed: %w", err)
	}
	return ParseSeed(data)
}

// Apply writes the fixtures into the database, replacing rows with the same
// keys.
func (s *Seed) Apply(database *sql.DB) error {
	for i := range s.Automations {
		a := &s.Automations[i]
		if a.ID == "" || a.Component == "" {
			return fmt.Errorf("seed automation %d: id and component are required", i)
		}
		if err := db.PutAutomation(database, a); err != nil {
			return fmt.Errorf("seed automation %s: %w", a.ID, err)
		}
	}
	caseIDs := make([]string, 0, len(s.Pulses))
	for id := range s.Pulses {
		caseIDs = append(caseIDs, id)
	}
	sort.Strings(caseIDs)
	for _, id := range caseIDs {
		r, err := s.Pulses[id].Record()
		if err != nil {
			return fmt.Errorf("seed pulse %s: %w", id, err)
		}
		if r.UpdatedOn == "" {
			r.UpdatedOn = "1970-01-01 00:00:00"
		}
		if err := db.PutPulse(database, id, r); err != nil {
			return fmt.Errorf("seed pulse %s: %w", id, err)
		}
	}
	return nil
}
