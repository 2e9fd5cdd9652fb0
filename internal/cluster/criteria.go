package cluster

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const secondsPerDay = 24 * 60 * 60

// Criteria parameterizes the cluster predicate.
type Criteria struct {
	WindowDays    int      `yaml:"window_days" json:"window_days"`
	RequiredRoles []string `yaml:"required_roles" json:"required_roles"`
	MinInsiders   int      `yaml:"min_insiders" json:"min_insiders"`
	MinValue      float64  `yaml:"min_value" json:"min_value"`
}

// DefaultCriteria: a CEO and a CFO plus at least two insiders buying within
// 30 days, with one purchase above $50,000.
func DefaultCriteria() Criteria {
	return Criteria{
		WindowDays:    30,
		RequiredRoles: []string{"CEO", "CFO"},
		MinInsiders:   2,
		MinValue:      50_000,
	}
}

// WindowSeconds is the half-width of the window around a candidate.
func (c Criteria) WindowSeconds() int64 {
	return int64(c.WindowDays) * secondsPerDay
}

// Roles returns the required role set, trimmed, deduplicated and sorted.
func (c Criteria) Roles() []string {
	seen := make(map[string]bool, len(c.RequiredRoles))
	out := make([]string, 0, len(c.RequiredRoles))
	for _, r := range c.RequiredRoles {
		r = strings.TrimSpace(r)
		if r == "" || seen[r] {
			continue
		}
		seen[r] = true
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

func (c Criteria) Validate() error {
	if c.WindowDays < 0 {
		return fmt.Errorf("cluster: window days cannot be negative: %d", c.WindowDays)
	}
	if c.MinInsiders < 0 {
		return fmt.Errorf("cluster: minimum insiders cannot be negative: %d", c.MinInsiders)
	}
	return nil
}

// LoadCriteria reads a YAML profile on top of base. Keys missing from the
// file keep the base value.
func LoadCriteria(path string, base Criteria) (Criteria, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("failed to read criteria profile '%s': %w", path, err)
	}
	c := base
	if err := yaml.Unmarshal(data, &c); err != nil {
		return base, fmt.Errorf("failed to parse criteria profile from YAML: %w", err)
	}
	if err := c.Validate(); err != nil {
		return base, err
	}
	return c, nil
}
