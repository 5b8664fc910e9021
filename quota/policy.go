package quota

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

//go:embed default_policy.yaml
var defaultPolicy []byte

// AnyTier matches every tier of a role without its own entry.
const AnyTier = "*"

// Limits are the allowances of one role and tier.
type Limits struct {
	MaxRequests int     `yaml:"maxRequests" json:"maxRequests" validate:"gte=0"`
	MaxAreaSqKm float64 `yaml:"maxAreaSqKm" json:"maxAreaSqKm" validate:"gt=0"`
}

// Policy maps role and tier to Limits.
type Policy struct {
	Roles map[string]map[string]Limits `yaml:"roles"`
}

// DefaultPolicy returns the built-in policy table.
func DefaultPolicy() (*Policy, error) {
	return ParsePolicy(defaultPolicy)
}

// LoadPolicy reads a policy table from a YAML file. An empty path
// yields the built-in table.
func LoadPolicy(path string) (*Policy, error) {
	if path == "" {
		return DefaultPolicy()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read quota policy: %w", err)
	}
	return ParsePolicy(data)
}

// ParsePolicy decodes and validates a YAML policy table.
func ParsePolicy(data []byte) (*Policy, error) {
	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse quota policy: %w", err)
	}
	if len(p.Roles) == 0 {
		return nil, fmt.Errorf("invalid quota policy: no roles")
	}
	v := validator.New()
	for role, tiers := range p.Roles {
		if len(tiers) == 0 {
			return nil, fmt.Errorf("invalid quota policy: role %s has no tiers", role)
		}
		for tier, limits := range tiers {
			if err := v.Struct(limits); err != nil {
				return nil, fmt.Errorf("invalid quota policy for %s/%s: %w", role, tier, err)
			}
		}
	}
	return &p, nil
}

// Resolve returns the limits for role and tier, falling back to the
// role's "*" entry. ok is false when neither exists.
func (p *Policy) Resolve(role, tier string) (Limits, bool) {
	tiers, ok := p.Roles[role]
	if !ok {
		return Limits{}, false
	}
	if l, ok := tiers[tier]; ok {
		return l, true
	}
	l, ok := tiers[AnyTier]
	return l, ok
}

// RoleNames returns the configured role names in sorted order.
func (p *Policy) RoleNames() []string {
	names := make([]string, 0, len(p.Roles))
	for name := range p.Roles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
