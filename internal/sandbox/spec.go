package sandbox

import (
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const SpecSchemaV1 = "scriptforge.capabilities.v1"

// defaultSeed keeps math.random deterministic when a spec does not pin its
// own seed: two environments built from the same spec behave identically.
const defaultSeed = 1

// Spec names the set of catalog operations an environment will expose.
// It is pure data: no store handles, no identities, no host state.
type Spec struct {
	Schema  string   `json:"schema" yaml:"schema"`
	Include []string `json:"include" yaml:"include"`
	Seed    int64    `json:"seed,omitempty" yaml:"seed,omitempty"`
}

// ParseSpec decodes and validates a YAML capability spec. A spec that does
// not validate must be treated as a configuration error and fail the host
// fast; it never degrades into a partially built environment.
func ParseSpec(input []byte) (Spec, error) {
	var spec Spec
	if err := yaml.Unmarshal(input, &spec); err != nil {
		return Spec{}, fmt.Errorf("decode capability spec: %w", err)
	}
	if err := spec.Validate(); err != nil {
		return Spec{}, err
	}
	return spec, nil
}

// DefaultSpec grants the full catalog, deny stubs included.
func DefaultSpec() Spec {
	return Spec{Schema: SpecSchemaV1, Include: []string{"*"}}
}

func (s Spec) Validate() error {
	if strings.TrimSpace(s.Schema) != SpecSchemaV1 {
		return fmt.Errorf("spec.schema must be %q", SpecSchemaV1)
	}
	if len(s.Include) == 0 {
		return errors.New("spec.include must be non-empty")
	}
	if s.Seed < 0 {
		return errors.New("spec.seed must be >= 0")
	}
	for i, entry := range s.Include {
		name := strings.TrimSpace(entry)
		if name == "" {
			return fmt.Errorf("spec.include[%d] is empty", i)
		}
		if strings.ContainsAny(name, "*?[") {
			if len(expandPattern(name)) == 0 {
				return fmt.Errorf("spec.include[%d] matches no catalog operation: %q", i, name)
			}
			continue
		}
		if !Has(name) {
			return fmt.Errorf("spec.include[%d] names an unknown operation: %q", i, name)
		}
	}
	return nil
}

// Resolve expands include patterns against the catalog and returns the
// sorted, de-duplicated operation names this spec grants.
func (s Spec) Resolve() ([]string, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	for _, entry := range s.Include {
		name := strings.TrimSpace(entry)
		if strings.ContainsAny(name, "*?[") {
			for _, match := range expandPattern(name) {
				seen[match] = struct{}{}
			}
			continue
		}
		seen[name] = struct{}{}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func expandPattern(pattern string) []string {
	matches := make([]string, 0)
	for _, name := range Names() {
		ok, err := path.Match(pattern, name)
		if err != nil {
			return nil
		}
		if ok {
			matches = append(matches, name)
		}
	}
	return matches
}
