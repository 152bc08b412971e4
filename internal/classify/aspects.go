package classify

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// DefaultAspectsFile is the conventional override location, relative
// to the repo root.
const DefaultAspectsFile = "ASPECTS.toml"

// AspectSpec describes one metadata aspect the model can fill in.
type AspectSpec struct {
	Name        string `toml:"name"`
	Description string `toml:"description"`
	// Values restricts the aspect to a closed vocabulary when set.
	Values []string `toml:"values"`
}

// Registry holds the aspect specs used to build prompts.
type Registry struct {
	aspects map[string]AspectSpec
}

// DefaultRegistry returns the built-in aspect set.
func DefaultRegistry() *Registry {
	r := &Registry{aspects: make(map[string]AspectSpec)}
	for _, spec := range []AspectSpec{
		{
			Name:        "purpose",
			Description: "One sentence describing what the symbol does and why callers use it.",
		},
		{
			Name:        "domain",
			Description: "The business domain the symbol belongs to, as a short lowercase tag (e.g. billing, auth, search).",
		},
		{
			Name:        "role",
			Description: "The architectural role of the symbol.",
			Values:      []string{"entrypoint", "orchestrator", "adapter", "internal", "model"},
		},
		{
			Name:        "purity",
			Description: "Whether the symbol has observable side effects.",
			Values:      []string{"pure", "reads-state", "writes-state"},
		},
		{
			Name:        "entity",
			Description: "The primary business entity (noun) the symbol operates on, or 'none'.",
		},
	} {
		r.aspects[spec.Name] = spec
	}
	return r
}

// aspectsFile is the ASPECTS.toml document shape.
type aspectsFile struct {
	Aspect []AspectSpec `toml:"aspect"`
}

// LoadRegistry returns the default registry with overrides from the
// given TOML file applied. An empty path or a missing file yields the
// defaults unchanged.
func LoadRegistry(path string) (*Registry, error) {
	r := DefaultRegistry()
	if path == "" {
		return r, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return r, nil
		}
		return nil, fmt.Errorf("read aspects file: %w", err)
	}

	var doc aspectsFile
	if _, err := toml.Decode(string(data), &doc); err != nil {
		return nil, fmt.Errorf("parse aspects file: %w", err)
	}
	for _, spec := range doc.Aspect {
		if spec.Name == "" {
			return nil, fmt.Errorf("aspects file %s: aspect with empty name", path)
		}
		if spec.Description == "" {
			return nil, fmt.Errorf("aspects file %s: aspect %q has no description", path, spec.Name)
		}
		r.aspects[spec.Name] = spec
	}
	return r, nil
}

// Spec returns the spec for one aspect.
func (r *Registry) Spec(name string) (AspectSpec, bool) {
	spec, ok := r.aspects[name]
	return spec, ok
}

// Names lists the registered aspect names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.aspects))
	for name := range r.aspects {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Instructions renders the prompt block describing the requested
// aspects. Unregistered aspects get a generic line so a caller-defined
// aspect still classifies.
func (r *Registry) Instructions(aspects []string) string {
	var b strings.Builder
	for _, name := range aspects {
		spec, ok := r.aspects[name]
		if !ok {
			fmt.Fprintf(&b, "- %s: a short value for the %q aspect of the symbol.\n", name, name)
			continue
		}
		fmt.Fprintf(&b, "- %s: %s", spec.Name, spec.Description)
		if len(spec.Values) > 0 {
			fmt.Fprintf(&b, " Allowed values: %s.", strings.Join(spec.Values, ", "))
		}
		b.WriteString("\n")
	}
	return b.String()
}
