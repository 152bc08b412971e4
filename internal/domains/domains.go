// Package domains models the registry of business-domain tags.
// Symbols reference domains by name through metadata, independent of
// registration: a tag can be in use before anyone declares it.
package domains

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	toml "github.com/pelletier/go-toml/v2"
)

// DeclarationFile is the default filename for domain declarations.
const DeclarationFile = "DOMAINS.toml"

// Domain is one registered domain tag.
type Domain struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Declaration is one declared domain in DOMAINS.toml.
type Declaration struct {
	Name        string `toml:"name"`
	Description string `toml:"description,omitempty"`
}

// DeclarationsFile is the root structure of DOMAINS.toml.
type DeclarationsFile struct {
	Version int           `toml:"version"`
	Domains []Declaration `toml:"domain"`
}

// ParseDeclarations parses a DOMAINS.toml file.
func ParseDeclarations(filePath string) (*DeclarationsFile, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", DeclarationFile, err)
	}

	var f DeclarationsFile
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", DeclarationFile, err)
	}
	if f.Version < 1 {
		f.Version = 1
	}

	seen := make(map[string]bool, len(f.Domains))
	for i, d := range f.Domains {
		if d.Name == "" {
			return nil, fmt.Errorf("declaration %d has an empty name", i)
		}
		if seen[d.Name] {
			return nil, fmt.Errorf("duplicate declaration for domain %q", d.Name)
		}
		seen[d.Name] = true
	}
	return &f, nil
}

// LoadDeclarations loads DOMAINS.toml from the repo root if present.
// A missing file is not an error; declarations are optional.
func LoadDeclarations(repoRoot string) ([]Declaration, error) {
	filePath := filepath.Join(repoRoot, DeclarationFile)
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return nil, nil
	}

	f, err := ParseDeclarations(filePath)
	if err != nil {
		return nil, err
	}
	return f.Domains, nil
}

// WriteDeclarations writes a DeclarationsFile to the given path.
func WriteDeclarations(filePath string, f *DeclarationsFile) error {
	data, err := toml.Marshal(f)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", DeclarationFile, err)
	}
	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", DeclarationFile, err)
	}
	return nil
}

// Usage describes one domain tag as seen across the registry and the
// metadata that references it.
type Usage struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Registered  bool   `json:"registered"`
	// References counts definitions tagged with the domain.
	References int `json:"references"`
}

// MergeUsage combines the registered domain list with in-use counts
// into one report, sorted by name. Unregistered-but-used tags appear
// with Registered=false; registered-but-unused tags appear with zero
// references.
func MergeUsage(registered []Domain, inUse map[string]int) []Usage {
	byName := make(map[string]*Usage, len(registered)+len(inUse))
	for _, d := range registered {
		byName[d.Name] = &Usage{
			Name:        d.Name,
			Description: d.Description,
			Registered:  true,
		}
	}
	for name, count := range inUse {
		if u, ok := byName[name]; ok {
			u.References = count
			continue
		}
		byName[name] = &Usage{Name: name, References: count}
	}

	out := make([]Usage, 0, len(byName))
	for _, u := range byName {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
