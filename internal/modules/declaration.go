package modules

import (
	"fmt"
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

// DeclarationFile is the default filename for module declarations.
const DeclarationFile = "MODULES.toml"

// Declaration is one declared module in MODULES.toml. Declarations
// override derived values: a matching module keeps its id and members
// but takes the declared name, description, and entity.
type Declaration struct {
	// Path is the dotted module path this declaration applies to.
	Path string `toml:"path"`

	// Name overrides the display name (defaults to the last segment).
	Name string `toml:"name,omitempty"`

	// Description is a one-line statement of what the module does.
	// Flow naming extracts entity nouns from it.
	Description string `toml:"description,omitempty"`

	// Entity pins the entity noun directly, bypassing extraction.
	Entity string `toml:"entity,omitempty"`

	// Domains tags the module's definitions with domain names.
	Domains []string `toml:"domains,omitempty"`
}

// DeclarationsFile is the root structure of MODULES.toml.
type DeclarationsFile struct {
	Version int           `toml:"version"`
	Modules []Declaration `toml:"module"`
}

// ParseDeclarations parses a MODULES.toml file.
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

	for i, d := range f.Modules {
		if err := ValidatePath(d.Path); err != nil {
			return nil, fmt.Errorf("declaration %d: %w", i, err)
		}
	}

	return &f, nil
}

// LoadDeclarations loads MODULES.toml from the repo root if present.
// A missing file is not an error; declarations are optional.
func LoadDeclarations(repoRoot string) (map[string]Declaration, error) {
	filePath := filepath.Join(repoRoot, DeclarationFile)
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return nil, nil
	}

	f, err := ParseDeclarations(filePath)
	if err != nil {
		return nil, err
	}

	decls := make(map[string]Declaration, len(f.Modules))
	for _, d := range f.Modules {
		if _, dup := decls[d.Path]; dup {
			return nil, fmt.Errorf("duplicate declaration for module %q", d.Path)
		}
		decls[d.Path] = d
	}
	return decls, nil
}

// Apply copies the declared overrides onto a module.
func (d Declaration) Apply(m *Module) {
	if d.Name != "" {
		m.Name = d.Name
	}
	if d.Description != "" {
		m.Description = d.Description
	}
	if d.Entity != "" {
		m.Entity = d.Entity
	}
}

// WriteDeclarations writes a DeclarationsFile to the given path.
func WriteDeclarations(filePath string, f *DeclarationsFile) error {
	data, err := toml.Marshal(f)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", DeclarationFile, err)
	}
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", DeclarationFile, err)
	}
	return nil
}
