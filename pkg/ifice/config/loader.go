package config

import "fmt"

// Loader loads all configuration files and constructs components
type Loader struct {
	TaxonomyPath string // empty: built-in taxonomy
	EnginePath   string // empty: DefaultEngine
}

// Components holds all loaded configuration components
type Components struct {
	Taxonomy *Taxonomy
	Engine   Engine
}

// Load reads all configuration files and returns initialized components
func (l *Loader) Load() (*Components, error) {
	comp := &Components{}

	// Load taxonomy
	if l.TaxonomyPath != "" {
		tax, err := LoadTaxonomy(l.TaxonomyPath)
		if err != nil {
			return nil, fmt.Errorf("load taxonomy: %w", err)
		}
		comp.Taxonomy = tax
	} else {
		tax, err := DefaultTaxonomy()
		if err != nil {
			return nil, fmt.Errorf("load built-in taxonomy: %w", err)
		}
		comp.Taxonomy = tax
	}

	// Load engine tuning
	if l.EnginePath != "" {
		eng, err := LoadEngine(l.EnginePath)
		if err != nil {
			return nil, fmt.Errorf("load engine config: %w", err)
		}
		comp.Engine = eng
	} else {
		comp.Engine = DefaultEngine()
	}

	return comp, nil
}
