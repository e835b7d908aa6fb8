// Package catalogue holds the fixed, versioned table of reportable
// indicators. A Catalogue is loaded once at start-up and never mutated.
package catalogue

import (
	"crypto/sha256"
	_ "embed"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/pitabwire/readiness/model"
)

//go:embed catalogue.yaml
var defaultDocument []byte

// Input types an indicator may declare.
const (
	InputNumber     = "number"
	InputPercentage = "percentage"
	InputYesNo      = "yes_no"
	InputSelect     = "select"
	InputText       = "text"
)

// Slot identifies which value of an indicator a flat form field carries.
type Slot int

const (
	SlotPrimary Slot = iota
	SlotSecondary
)

// Indicator is one catalogue entry.
type Indicator struct {
	ID        string        `yaml:"id"`
	Section   model.Section `yaml:"section"`
	Name      string        `yaml:"name"`
	InputType string        `yaml:"input_type"`
	Options   []string      `yaml:"options,omitempty"`
	Fields    Fields        `yaml:"fields"`
	Details   *DetailsSpec  `yaml:"details,omitempty"`
}

// Fields names the flat form keys that carry an indicator's values.
type Fields struct {
	Primary   string `yaml:"primary"`
	Secondary string `yaml:"secondary,omitempty"`
}

// DetailsSpec describes the detail list generated for count indicators.
type DetailsSpec struct {
	Kind       string   `yaml:"kind"`
	Vocabulary []string `yaml:"vocabulary"`
}

// FieldRef resolves a flat form key to its indicator and value slot.
type FieldRef struct {
	IndicatorID string
	Section     model.Section
	Slot        Slot
}

type document struct {
	Version    string      `yaml:"version"`
	Indicators []Indicator `yaml:"indicators"`
}

// Catalogue is an immutable, indexed indicator table.
type Catalogue struct {
	version    string
	checksum   string
	source     string
	indicators []Indicator
	byID       map[string]int
	byKey      map[string]FieldRef
	bySection  map[model.Section][]Indicator
}

// Default returns the catalogue compiled into the binary.
func Default() (*Catalogue, error) {
	return Parse(defaultDocument, "embedded")
}

// MustDefault is Default for call sites where the embedded document is known
// to be valid, such as tests.
func MustDefault() *Catalogue {
	c, err := Default()
	if err != nil {
		panic(fmt.Sprintf("catalogue: embedded document invalid: %v", err))
	}
	return c
}

// Load reads a catalogue document from path. An empty path yields the
// embedded default.
func Load(path string) (*Catalogue, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalogue: reading %s: %w", path, err)
	}
	return Parse(data, path)
}

// Parse decodes, validates and indexes a catalogue document.
func Parse(data []byte, source string) (*Catalogue, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("catalogue: parsing %s: %w", source, err)
	}

	c := &Catalogue{
		version:    doc.Version,
		checksum:   fmt.Sprintf("%x", sha256.Sum256(data)),
		source:     source,
		indicators: doc.Indicators,
		byID:       make(map[string]int, len(doc.Indicators)),
		byKey:      make(map[string]FieldRef, 2*len(doc.Indicators)),
		bySection:  make(map[model.Section][]Indicator, len(model.AllSections)),
	}

	var errs []error
	for i, ind := range doc.Indicators {
		errs = append(errs, c.index(i, ind)...)
	}
	if len(doc.Indicators) == 0 {
		errs = append(errs, fmt.Errorf("no indicators defined"))
	} else {
		for _, sec := range model.AllSections {
			if len(c.bySection[sec]) == 0 {
				errs = append(errs, fmt.Errorf("section %s has no indicators", sec))
			}
		}
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("catalogue: validating %s: %w", source, errors.Join(errs...))
	}
	return c, nil
}

func (c *Catalogue) index(i int, ind Indicator) []error {
	var errs []error
	if ind.ID == "" {
		return []error{fmt.Errorf("indicator #%d: id is required", i)}
	}
	if _, dup := c.byID[ind.ID]; dup {
		errs = append(errs, fmt.Errorf("indicator %s: duplicate id", ind.ID))
	}
	if !knownSection(ind.Section) {
		errs = append(errs, fmt.Errorf("indicator %s: unknown section %q", ind.ID, ind.Section))
	}
	if ind.Name == "" {
		errs = append(errs, fmt.Errorf("indicator %s: name is required", ind.ID))
	}
	if ind.Fields.Primary == "" {
		errs = append(errs, fmt.Errorf("indicator %s: fields.primary is required", ind.ID))
	}
	if ind.Details != nil {
		if ind.InputType != InputNumber {
			errs = append(errs, fmt.Errorf("indicator %s: details require input_type %q", ind.ID, InputNumber))
		}
		if ind.Details.Kind == "" || len(ind.Details.Vocabulary) == 0 {
			errs = append(errs, fmt.Errorf("indicator %s: details need a kind and a vocabulary", ind.ID))
		}
	}

	for key, slot := range map[string]Slot{ind.Fields.Primary: SlotPrimary, ind.Fields.Secondary: SlotSecondary} {
		if key == "" {
			continue
		}
		if prev, dup := c.byKey[key]; dup {
			errs = append(errs, fmt.Errorf("indicator %s: field %q already used by %s", ind.ID, key, prev.IndicatorID))
			continue
		}
		c.byKey[key] = FieldRef{IndicatorID: ind.ID, Section: ind.Section, Slot: slot}
	}

	c.byID[ind.ID] = i
	c.bySection[ind.Section] = append(c.bySection[ind.Section], ind)
	return errs
}

func knownSection(s model.Section) bool {
	for _, known := range model.AllSections {
		if s == known {
			return true
		}
	}
	return false
}

// Lookup returns the indicator with the given id.
func (c *Catalogue) Lookup(id string) (Indicator, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Indicator{}, false
	}
	return c.indicators[i], true
}

// FieldFor resolves a flat form key.
func (c *Catalogue) FieldFor(key string) (FieldRef, bool) {
	ref, ok := c.byKey[key]
	return ref, ok
}

// Indicators returns the indicators of a section in catalogue order.
func (c *Catalogue) Indicators(s model.Section) []Indicator {
	return c.bySection[s]
}

// All returns every indicator in catalogue order.
func (c *Catalogue) All() []Indicator {
	out := make([]Indicator, len(c.indicators))
	copy(out, c.indicators)
	return out
}

// Len returns the number of indicators.
func (c *Catalogue) Len() int { return len(c.indicators) }

// Version returns the document version string.
func (c *Catalogue) Version() string { return c.version }

// Checksum returns the SHA-256 of the source document.
func (c *Catalogue) Checksum() string { return c.checksum }

// Source returns where the catalogue was loaded from.
func (c *Catalogue) Source() string { return c.source }
