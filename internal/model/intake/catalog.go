package intake

import (
	_ "embed"
	"fmt"
	"slices"

	"github.com/BurntSushi/toml"
)

//go:embed catalog.toml
var defaultCatalog string

// SampleTest describes one at-home collection kit.
type SampleTest struct {
	ID          string   `toml:"id" json:"id"`
	Title       string   `toml:"title" json:"title"`
	Description string   `toml:"description" json:"description"`
	Steps       []string `toml:"steps" json:"steps"`
	Warning     string   `toml:"warning" json:"warning"`
}

// Catalog lists the sample tests and pickup slots on offer.
type Catalog struct {
	Tests     []SampleTest `toml:"test" json:"tests"`
	TimeSlots []string     `toml:"time_slots" json:"timeSlots"`
}

// LoadCatalog decodes the embedded catalog.
func LoadCatalog() (*Catalog, error) {
	return ParseCatalog(defaultCatalog)
}

// ParseCatalog decodes a TOML catalog document.
func ParseCatalog(doc string) (*Catalog, error) {
	var c Catalog
	if _, err := toml.Decode(doc, &c); err != nil {
		return nil, fmt.Errorf("decode sample catalog: %w", err)
	}
	seen := make(map[string]struct{}, len(c.Tests))
	for _, t := range c.Tests {
		if t.ID == "" {
			return nil, fmt.Errorf("sample test %q has no id", t.Title)
		}
		if _, dup := seen[t.ID]; dup {
			return nil, fmt.Errorf("duplicate sample test id %q", t.ID)
		}
		seen[t.ID] = struct{}{}
	}
	return &c, nil
}

// FindTest looks up a sample test by id.
func (c *Catalog) FindTest(id string) (SampleTest, bool) {
	for _, t := range c.Tests {
		if t.ID == id {
			return t, true
		}
	}
	return SampleTest{}, false
}

// HasTimeSlot reports whether slot is offered.
func (c *Catalog) HasTimeSlot(slot string) bool {
	return slices.Contains(c.TimeSlots, slot)
}
