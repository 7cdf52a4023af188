// Package territory removes non-sovereign entities from the location list.
//
// The Data Portal tags many dependent territories as "Country". The names to
// drop are kept as data (territories.yaml) so the list can be revised without
// touching the filter. Matching is exact: "Curaçao" and "Curacao" differ.
package territory

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/japaniel/unpops/pkg/unapi"
)

//go:embed territories.yaml
var defaultList []byte

// Denylist is a named, versioned set of location names to exclude.
type Denylist struct {
	Name    string
	Version int

	names []string
	set   map[string]struct{}
}

type denylistFile struct {
	Name        string   `yaml:"name"`
	Version     int      `yaml:"version"`
	Territories []string `yaml:"territories"`
}

// Default returns the embedded list.
func Default() *Denylist {
	d, err := Parse(defaultList)
	if err != nil {
		panic(fmt.Sprintf("territory: embedded list is invalid: %v", err))
	}
	return d
}

// Load reads a denylist file in the same format as the embedded one.
func Load(path string) (*Denylist, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read denylist: %w", err)
	}
	d, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return d, nil
}

// Parse decodes a YAML denylist. Blank and duplicate names are rejected,
// since either usually means a typo in the list.
func Parse(data []byte) (*Denylist, error) {
	var f denylistFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse denylist: %w", err)
	}
	d := &Denylist{
		Name:    f.Name,
		Version: f.Version,
		names:   make([]string, 0, len(f.Territories)),
		set:     make(map[string]struct{}, len(f.Territories)),
	}
	for i, n := range f.Territories {
		if strings.TrimSpace(n) == "" {
			return nil, fmt.Errorf("parse denylist: entry %d is blank", i)
		}
		if _, dup := d.set[n]; dup {
			return nil, fmt.Errorf("parse denylist: %q listed twice", n)
		}
		d.set[n] = struct{}{}
		d.names = append(d.names, n)
	}
	return d, nil
}

// Contains reports whether name is on the list.
func (d *Denylist) Contains(name string) bool {
	_, ok := d.set[name]
	return ok
}

// Names returns the listed names in file order.
func (d *Denylist) Names() []string {
	return append([]string(nil), d.names...)
}

// Len returns the number of listed names.
func (d *Denylist) Len() int { return len(d.names) }

// Filter returns the locations whose name is not on the list, in input order.
func (d *Denylist) Filter(locations []unapi.Location) []unapi.Location {
	out := make([]unapi.Location, 0, len(locations))
	for _, l := range locations {
		if !d.Contains(l.Name) {
			out = append(out, l)
		}
	}
	return out
}

// IDs returns the location ids in order, for scoping a population query.
func IDs(locations []unapi.Location) []int {
	ids := make([]int, len(locations))
	for i, l := range locations {
		ids[i] = l.ID
	}
	return ids
}
