// Package cards turns population observations into flashcard notes.
package cards

import (
	"fmt"
	"strconv"

	"github.com/japaniel/unpops/pkg/anki"
	"github.com/japaniel/unpops/pkg/sigfig"
	"github.com/japaniel/unpops/pkg/unapi"
)

// Note type identity. These must not change between releases or Anki will
// treat regenerated decks as a new note type.
const (
	ModelID   = 1058090155
	ModelName = "Country Populations (UN)"

	// CompactModelID identifies the three-field variant without the location
	// id. Its schema differs, so it cannot share ModelID.
	CompactModelID   = 1058090156
	CompactModelName = "Country Populations (UN, compact)"

	// DeckID and DeckName are the defaults for the generated deck.
	DeckID   = 20220804
	DeckName = "Country Populations (UN)"
)

const (
	questionFormat = `What was the population of <span class="green">{{Country}}</span> in {{Year}}?`
	answerFormat   = `{{FrontSide}}<hr id="answer"><div class="red">{{Population}}</div>`

	styleSheet = ".card {\n  font-family: Verdana;\n  font-size: 4em;\n" +
		"  text-align: center;\n  color: #DDE0BD;\n" +
		"  background-color: #252627;\n}\n\n" +
		".small { font-size: 0.5em; }\n" +
		".blue { color: #7A8FE1; }\n" +
		".green { color: #32936F; }\n" +
		".red { color: #A15E49; }"
)

// Model returns the note type. The fourth field holds the UN location id;
// the "ISO Country Code" name is kept so existing collections keep matching.
// Without it the compact note type is returned under its own id.
func Model(includeLocationID bool) anki.Model {
	id, name := int64(CompactModelID), CompactModelName
	fields := []anki.Field{{Name: "Country"}, {Name: "Population"}, {Name: "Year"}}
	if includeLocationID {
		id, name = ModelID, ModelName
		fields = append(fields, anki.Field{Name: "ISO Country Code"})
	}
	return anki.Model{
		ID:     id,
		Name:   name,
		Fields: fields,
		Templates: []anki.Template{{
			Name:  "Population",
			Front: questionFormat,
			Back:  answerFormat,
		}},
		CSS: styleSheet,
	}
}

// Item is one generated note. GUID depends on FrontKey only, so a changed
// population figure updates the existing note on import.
type Item struct {
	FrontKey string
	Fields   []string
	Tags     []string
	GUID     string
}

// Generator renders observations with a rounding policy.
type Generator struct {
	Policy            sigfig.Policy
	IncludeLocationID bool
	Tags              []string
}

// NewGenerator returns a Generator with the default rounding policy and the
// location id field enabled.
func NewGenerator() *Generator {
	return &Generator{Policy: sigfig.DefaultPolicy, IncludeLocationID: true}
}

// Generate builds one item per country. A non-zero year is written on every
// card; zero uses each observation's own year. When a country appears more
// than once the latest year wins, keeping the position of its first
// appearance. Rounding failures abort the whole run.
func (g *Generator) Generate(obs []unapi.Observation, year int) ([]Item, error) {
	picked := latestPerLocation(obs)

	items := make([]Item, 0, len(picked))
	for _, o := range picked {
		pop, err := g.Policy.RoundAndFormat(o.Value)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", o.Location, err)
		}
		y := year
		if y == 0 {
			y = o.Year
		}
		fields := []string{o.Location, pop, strconv.Itoa(y)}
		if g.IncludeLocationID {
			fields = append(fields, strconv.Itoa(o.LocationID))
		}
		items = append(items, Item{
			FrontKey: o.Location,
			Fields:   fields,
			Tags:     append([]string(nil), g.Tags...),
			GUID:     anki.GUIDFor(o.Location),
		})
	}
	return items, nil
}

func latestPerLocation(obs []unapi.Observation) []unapi.Observation {
	index := make(map[string]int, len(obs))
	out := make([]unapi.Observation, 0, len(obs))
	for _, o := range obs {
		i, seen := index[o.Location]
		if !seen {
			index[o.Location] = len(out)
			out = append(out, o)
			continue
		}
		if o.Year > out[i].Year {
			out[i] = o
		}
	}
	return out
}

// Notes converts items to package notes.
func Notes(items []Item) []anki.Note {
	notes := make([]anki.Note, len(items))
	for i, it := range items {
		notes[i] = anki.Note{GUID: it.GUID, Fields: it.Fields, Tags: it.Tags}
	}
	return notes
}
