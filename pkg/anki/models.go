package anki

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Field is a named note field.
type Field struct {
	Name string
	Font string
	Size int
}

// Template renders one card per note.
type Template struct {
	Name  string
	Front string // question format, e.g. "{{Country}}?"
	Back  string // answer format, usually starting with {{FrontSide}}
}

// Model is an Anki note type. ID must stay fixed between runs or imports
// create a second note type.
type Model struct {
	ID        int64
	Name      string
	Fields    []Field
	Templates []Template
	CSS       string
	SortField int
}

// Deck is the target deck. ID must stay fixed between runs.
type Deck struct {
	ID          int64
	Name        string
	Description string
}

// Note is one note of a Model. GUID identifies the note across imports;
// empty means GUIDFor(Fields[0]).
type Note struct {
	GUID   string
	Fields []string
	Tags   []string
}

func (n Note) guid() string {
	if n.GUID != "" {
		return n.GUID
	}
	if len(n.Fields) == 0 {
		return GUIDFor()
	}
	return GUIDFor(n.Fields[0])
}

// Validate checks the model is usable.
func (m Model) Validate() error {
	if m.ID <= 0 {
		return fmt.Errorf("model %q: id must be positive", m.Name)
	}
	if len(m.Fields) == 0 {
		return fmt.Errorf("model %q: no fields", m.Name)
	}
	if len(m.Templates) == 0 {
		return fmt.Errorf("model %q: no templates", m.Name)
	}
	if m.SortField < 0 || m.SortField >= len(m.Fields) {
		return fmt.Errorf("model %q: sort field %d out of range", m.Name, m.SortField)
	}
	return nil
}

const (
	defaultFont     = "Arial"
	defaultFontSize = 20

	latexPre = "\\documentclass[12pt]{article}\n\\special{papersize=3in,5in}\n\\usepackage[utf8]{inputenc}\n" +
		"\\usepackage{amssymb,amsmath}\n\\pagestyle{empty}\n\\setlength{\\parindent}{0in}\n\\begin{document}\n"
	latexPost = "\\end{document}"
)

type fieldJSON struct {
	Font   string `json:"font"`
	Media  []any  `json:"media"`
	Name   string `json:"name"`
	Ord    int    `json:"ord"`
	RTL    bool   `json:"rtl"`
	Size   int    `json:"size"`
	Sticky bool   `json:"sticky"`
}

type templateJSON struct {
	Afmt  string `json:"afmt"`
	Bafmt string `json:"bafmt"`
	Bqfmt string `json:"bqfmt"`
	Did   *int64 `json:"did"`
	Name  string `json:"name"`
	Ord   int    `json:"ord"`
	Qfmt  string `json:"qfmt"`
}

type modelJSON struct {
	CSS       string         `json:"css"`
	Did       int64          `json:"did"`
	Flds      []fieldJSON    `json:"flds"`
	ID        string         `json:"id"`
	LatexPost string         `json:"latexPost"`
	LatexPre  string         `json:"latexPre"`
	Mod       int64          `json:"mod"`
	Name      string         `json:"name"`
	Req       [][]any        `json:"req"`
	Sortf     int            `json:"sortf"`
	Tags      []string       `json:"tags"`
	Tmpls     []templateJSON `json:"tmpls"`
	Type      int            `json:"type"`
	Usn       int            `json:"usn"`
	Vers      []any          `json:"vers"`
}

type deckJSON struct {
	Collapsed bool   `json:"collapsed"`
	Conf      int    `json:"conf"`
	Desc      string `json:"desc"`
	Dyn       int    `json:"dyn"`
	ExtendNew int    `json:"extendNew"`
	ExtendRev int    `json:"extendRev"`
	ID        int64  `json:"id"`
	LrnToday  [2]int `json:"lrnToday"`
	Mod       int64  `json:"mod"`
	Name      string `json:"name"`
	NewToday  [2]int `json:"newToday"`
	RevToday  [2]int `json:"revToday"`
	TimeToday [2]int `json:"timeToday"`
	Usn       int    `json:"usn"`
}

// requirements computes the "req" entry Anki uses to decide whether a card
// is generated: every field the question references must be non-empty.
func (m Model) requirements() [][]any {
	req := make([][]any, 0, len(m.Templates))
	for i, t := range m.Templates {
		ords := []int{}
		for j, f := range m.Fields {
			if strings.Contains(t.Front, "{{"+f.Name+"}}") {
				ords = append(ords, j)
			}
		}
		mode := "all"
		if len(ords) == 0 {
			mode, ords = "any", []int{0}
		}
		req = append(req, []any{i, mode, ords})
	}
	return req
}

func (m Model) toJSON(deckID, mod int64) modelJSON {
	flds := make([]fieldJSON, len(m.Fields))
	for i, f := range m.Fields {
		font, size := f.Font, f.Size
		if font == "" {
			font = defaultFont
		}
		if size == 0 {
			size = defaultFontSize
		}
		flds[i] = fieldJSON{Font: font, Media: []any{}, Name: f.Name, Ord: i, Size: size}
	}
	tmpls := make([]templateJSON, len(m.Templates))
	for i, t := range m.Templates {
		tmpls[i] = templateJSON{Afmt: t.Back, Name: t.Name, Ord: i, Qfmt: t.Front}
	}
	return modelJSON{
		CSS:       m.CSS,
		Did:       deckID,
		Flds:      flds,
		ID:        strconv.FormatInt(m.ID, 10),
		LatexPost: latexPost,
		LatexPre:  latexPre,
		Mod:       mod,
		Name:      m.Name,
		Req:       m.requirements(),
		Sortf:     m.SortField,
		Tags:      []string{},
		Tmpls:     tmpls,
		Usn:       -1,
		Vers:      []any{},
	}
}

func (d Deck) toJSON(mod int64) deckJSON {
	return deckJSON{
		Conf:      1,
		Desc:      d.Description,
		ExtendRev: 50,
		ID:        d.ID,
		Mod:       mod,
		Name:      d.Name,
		Usn:       -1,
	}
}

// Collection is the single row of the col table.
type Collection struct {
	Created  int64 // crt, seconds
	Modified int64 // mod, milliseconds
	Conf     string
	Models   string
	Decks    string
	DConf    string
	Tags     string
}

// newCollection renders the col row for one deck and one model.
func newCollection(deck Deck, model Model, now int64) (Collection, error) {
	mid := strconv.FormatInt(model.ID, 10)
	models, err := json.Marshal(map[string]modelJSON{mid: model.toJSON(deck.ID, now)})
	if err != nil {
		return Collection{}, fmt.Errorf("encode models: %w", err)
	}

	deckMap := map[string]deckJSON{"1": Deck{ID: 1, Name: "Default"}.toJSON(now)}
	deckMap[strconv.FormatInt(deck.ID, 10)] = deck.toJSON(now)
	decks, err := json.Marshal(deckMap)
	if err != nil {
		return Collection{}, fmt.Errorf("encode decks: %w", err)
	}

	conf, err := json.Marshal(map[string]any{
		"activeDecks":   []int64{1},
		"addToCur":      true,
		"collapseTime":  1200,
		"curDeck":       1,
		"curModel":      mid,
		"dueCounts":     true,
		"estTimes":      true,
		"newBury":       true,
		"newSpread":     0,
		"nextPos":       1,
		"sortBackwards": false,
		"sortType":      "noteFld",
		"timeLim":       0,
	})
	if err != nil {
		return Collection{}, fmt.Errorf("encode conf: %w", err)
	}

	dconf, err := json.Marshal(map[string]any{"1": defaultDeckOptions})
	if err != nil {
		return Collection{}, fmt.Errorf("encode dconf: %w", err)
	}

	return Collection{
		Created:  now,
		Modified: now * 1000,
		Conf:     string(conf),
		Models:   string(models),
		Decks:    string(decks),
		DConf:    string(dconf),
		Tags:     "{}",
	}, nil
}

// defaultDeckOptions is Anki's stock "Default" options group.
var defaultDeckOptions = map[string]any{
	"autoplay": true,
	"id":       1,
	"lapse": map[string]any{
		"delays":      []int{10},
		"leechAction": 0,
		"leechFails":  8,
		"minInt":      1,
		"mult":        0,
	},
	"maxTaken": 60,
	"mod":      0,
	"name":     "Default",
	"new": map[string]any{
		"bury":          true,
		"delays":        []int{1, 10},
		"initialFactor": 2500,
		"ints":          []int{1, 4, 7},
		"order":         1,
		"perDay":        20,
		"separate":      true,
	},
	"replayq": true,
	"rev": map[string]any{
		"bury":     true,
		"ease4":    1.3,
		"fuzz":     0.05,
		"ivlFct":   1,
		"maxIvl":   36500,
		"minSpace": 1,
		"perDay":   100,
	},
	"timer": 0,
	"usn":   0,
}
