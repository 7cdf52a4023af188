// Package pipeline runs the deck generation flow: pick a data source, turn
// the observations into notes and write the deck package.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/japaniel/unpops/pkg/anki"
	"github.com/japaniel/unpops/pkg/cards"
	"github.com/japaniel/unpops/pkg/snapshot"
	"github.com/japaniel/unpops/pkg/territory"
	"github.com/japaniel/unpops/pkg/unapi"
)

// Source selects where observations come from.
type Source int

const (
	// SourceCache reads the local snapshot.
	SourceCache Source = iota + 1
	// SourceLive queries the API and refreshes the snapshot.
	SourceLive
)

func (s Source) String() string {
	switch s {
	case SourceCache:
		return "cache"
	case SourceLive:
		return "live"
	default:
		return fmt.Sprintf("Source(%d)", int(s))
	}
}

// ParseSource accepts "cache"/"local"/"1" and "live"/"un"/"2".
func ParseSource(s string) (Source, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cache", "local", "1":
		return SourceCache, nil
	case "live", "un", "2":
		return SourceLive, nil
	}
	return 0, fmt.Errorf("unknown data source %q (want cache or live)", s)
}

// PopulationAPI is the part of the API client the pipeline needs.
type PopulationAPI interface {
	Locations(ctx context.Context) ([]unapi.Location, error)
	Population(ctx context.Context, q unapi.Query) ([]unapi.Observation, error)
}

// Pipeline holds the collaborators of one run.
type Pipeline struct {
	API    PopulationAPI
	Filter *territory.Denylist
	Store  *snapshot.Store
	Query  unapi.Query
	Logger *slog.Logger
	Now    func() time.Time
}

func (p *Pipeline) logger() *slog.Logger {
	if p.Logger == nil {
		return slog.Default()
	}
	return p.Logger
}

func (p *Pipeline) now() time.Time {
	if p.Now == nil {
		return time.Now()
	}
	return p.Now()
}

// FetchLive queries the API for every sovereign country and overwrites the
// snapshot with the result.
func (p *Pipeline) FetchLive(ctx context.Context) (*snapshot.Snapshot, error) {
	log := p.logger()

	locs, err := p.API.Locations(ctx)
	if err != nil {
		return nil, err
	}
	filter := p.Filter
	if filter == nil {
		filter = territory.Default()
	}
	kept := filter.Filter(locs)
	log.Info("locations", "countries", len(locs), "kept", len(kept), "denylist", filter.Name)

	q := p.Query
	if q.IndicatorID == 0 {
		q.IndicatorID = unapi.IndicatorTotalPopulation
	}
	q.LocationIDs = territory.IDs(kept)
	obs, err := p.API.Population(ctx, q)
	if err != nil {
		return nil, err
	}
	log.Info("population", "observations", len(obs), "indicator", q.IndicatorID)

	if err := p.Store.Save(ctx, obs); err != nil {
		return nil, err
	}
	log.Debug("snapshot saved", "path", p.Store.Path())
	return &snapshot.Snapshot{Observations: obs, ModTime: p.now()}, nil
}

// ErrNoLocalCopy is returned by Load for SourceCache before the first live
// run.
var ErrNoLocalCopy = errors.New("no local copy of the data yet; run with the live source first")

// Load returns observations from src.
func (p *Pipeline) Load(ctx context.Context, src Source) (*snapshot.Snapshot, error) {
	switch src {
	case SourceCache:
		if !p.Store.Exists() {
			return nil, fmt.Errorf("%w (%s)", ErrNoLocalCopy, p.Store.Path())
		}
		snap, err := p.Store.Load()
		if errors.Is(err, snapshot.ErrNotFound) {
			return nil, fmt.Errorf("%w (%v)", ErrNoLocalCopy, err)
		}
		return snap, err
	case SourceLive:
		return p.FetchLive(ctx)
	}
	return nil, fmt.Errorf("unknown data source %v", src)
}

// ExportOptions control deck output.
type ExportOptions struct {
	Output    string
	Year      int
	Generator *cards.Generator
	Deck      anki.Deck
}

// ExportResult describes a written deck.
type ExportResult struct {
	Path  string
	Notes int
}

// Export renders snap as notes and writes the deck package.
func (p *Pipeline) Export(ctx context.Context, snap *snapshot.Snapshot, opts ExportOptions) (*ExportResult, error) {
	gen := opts.Generator
	if gen == nil {
		gen = cards.NewGenerator()
	}
	items, err := gen.Generate(snap.Observations, opts.Year)
	if err != nil {
		return nil, fmt.Errorf("generate cards: %w", err)
	}

	deck := opts.Deck
	if deck.Name == "" {
		deck.Name = cards.DeckName
	}
	if deck.ID == 0 {
		deck.ID = anki.DeckIDFor(deck.Name)
	}
	pkg := &anki.Package{
		Deck:  deck,
		Model: cards.Model(gen.IncludeLocationID),
		Notes: cards.Notes(items),
		Now:   p.Now,
	}
	if err := pkg.WriteToFile(ctx, opts.Output); err != nil {
		return nil, fmt.Errorf("write deck: %w", err)
	}
	p.logger().Info("deck written", "path", opts.Output, "notes", len(items), "deck_id", deck.ID)
	return &ExportResult{Path: opts.Output, Notes: len(items)}, nil
}

// Status describes the local snapshot.
type Status struct {
	SnapshotPath string
	HasSnapshot  bool
	LastModified time.Time
}

// Never is shown in place of a date when no snapshot exists.
const Never = "never"

// LastPulled formats the snapshot date, or Never.
func (s Status) LastPulled() string {
	if !s.HasSnapshot {
		return Never
	}
	return s.LastModified.Format("2006-01-02")
}

// Status reports on the local snapshot. Stat failures read as no snapshot.
func (p *Pipeline) Status() Status {
	st := Status{SnapshotPath: p.Store.Path()}
	mod, err := p.Store.LastModified()
	if err != nil {
		if !errors.Is(err, snapshot.ErrNotFound) {
			p.logger().Warn("cannot stat snapshot", "path", st.SnapshotPath, "error", err)
		}
		return st
	}
	st.HasSnapshot = true
	st.LastModified = mod
	return st
}
