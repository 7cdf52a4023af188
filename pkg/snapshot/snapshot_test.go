package snapshot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/japaniel/unpops/pkg/unapi"
)

func sampleObservations() []unapi.Observation {
	return []unapi.Observation{
		{Indicator: "Total population by sex", IndicatorID: 49, ISO3: "FRA", Location: "France", LocationID: 250, Sex: unapi.SexBoth, Value: 66548530, Variant: unapi.VariantMedian, Year: 2026},
		{Indicator: "Total population by sex", IndicatorID: 49, ISO3: "CIV", Location: "Côte d'Ivoire", LocationID: 384, Sex: unapi.SexBoth, Value: 32711547.5, Variant: unapi.VariantMedian, Year: 2026},
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "data"), "")
	assert.False(t, s.Exists())

	obs := sampleObservations()
	require.NoError(t, s.Save(context.Background(), obs))
	assert.True(t, s.Exists())
	assert.Equal(t, "countries.json", filepath.Base(s.Path()))

	snap, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, obs, snap.Observations)
	assert.False(t, snap.ModTime.IsZero())

	mod, err := s.LastModified()
	require.NoError(t, err)
	assert.Equal(t, mod, snap.ModTime)
}

func TestSaveOverwrites(t *testing.T) {
	s := NewStore(t.TempDir(), "countries")
	obs := sampleObservations()
	require.NoError(t, s.Save(context.Background(), obs))
	require.NoError(t, s.Save(context.Background(), obs[:1]))

	snap, err := s.Load()
	require.NoError(t, err)
	require.Len(t, snap.Observations, 1)
	assert.Equal(t, "France", snap.Observations[0].Location)

	entries, err := os.ReadDir(s.Dir())
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasSuffix(e.Name(), ".tmp"), "leftover %s", e.Name())
	}
}

func TestFileFormat(t *testing.T) {
	data, err := Encode(sampleObservations()[:1])
	require.NoError(t, err)
	want := `[
    {
        "indicator": "Total population by sex",
        "indicatorId": 49,
        "iso3": "FRA",
        "location": "France",
        "locationId": 250,
        "sex": "Both sexes",
        "value": 66548530,
        "variant": "Median",
        "year": 2026
    }
]
`
	assert.Equal(t, want, string(data))

	empty, err := Encode(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]\n", string(empty))
}

func TestLoadMissing(t *testing.T) {
	s := NewStore(t.TempDir(), "countries")
	_, err := s.Load()
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.LastModified()
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoadCorrupt(t *testing.T) {
	s := NewStore(t.TempDir(), "countries")

	require.NoError(t, os.WriteFile(s.Path(), []byte(`{"not":"an array"`), 0o644))
	_, err := s.Load()
	assert.ErrorIs(t, err, ErrCorrupt)

	require.NoError(t, os.WriteFile(s.Path(), []byte(`[{"location":"","locationId":1,"value":1,"year":2026}]`), 0o644))
	_, err = s.Load()
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestSaveWaitsForLock(t *testing.T) {
	s := NewStore(t.TempDir(), "countries")
	require.NoError(t, os.MkdirAll(s.Dir(), 0o755))

	held := flock.New(s.lockPath())
	locked, err := held.TryLock()
	require.NoError(t, err)
	require.True(t, locked)
	defer func() { _ = held.Unlock() }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = s.Save(ctx, sampleObservations())
	require.Error(t, err)
	assert.False(t, s.Exists())
}

func TestYears(t *testing.T) {
	snap := &Snapshot{Observations: []unapi.Observation{{Year: 2026}, {Year: 2024}, {Year: 2026}, {Year: 2025}}}
	assert.Equal(t, []int{2024, 2025, 2026}, snap.Years())
}

func TestSaveFailedWriteLeavesNoTempFile(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, "")
	tmp := fmt.Sprintf("%s.%d.tmp", s.Path(), os.Getpid())
	require.NoError(t, os.Mkdir(tmp, 0o755))

	err := s.Save(context.Background(), sampleObservations())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "write snapshot")
	assert.NoFileExists(t, tmp)
	assert.NoDirExists(t, tmp)
	assert.False(t, s.Exists())
}
