package unapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryPathDefaultsToCurrentYear(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.Local)
	q := Query{IndicatorID: 49, LocationIDs: []int{4, 8, 12}}
	assert.Equal(t, "/data/indicators/49/locations/4,8,12/start/2026/end/2026", q.Path(now))

	q.StartYear, q.EndYear = 2020, 2022
	assert.Equal(t, "/data/indicators/49/locations/4,8,12/start/2020/end/2022", q.Path(now))
}

func TestLocationsKeepsCountries(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "2" {
			_, _ = w.Write([]byte(`{"data":[
				{"id":250,"name":"France","iso3":"FRA","iso2":"FR","locationType":"Country"},
				{"id":900,"name":"World","locationType":"World"}
			],"nextPage":null}`))
			return
		}
		_, _ = w.Write([]byte(`{"data":[
			{"id":4,"name":"Afghanistan","iso3":"AFG","iso2":"AF","locationType":"Country"},
			{"id":903,"name":"Africa","locationType":"Region"},
			{"id":60,"name":"Bermuda","iso3":"BMU","iso2":"BM","locationType":"Country"}
		],"nextPage":"` + srv.URL + `/locations/?page=2"}`))
	}))
	defer srv.Close()

	locs, err := NewClient(srv.URL).Locations(context.Background())
	require.NoError(t, err)
	require.Len(t, locs, 3)
	assert.Equal(t, "Afghanistan", locs[0].Name)
	assert.Equal(t, "Bermuda", locs[1].Name)
	assert.Equal(t, Location{ID: 250, Name: "France", ISO3: "FRA", ISO2: "FR", Type: TypeCountry}, locs[2])
}

func TestLocationsRejectsInvalidRecord(t *testing.T) {
	srv := jsonServer(t, `{"data":[{"id":0,"name":"","locationType":"Country"}],"nextPage":null}`)
	_, err := NewClient(srv.URL).Locations(context.Background())
	assert.ErrorIs(t, err, ErrSchema)
}

const populationRows = `{"data":[
	{"locationId":250,"location":"France","iso3":"FRA","indicatorId":49,"indicator":"Total population by sex","variant":"Median","sex":"Both sexes","timeLabel":"2026","value":66548530},
	{"locationId":250,"location":"France","iso3":"FRA","indicatorId":49,"indicator":"Total population by sex","variant":"Median","sex":"Female","timeLabel":"2026","value":34100000},
	{"locationId":250,"location":"France","iso3":"FRA","indicatorId":49,"indicator":"Total population by sex","variant":"Low","sex":"Both sexes","timeLabel":"2026","value":66000000},
	{"locationId":4,"location":"Afghanistan","iso3":"AFG","indicatorId":49,"indicator":"Total population by sex","variant":"Median","sex":"Both sexes","timeLabel":"2026","value":43844111}
],"nextPage":null}`

func TestPopulationFiltersMedianBothSexes(t *testing.T) {
	paths := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths <- r.URL.Path
		_, _ = w.Write([]byte(populationRows))
	}))
	defer srv.Close()

	now := func() time.Time { return time.Date(2026, 6, 1, 0, 0, 0, 0, time.Local) }
	c := NewClient(srv.URL, WithClock(now))
	obs, err := c.Population(context.Background(), Query{IndicatorID: 49, LocationIDs: []int{250, 4}})
	require.NoError(t, err)
	assert.Equal(t, "/data/indicators/49/locations/250,4/start/2026/end/2026", <-paths)

	require.Len(t, obs, 2)
	assert.Equal(t, Observation{
		Indicator:   "Total population by sex",
		IndicatorID: 49,
		ISO3:        "FRA",
		Location:    "France",
		LocationID:  250,
		Sex:         SexBoth,
		Value:       66548530,
		Variant:     VariantMedian,
		Year:        2026,
	}, obs[0])
	assert.Equal(t, "Afghanistan", obs[1].Location)
}

func TestPopulationEmptyResult(t *testing.T) {
	srv := jsonServer(t, `{"data":[
		{"locationId":250,"location":"France","variant":"Low","sex":"Both sexes","timeLabel":"2026","value":66000000},
		{"locationId":4,"location":"Afghanistan","variant":"Low","sex":"Both sexes","timeLabel":"2026","value":43000000}
	],"nextPage":null}`)

	_, err := NewClient(srv.URL).Population(context.Background(), Query{IndicatorID: 49, LocationIDs: []int{250, 4}})
	assert.ErrorIs(t, err, ErrEmptyResult)
}

func TestPopulationRequiresLocations(t *testing.T) {
	_, err := NewClient("http://127.0.0.1:1").Population(context.Background(), Query{IndicatorID: 49})
	assert.ErrorIs(t, err, ErrEmptyResult)
}

func TestPopulationRejectsNegativeValue(t *testing.T) {
	srv := jsonServer(t, `{"data":[
		{"locationId":250,"location":"France","variant":"Median","sex":"Both sexes","timeLabel":"2026","value":-1}
	],"nextPage":null}`)
	_, err := NewClient(srv.URL).Population(context.Background(), Query{IndicatorID: 49, LocationIDs: []int{250}})
	assert.ErrorIs(t, err, ErrSchema)
}

func TestPopulationRejectsBadYear(t *testing.T) {
	srv := jsonServer(t, `{"data":[
		{"locationId":250,"location":"France","variant":"Median","sex":"Both sexes","timeLabel":"2020-2025","value":1}
	],"nextPage":null}`)
	_, err := NewClient(srv.URL).Population(context.Background(), Query{IndicatorID: 49, LocationIDs: []int{250}})
	assert.ErrorIs(t, err, ErrSchema)
}

func TestIndicators(t *testing.T) {
	paths := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths <- r.URL.Path
		_, _ = w.Write([]byte(`[{"id":2,"name":"Population","shortName":"Pop","indicators":[
			{"id":49,"name":"Total population by sex","shortName":"TPopulation1July"},
			{"id":47,"name":"Population by 5-year age groups and sex","shortName":"PopByAge5AndSex"}
		]}]`))
	}))
	defer srv.Close()

	inds, err := NewClient(srv.URL).Indicators(context.Background(), "Pop")
	require.NoError(t, err)
	assert.Equal(t, "/topics/Pop/indicators/", <-paths)
	require.Len(t, inds, 2)
	assert.Equal(t, 49, inds[0].ID)
	assert.Equal(t, "PopByAge5AndSex", inds[1].ShortName)
}
