package unapi

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Query selects population rows for a set of locations and a year range.
// Zero years mean the current calendar year, so the zero range is the
// latest single-year snapshot.
type Query struct {
	IndicatorID int
	LocationIDs []int
	StartYear   int
	EndYear     int
}

// Path renders the query as a data endpoint path.
func (q Query) Path(now time.Time) string {
	start, end := q.StartYear, q.EndYear
	if start == 0 {
		start = CurrentYear(now)
	}
	if end == 0 {
		end = CurrentYear(now)
	}
	ids := make([]string, len(q.LocationIDs))
	for i, id := range q.LocationIDs {
		ids[i] = strconv.Itoa(id)
	}
	return fmt.Sprintf("/data/indicators/%d/locations/%s/start/%d/end/%d",
		q.IndicatorID, strings.Join(ids, ","), start, end)
}

// CurrentYear returns the calendar year of now in local time.
func CurrentYear(now time.Time) int {
	return now.Local().Year()
}

// Locations returns every location whose type is Country. The list still
// contains dependent territories; see package territory.
func (c *Client) Locations(ctx context.Context) ([]Location, error) {
	const path = "/locations/"
	raw, err := c.Fetch(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("fetch locations: %w", err)
	}
	all, err := decodeRecords[Location](c.resolve(path), raw)
	if err != nil {
		return nil, err
	}
	countries := make([]Location, 0, len(all))
	for _, l := range all {
		if l.Type == TypeCountry {
			countries = append(countries, l)
		}
	}
	return countries, nil
}

// Topics lists the API's topics.
func (c *Client) Topics(ctx context.Context) ([]Topic, error) {
	const path = "/topics/"
	raw, err := c.Fetch(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("fetch topics: %w", err)
	}
	return decodeRecords[Topic](c.resolve(path), raw)
}

// Indicators lists the indicators of a topic (e.g. "Pop").
func (c *Client) Indicators(ctx context.Context, topic string) ([]Indicator, error) {
	path := "/topics/" + topic + "/indicators/"
	raw, err := c.FetchList(ctx, path, "indicators")
	if err != nil {
		return nil, fmt.Errorf("fetch indicators for %s: %w", topic, err)
	}
	return decodeRecords[Indicator](c.resolve(path), raw)
}

// Population runs q and returns the Median, Both sexes rows in response
// order. It fails with ErrEmptyResult when nothing survives the filter.
func (c *Client) Population(ctx context.Context, q Query) ([]Observation, error) {
	if len(q.LocationIDs) == 0 {
		return nil, fmt.Errorf("%w: query has no location ids", ErrEmptyResult)
	}
	path := q.Path(c.now())
	raw, err := c.Fetch(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("fetch population: %w", err)
	}
	rows, err := decodeRecords[dataRow](c.resolve(path), raw)
	if err != nil {
		return nil, err
	}
	return selectObservations(c.resolve(path), rows)
}

// selectObservations keeps Median, Both sexes rows and projects them.
func selectObservations(source string, rows []dataRow) ([]Observation, error) {
	var out []Observation
	for _, r := range rows {
		if r.Variant != VariantMedian || r.Sex != SexBoth {
			continue
		}
		year, err := strconv.Atoi(strings.TrimSpace(r.TimeLabel))
		if err != nil {
			return nil, &SchemaError{URL: source, Reason: fmt.Sprintf("%s: timeLabel %q is not a year", r.Location, r.TimeLabel)}
		}
		out = append(out, Observation{
			Indicator:   r.Indicator,
			IndicatorID: r.IndicatorID,
			ISO3:        r.ISO3,
			Location:    r.Location,
			LocationID:  r.LocationID,
			Sex:         r.Sex,
			Value:       r.Value,
			Variant:     r.Variant,
			Year:        year,
		})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %d rows, none with variant %q and sex %q", ErrEmptyResult, len(rows), VariantMedian, SexBoth)
	}
	return out, nil
}
