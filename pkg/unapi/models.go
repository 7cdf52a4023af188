package unapi

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Values the Data Portal uses for the fields this client filters on.
const (
	TypeCountry   = "Country"
	VariantMedian = "Median"
	SexBoth       = "Both sexes"

	// IndicatorTotalPopulation is "Total population by sex".
	IndicatorTotalPopulation = 49
)

var validate = validator.New()

// Location is an entry of /locations/. Only Type "Country" entries are used
// to scope population queries.
type Location struct {
	ID   int    `json:"id" validate:"gt=0"`
	Name string `json:"name" validate:"required"`
	ISO3 string `json:"iso3"`
	ISO2 string `json:"iso2"`
	Type string `json:"locationType"`
}

// Observation is one population figure after the variant and sex filter.
// Fields are declared in JSON key order so encoded snapshots have sorted keys.
type Observation struct {
	Indicator   string  `json:"indicator"`
	IndicatorID int     `json:"indicatorId"`
	ISO3        string  `json:"iso3"`
	Location    string  `json:"location" validate:"required"`
	LocationID  int     `json:"locationId" validate:"gt=0"`
	Sex         string  `json:"sex"`
	Value       float64 `json:"value" validate:"gte=0"`
	Variant     string  `json:"variant"`
	Year        int     `json:"year" validate:"gt=0"`
}

// Validate checks the invariants of an observation.
func (o Observation) Validate() error {
	return validate.Struct(o)
}

// dataRow is a record of a /data/indicators/... response, as sent.
type dataRow struct {
	LocationID  int     `json:"locationId" validate:"gt=0"`
	Location    string  `json:"location" validate:"required"`
	ISO3        string  `json:"iso3"`
	IndicatorID int     `json:"indicatorId"`
	Indicator   string  `json:"indicator"`
	Variant     string  `json:"variant"`
	Sex         string  `json:"sex"`
	TimeLabel   string  `json:"timeLabel" validate:"required"`
	Value       float64 `json:"value" validate:"gte=0"`
}

// Topic is an entry of /topics/.
type Topic struct {
	ID        int    `json:"id"`
	Name      string `json:"name" validate:"required"`
	ShortName string `json:"shortName"`
}

// Indicator is an entry of a topic's indicator list.
type Indicator struct {
	ID          int    `json:"id" validate:"gt=0"`
	Name        string `json:"name" validate:"required"`
	ShortName   string `json:"shortName"`
	DisplayName string `json:"displayName"`
	TopicID     int    `json:"topicId"`
}

// decodeRecords unmarshals raw records into T and validates each one, so
// nothing loosely typed leaves the client.
func decodeRecords[T any](source string, raw []json.RawMessage) ([]T, error) {
	out := make([]T, 0, len(raw))
	for i, r := range raw {
		var v T
		if err := json.Unmarshal(r, &v); err != nil {
			return nil, &SchemaError{URL: source, Reason: fmt.Sprintf("record %d: %v", i, err)}
		}
		if err := validate.Struct(v); err != nil {
			return nil, &SchemaError{URL: source, Reason: fmt.Sprintf("record %d: %v", i, err)}
		}
		out = append(out, v)
	}
	return out, nil
}
