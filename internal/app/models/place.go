package models

// Place is a result from the external place-lookup provider. Its content is
// untrusted enrichment and never required by the core.
type Place struct {
	PlaceID        string      `json:"place_id"`
	Name           string      `json:"name"`
	Address        string      `json:"address"`
	Coordinates    Coordinates `json:"coordinates"`
	Rating         *float64    `json:"rating,omitempty"`
	PriceLevel     *int        `json:"price_level,omitempty"`
	Types          []string    `json:"types,omitempty"`
	BusinessStatus string      `json:"business_status,omitempty"`
	Website        string      `json:"website,omitempty"`
	PhoneNumber    string      `json:"phone_number,omitempty"`
}

// PlaceQuery is either a text search, a coordinate search or both. Types
// restricts autocomplete to a provider category filter.
type PlaceQuery struct {
	Text    string
	Near    *Coordinates
	Radius  int
	Keyword string
	Types   string
}

// PlacePrediction is one autocomplete suggestion.
type PlacePrediction struct {
	PlaceID       string   `json:"place_id"`
	Description   string   `json:"description"`
	MainText      string   `json:"main_text,omitempty"`
	SecondaryText string   `json:"secondary_text,omitempty"`
	Types         []string `json:"types,omitempty"`
}

// GeocodeResult is one reverse-geocoding match. City and Country are lifted
// from the address components when the provider supplies them.
type GeocodeResult struct {
	PlaceID          string      `json:"place_id"`
	FormattedAddress string      `json:"formatted_address"`
	City             string      `json:"city,omitempty"`
	Country          string      `json:"country,omitempty"`
	Coordinates      Coordinates `json:"coordinates"`
	Types            []string    `json:"types,omitempty"`
}

// PlaceType is a filterable provider category.
type PlaceType struct {
	Value string `json:"value"`
	Label string `json:"label"`
}
