package models

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CaptureDayLayout is the calendar-day format pins are grouped by.
const CaptureDayLayout = "2006-01-02"

type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Validate checks both components are finite and inside the WGS84 range.
func (c Coordinates) Validate() error {
	if math.IsNaN(c.Lat) || math.IsInf(c.Lat, 0) || c.Lat < -90 || c.Lat > 90 {
		return NewValidationError("lat", "latitude must be between -90 and 90")
	}
	if math.IsNaN(c.Lng) || math.IsInf(c.Lng, 0) || c.Lng < -180 || c.Lng > 180 {
		return NewValidationError("lng", "longitude must be between -180 and 180")
	}
	return nil
}

// Pin is a captured point of interest. A pin is consumed exactly when RouteID is set.
type Pin struct {
	ID             uuid.UUID   `json:"id"`
	UserID         uuid.UUID   `json:"user_id"`
	Name           string      `json:"name"`
	Address        *string     `json:"address,omitempty"`
	Description    *string     `json:"description,omitempty"`
	Image          *string     `json:"image,omitempty"`
	Coordinates    Coordinates `json:"coordinates"`
	PlaceID        *string     `json:"place_id,omitempty"`
	Category       *string     `json:"category,omitempty"`
	Rating         *float64    `json:"rating,omitempty"`
	PriceLevel     *int        `json:"price_level,omitempty"`
	Website        *string     `json:"website,omitempty"`
	PhoneNumber    *string     `json:"phone_number,omitempty"`
	Types          []string    `json:"types"`
	BusinessStatus *string     `json:"business_status,omitempty"`
	City           string      `json:"city"`
	Country        *string     `json:"country,omitempty"`
	CapturedAt     time.Time   `json:"captured_at"`
	CaptureDay     string      `json:"capture_day"`
	Consumed       bool        `json:"consumed"`
	RouteID        *uuid.UUID  `json:"route_id,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// PinGroup is one (day, city) bucket of unconsumed pins.
type PinGroup struct {
	Day   string `json:"day"`
	City  string `json:"city"`
	Count int    `json:"count"`
	Pins  []Pin  `json:"pins"`
}

type PinStats struct {
	TotalPins     int64 `json:"total_pins"`
	UsedPins      int64 `json:"used_pins"`
	UnusedPins    int64 `json:"unused_pins"`
	CityCount     int64 `json:"city_count"`
	CategoryCount int64 `json:"category_count"`
}

// NearbyPin is a pin annotated with its great-circle distance from the query point.
type NearbyPin struct {
	Pin
	DistanceMeters float64 `json:"distance_meters"`
}

// FlexNumber accepts a JSON number, a numeric string, an empty string or null.
type FlexNumber struct {
	Value *float64
	Raw   string
}

func (f *FlexNumber) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	s := string(data)
	if data[0] == '"' {
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
	}
	s = strings.TrimSpace(s)
	f.Raw = s
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		// Kept in Raw so validation can report it.
		return nil
	}
	f.Value = &v
	return nil
}

func (f FlexNumber) MarshalJSON() ([]byte, error) {
	if f.Value == nil {
		return []byte("null"), nil
	}
	return json.Marshal(*f.Value)
}

// Invalid reports whether a non-empty value was supplied that is not a number.
func (f FlexNumber) Invalid() bool {
	return f.Value == nil && f.Raw != ""
}

// NumberOf wraps v as a present FlexNumber.
func NumberOf(v float64) FlexNumber {
	return FlexNumber{Value: &v, Raw: strconv.FormatFloat(v, 'f', -1, 64)}
}

type CoordinatesInput struct {
	Lat FlexNumber `json:"lat"`
	Lng FlexNumber `json:"lng"`
}

type DropPinRequest struct {
	Name           string            `json:"name"`
	Address        *string           `json:"address,omitempty"`
	Description    *string           `json:"description,omitempty"`
	Image          *string           `json:"image,omitempty"`
	Coordinates    *CoordinatesInput `json:"coordinates"`
	PlaceID        *string           `json:"place_id,omitempty"`
	Category       *string           `json:"category,omitempty"`
	Rating         FlexNumber        `json:"rating"`
	PriceLevel     FlexNumber        `json:"price_level"`
	Website        *string           `json:"website,omitempty"`
	PhoneNumber    *string           `json:"phone_number,omitempty"`
	Types          []string          `json:"types,omitempty"`
	BusinessStatus *string           `json:"business_status,omitempty"`
	City           string            `json:"city"`
	Country        *string           `json:"country,omitempty"`
	CapturedAt     *time.Time        `json:"captured_at,omitempty"`
}

const maxPinNameLength = 200

// ToPin validates the request and returns a normalised, unconsumed pin owned by
// owner. Text is trimmed, numeric enrichment is clamped to its documented range
// and blank optional strings become nil.
func (r DropPinRequest) ToPin(owner uuid.UUID) (*Pin, error) {
	name := strings.TrimSpace(r.Name)
	if name == "" {
		return nil, NewValidationError("name", "name is required")
	}
	if len([]rune(name)) > maxPinNameLength {
		return nil, NewValidationError("name", "name is too long")
	}
	if r.Coordinates == nil || r.Coordinates.Lat.Value == nil || r.Coordinates.Lng.Value == nil {
		return nil, NewValidationError("coordinates", "coordinates with lat and lng are required")
	}
	coords := Coordinates{Lat: *r.Coordinates.Lat.Value, Lng: *r.Coordinates.Lng.Value}
	if err := coords.Validate(); err != nil {
		return nil, err
	}
	city := strings.TrimSpace(r.City)
	if city == "" {
		return nil, NewValidationError("city", "city is required")
	}
	if r.Rating.Invalid() {
		return nil, NewValidationError("rating", "rating must be numeric")
	}
	if r.PriceLevel.Invalid() {
		return nil, NewValidationError("price_level", "price level must be numeric")
	}

	pin := &Pin{
		UserID:         owner,
		Name:           name,
		Address:        blankToNil(r.Address),
		Description:    blankToNil(r.Description),
		Image:          blankToNil(r.Image),
		Coordinates:    coords,
		PlaceID:        blankToNil(r.PlaceID),
		Category:       blankToNil(r.Category),
		Website:        blankToNil(r.Website),
		PhoneNumber:    blankToNil(r.PhoneNumber),
		Types:          compactStrings(r.Types),
		BusinessStatus: blankToNil(r.BusinessStatus),
		City:           city,
		Country:        blankToNil(r.Country),
	}
	if r.Rating.Value != nil {
		v := math.Round(clamp(*r.Rating.Value, 0, 5)*10) / 10
		pin.Rating = &v
	}
	if r.PriceLevel.Value != nil {
		v := int(math.Round(clamp(*r.PriceLevel.Value, 0, 4)))
		pin.PriceLevel = &v
	}
	if r.CapturedAt != nil && !r.CapturedAt.IsZero() {
		pin.CapturedAt = *r.CapturedAt
	}
	return pin, nil
}

// CaptureDayOf is the calendar day of t in t's own location.
func CaptureDayOf(t time.Time) string {
	return t.Format(CaptureDayLayout)
}

func blankToNil(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

func compactStrings(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
