package models

import (
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

type RouteCategory string

const (
	CategoryFood      RouteCategory = "food"
	CategoryCulture   RouteCategory = "culture"
	CategoryNature    RouteCategory = "nature"
	CategoryAdventure RouteCategory = "adventure"
	CategoryShopping  RouteCategory = "shopping"
	CategoryNightlife RouteCategory = "nightlife"
	CategoryHistory   RouteCategory = "history"
	CategoryOther     RouteCategory = "other"
)

var routeCategories = map[RouteCategory]struct{}{
	CategoryFood: {}, CategoryCulture: {}, CategoryNature: {}, CategoryAdventure: {},
	CategoryShopping: {}, CategoryNightlife: {}, CategoryHistory: {}, CategoryOther: {},
}

// ParseRouteCategory is case-insensitive; blank input yields the default.
func ParseRouteCategory(s string) (RouteCategory, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return CategoryOther, nil
	}
	c := RouteCategory(s)
	if _, ok := routeCategories[c]; !ok {
		return "", NewValidationError("category", "unknown category "+s)
	}
	return c, nil
}

type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

func ParseDifficulty(s string) (Difficulty, error) {
	switch d := Difficulty(strings.ToLower(strings.TrimSpace(s))); d {
	case "":
		return DifficultyEasy, nil
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return d, nil
	default:
		return "", NewValidationError("difficulty", "difficulty must be easy, medium or hard")
	}
}

const (
	MaxTitleLength       = 100
	MaxDescriptionLength = 1000
	MaxTags              = 20
)

// Stop is a snapshot of a pin's display fields at a position in a route.
// Stops added directly to a route have no PinID.
type Stop struct {
	ID          uuid.UUID   `json:"id"`
	PinID       *uuid.UUID  `json:"pin_id,omitempty"`
	Name        string      `json:"name"`
	Address     *string     `json:"address,omitempty"`
	Description *string     `json:"description,omitempty"`
	Image       *string     `json:"image,omitempty"`
	Coordinates Coordinates `json:"coordinates"`
	PlaceID     *string     `json:"place_id,omitempty"`
	Category    *string     `json:"category,omitempty"`
	Rating      *float64    `json:"rating,omitempty"`
	PriceLevel  *int        `json:"price_level,omitempty"`
	Website     *string     `json:"website,omitempty"`
	PhoneNumber *string     `json:"phone_number,omitempty"`
	Types       []string    `json:"types,omitempty"`
	Order       int         `json:"order"`
}

// StopFromPin projects a pin into a stop at position order.
func StopFromPin(p Pin, order int) Stop {
	pinID := p.ID
	return Stop{
		ID:          uuid.New(),
		PinID:       &pinID,
		Name:        p.Name,
		Address:     p.Address,
		Description: p.Description,
		Image:       p.Image,
		Coordinates: p.Coordinates,
		PlaceID:     p.PlaceID,
		Category:    p.Category,
		Rating:      p.Rating,
		PriceLevel:  p.PriceLevel,
		Website:     p.Website,
		PhoneNumber: p.PhoneNumber,
		Types:       append([]string(nil), p.Types...),
		Order:       order,
	}
}

type Route struct {
	ID                uuid.UUID     `json:"id"`
	UserID            uuid.UUID     `json:"user_id"`
	Title             string        `json:"title"`
	Description       string        `json:"description"`
	City              string        `json:"city"`
	Country           *string       `json:"country,omitempty"`
	Category          RouteCategory `json:"category"`
	Difficulty        Difficulty    `json:"difficulty"`
	EstimatedDuration *int          `json:"estimated_duration,omitempty"`
	Distance          *float64      `json:"distance,omitempty"`
	Tags              []string      `json:"tags"`
	IsPublic          bool          `json:"is_public"`
	Stops             []Stop        `json:"stops"`
	ViewCount         int64         `json:"view_count"`
	ShareCount        int64         `json:"share_count"`
	LikesCount        int64         `json:"likes_count"`
	FavoritesCount    int64         `json:"favorites_count"`
	IsFavorited       *bool         `json:"is_favorited,omitempty"`
	IsLiked           *bool         `json:"is_liked,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

// RequireOwner is the single capability check for owner-only route operations.
func (r *Route) RequireOwner(caller uuid.UUID) error {
	if r == nil {
		return NewNotFoundError("route not found")
	}
	if r.UserID != caller {
		return NewForbiddenError("only the route owner can modify this route")
	}
	return nil
}

// VisibleTo reports whether caller may read the route.
func (r *Route) VisibleTo(caller *uuid.UUID) bool {
	return r.IsPublic || (caller != nil && *caller == r.UserID)
}

// RouteMeta is the descriptive part of a route shared by every create path.
type RouteMeta struct {
	Title             string   `json:"title"`
	Description       string   `json:"description"`
	Country           *string  `json:"country,omitempty"`
	Category          string   `json:"category"`
	Difficulty        string   `json:"difficulty"`
	EstimatedDuration *int     `json:"estimated_duration,omitempty"`
	Distance          *float64 `json:"distance,omitempty"`
	Tags              []string `json:"tags"`
	IsPublic          *bool    `json:"is_public,omitempty"`
}

type CreateRouteFromPinsRequest struct {
	PinIDs []uuid.UUID `json:"pin_ids"`
	RouteMeta
}

type CreateRouteRequest struct {
	City  string      `json:"city"`
	Stops []StopInput `json:"stops"`
	RouteMeta
}

// UpdateRouteRequest is a partial update; nil fields are left untouched.
type UpdateRouteRequest struct {
	Title             *string   `json:"title,omitempty"`
	Description       *string   `json:"description,omitempty"`
	City              *string   `json:"city,omitempty"`
	Country           *string   `json:"country,omitempty"`
	Category          *string   `json:"category,omitempty"`
	Difficulty        *string   `json:"difficulty,omitempty"`
	EstimatedDuration *int      `json:"estimated_duration,omitempty"`
	Distance          *float64  `json:"distance,omitempty"`
	Tags              *[]string `json:"tags,omitempty"`
	IsPublic          *bool     `json:"is_public,omitempty"`
}

type StopInput struct {
	Name        string      `json:"name"`
	Address     *string     `json:"address,omitempty"`
	Description *string     `json:"description,omitempty"`
	Image       *string     `json:"image,omitempty"`
	Coordinates Coordinates `json:"coordinates"`
	PlaceID     *string     `json:"place_id,omitempty"`
	Category    *string     `json:"category,omitempty"`
	Rating      *float64    `json:"rating,omitempty"`
	PriceLevel  *int        `json:"price_level,omitempty"`
	Website     *string     `json:"website,omitempty"`
	PhoneNumber *string     `json:"phone_number,omitempty"`
	Types       []string    `json:"types,omitempty"`
	// Position is where the stop is inserted; nil appends.
	Position *int `json:"position,omitempty"`
}

func (in StopInput) ToStop() (Stop, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return Stop{}, NewValidationError("name", "stop name is required")
	}
	if err := in.Coordinates.Validate(); err != nil {
		return Stop{}, err
	}
	if err := validateStopScores(in.Rating, in.PriceLevel); err != nil {
		return Stop{}, err
	}
	var types []string
	if len(in.Types) > 0 {
		types = compactStrings(in.Types)
	}
	return Stop{
		ID:          uuid.New(),
		Name:        name,
		Address:     blankToNil(in.Address),
		Description: blankToNil(in.Description),
		Image:       blankToNil(in.Image),
		Coordinates: in.Coordinates,
		PlaceID:     blankToNil(in.PlaceID),
		Category:    blankToNil(in.Category),
		Rating:      in.Rating,
		PriceLevel:  in.PriceLevel,
		Website:     blankToNil(in.Website),
		PhoneNumber: blankToNil(in.PhoneNumber),
		Types:       types,
	}, nil
}

func validateStopScores(rating *float64, priceLevel *int) error {
	if rating != nil && (*rating < 0 || *rating > 5) {
		return NewValidationError("rating", "rating must be between 0 and 5")
	}
	if priceLevel != nil && (*priceLevel < 0 || *priceLevel > 4) {
		return NewValidationError("price_level", "price level must be between 0 and 4")
	}
	return nil
}

type StopPatch struct {
	Name        *string      `json:"name,omitempty"`
	Address     *string      `json:"address,omitempty"`
	Description *string      `json:"description,omitempty"`
	Image       *string      `json:"image,omitempty"`
	Coordinates *Coordinates `json:"coordinates,omitempty"`
	Category    *string      `json:"category,omitempty"`
	Rating      *float64     `json:"rating,omitempty"`
	PriceLevel  *int         `json:"price_level,omitempty"`
	Website     *string      `json:"website,omitempty"`
	PhoneNumber *string      `json:"phone_number,omitempty"`
	Types       []string     `json:"types,omitempty"`
}

// Apply patches s in place.
func (p StopPatch) Apply(s *Stop) error {
	if err := validateStopScores(p.Rating, p.PriceLevel); err != nil {
		return err
	}
	if p.Name != nil {
		name := strings.TrimSpace(*p.Name)
		if name == "" {
			return NewValidationError("name", "stop name is required")
		}
		s.Name = name
	}
	if p.Coordinates != nil {
		if err := p.Coordinates.Validate(); err != nil {
			return err
		}
		s.Coordinates = *p.Coordinates
	}
	if p.Address != nil {
		s.Address = blankToNil(p.Address)
	}
	if p.Description != nil {
		s.Description = blankToNil(p.Description)
	}
	if p.Image != nil {
		s.Image = blankToNil(p.Image)
	}
	if p.Category != nil {
		s.Category = blankToNil(p.Category)
	}
	if p.Rating != nil {
		s.Rating = p.Rating
	}
	if p.PriceLevel != nil {
		s.PriceLevel = p.PriceLevel
	}
	if p.Website != nil {
		s.Website = blankToNil(p.Website)
	}
	if p.PhoneNumber != nil {
		s.PhoneNumber = blankToNil(p.PhoneNumber)
	}
	if p.Types != nil {
		s.Types = compactStrings(p.Types)
	}
	return nil
}

// Apply validates meta and copies it onto r, filling defaults.
func (m RouteMeta) Apply(r *Route) error {
	title := strings.TrimSpace(m.Title)
	if err := validateTitle(title); err != nil {
		return err
	}
	desc := strings.TrimSpace(m.Description)
	if err := validateDescription(desc); err != nil {
		return err
	}
	category, err := ParseRouteCategory(m.Category)
	if err != nil {
		return err
	}
	difficulty, err := ParseDifficulty(m.Difficulty)
	if err != nil {
		return err
	}
	if err := validateDuration(m.EstimatedDuration); err != nil {
		return err
	}
	if err := validateDistance(m.Distance); err != nil {
		return err
	}
	tags, err := normaliseTags(m.Tags)
	if err != nil {
		return err
	}

	r.Title = title
	r.Description = desc
	r.Country = blankToNil(m.Country)
	r.Category = category
	r.Difficulty = difficulty
	r.EstimatedDuration = m.EstimatedDuration
	r.Distance = m.Distance
	r.Tags = tags
	r.IsPublic = true
	if m.IsPublic != nil {
		r.IsPublic = *m.IsPublic
	}
	return nil
}

// Apply validates the patch and copies it onto r.
func (u UpdateRouteRequest) Apply(r *Route) error {
	if u.Title != nil {
		title := strings.TrimSpace(*u.Title)
		if err := validateTitle(title); err != nil {
			return err
		}
		r.Title = title
	}
	if u.Description != nil {
		desc := strings.TrimSpace(*u.Description)
		if err := validateDescription(desc); err != nil {
			return err
		}
		r.Description = desc
	}
	if u.City != nil {
		city := strings.TrimSpace(*u.City)
		if city == "" {
			return NewValidationError("city", "city is required")
		}
		r.City = city
	}
	if u.Country != nil {
		r.Country = blankToNil(u.Country)
	}
	if u.Category != nil {
		c, err := ParseRouteCategory(*u.Category)
		if err != nil {
			return err
		}
		r.Category = c
	}
	if u.Difficulty != nil {
		d, err := ParseDifficulty(*u.Difficulty)
		if err != nil {
			return err
		}
		r.Difficulty = d
	}
	if u.EstimatedDuration != nil {
		if err := validateDuration(u.EstimatedDuration); err != nil {
			return err
		}
		r.EstimatedDuration = u.EstimatedDuration
	}
	if u.Distance != nil {
		if err := validateDistance(u.Distance); err != nil {
			return err
		}
		r.Distance = u.Distance
	}
	if u.Tags != nil {
		tags, err := normaliseTags(*u.Tags)
		if err != nil {
			return err
		}
		r.Tags = tags
	}
	if u.IsPublic != nil {
		r.IsPublic = *u.IsPublic
	}
	return nil
}

func validateTitle(title string) error {
	if title == "" {
		return NewValidationError("title", "title is required")
	}
	if len([]rune(title)) > MaxTitleLength {
		return NewValidationError("title", "title must be at most 100 characters")
	}
	return nil
}

func validateDescription(desc string) error {
	if len([]rune(desc)) > MaxDescriptionLength {
		return NewValidationError("description", "description must be at most 1000 characters")
	}
	return nil
}

func validateDuration(d *int) error {
	if d != nil && *d < 0 {
		return NewValidationError("estimated_duration", "estimated duration cannot be negative")
	}
	return nil
}

func validateDistance(d *float64) error {
	if d != nil && (*d < 0 || math.IsNaN(*d) || math.IsInf(*d, 0)) {
		return NewValidationError("distance", "distance cannot be negative")
	}
	return nil
}

func normaliseTags(in []string) ([]string, error) {
	tags := compactStrings(in)
	if len(tags) > MaxTags {
		return nil, NewValidationError("tags", "too many tags")
	}
	for i, t := range tags {
		tags[i] = strings.ToLower(t)
	}
	return compactStrings(tags), nil
}
