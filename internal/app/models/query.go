package models

import (
	"math"
	"strings"

	"github.com/google/uuid"
)

type SortKey string

const (
	SortLatest  SortKey = "latest"
	SortOldest  SortKey = "oldest"
	SortLikes   SortKey = "likes"
	SortViews   SortKey = "views"
	SortPopular SortKey = "popular"
)

// ParseSortKey falls back to latest for blank or unknown keys.
func ParseSortKey(s string) SortKey {
	switch k := SortKey(strings.ToLower(strings.TrimSpace(s))); k {
	case SortOldest, SortLikes, SortViews, SortPopular:
		return k
	default:
		return SortLatest
	}
}

// RouteFilter composes independently optional listing predicates.
type RouteFilter struct {
	City     string
	Country  string
	Category RouteCategory
	Query    string
	// OwnerID restricts the listing to one owner and lifts the public-only clause.
	OwnerID *uuid.UUID
	// FavoritedBy restricts the listing to public routes favorited by the user.
	FavoritedBy *uuid.UUID
}

// MaxPage bounds the page number accepted from clients.
const MaxPage = 100000

type PageRequest struct {
	Page     int
	PageSize int
}

// Normalised clamps page to >= 1 and applies the default page size.
func (p PageRequest) Normalised(defaultSize int) PageRequest {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 {
		p.PageSize = defaultSize
	}
	return p
}

// Offset is the number of rows before the page. It saturates at
// math.MaxInt64 instead of wrapping, so an absurd page reads past the end.
func (p PageRequest) Offset() uint64 {
	if p.Page <= 1 || p.PageSize <= 0 {
		return 0
	}
	skipped, size := uint64(p.Page-1), uint64(p.PageSize)
	if skipped > math.MaxInt64/size {
		return math.MaxInt64
	}
	return skipped * size
}

type RoutePage struct {
	Items      []Route `json:"items"`
	TotalCount int64   `json:"total_count"`
	Page       int     `json:"page"`
	TotalPages int     `json:"total_pages"`
}

// TotalPages is ceil(total/size).
func TotalPages(total int64, size int) int {
	if size <= 0 || total <= 0 {
		return 0
	}
	return int((total + int64(size) - 1) / int64(size))
}

type PopularPlace struct {
	Country           string `json:"country"`
	RouteCount        int64  `json:"route_count"`
	DistinctCityCount int64  `json:"distinct_city_count"`
}

type CountBucket struct {
	Key   string `json:"key"`
	Count int64  `json:"count"`
}

type GlobalStats struct {
	TotalRoutes   int64         `json:"total_routes"`
	TotalUsers    int64         `json:"total_users"`
	CategoryStats []CountBucket `json:"category_stats"`
	CountryStats  []CountBucket `json:"country_stats"`
}

type UserStats struct {
	TotalRoutes    int64         `json:"total_routes"`
	PublicRoutes   int64         `json:"public_routes"`
	PrivateRoutes  int64         `json:"private_routes"`
	TotalLikes     int64         `json:"total_likes"`
	TotalViews     int64         `json:"total_views"`
	TotalFavorites int64         `json:"total_favorites"`
	CategoryStats  []CountBucket `json:"category_stats"`
	CountryStats   []CountBucket `json:"country_stats"`
	RecentRoutes   int64         `json:"recent_routes"`
}

// EngagementState is a route's derived engagement counts as seen by one user.
type EngagementState struct {
	RouteID        uuid.UUID `json:"route_id"`
	LikesCount     int64     `json:"likes_count"`
	FavoritesCount int64     `json:"favorites_count"`
	IsLiked        bool      `json:"is_liked"`
	IsFavorited    bool      `json:"is_favorited"`
}
