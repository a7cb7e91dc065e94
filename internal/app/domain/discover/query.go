package discover

import (
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/FACorreiaa/loci-routes/internal/app/domain/routes"
	"github.com/FACorreiaa/loci-routes/internal/app/models"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// sortRecentlyUpdated orders favorite listings.
const sortRecentlyUpdated models.SortKey = "updated"

// ListQuery is one page of a filtered, sorted route listing.
type ListQuery struct {
	Filter models.RouteFilter
	Sort   models.SortKey
	Page   models.PageRequest
	// Viewer is used for the is_favorited flag; uuid.Nil for anonymous callers.
	Viewer uuid.UUID
}

// escapeLike makes s match literally inside a LIKE pattern.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func contains(s string) string {
	return "%" + escapeLike(s) + "%"
}

// whereClause composes the independently optional predicates of f.
func whereClause(f models.RouteFilter) sq.And {
	where := sq.And{}
	if f.OwnerID != nil {
		where = append(where, sq.Expr("r.user_id = ?", *f.OwnerID))
	} else {
		where = append(where, sq.Eq{"r.is_public": true})
	}
	if f.FavoritedBy != nil {
		where = append(where, sq.Expr(
			"EXISTS (SELECT 1 FROM route_favorites fb WHERE fb.route_id = r.id AND fb.user_id = ?)", *f.FavoritedBy))
	}
	if city := strings.TrimSpace(f.City); city != "" {
		where = append(where, sq.ILike{"r.city": contains(city)})
	}
	if country := strings.TrimSpace(f.Country); country != "" {
		where = append(where, sq.ILike{"r.country": contains(country)})
	}
	if f.Category != "" {
		where = append(where, sq.Eq{"r.category": string(f.Category)})
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		p := contains(q)
		where = append(where, sq.Or{sq.ILike{"r.title": p}, sq.ILike{"r.description": p}})
	}
	return where
}

// orderBy always ends with r.id so pages are stable across equal keys.
func orderBy(k models.SortKey) []string {
	switch k {
	case models.SortOldest:
		return []string{"r.created_at ASC", "r.id ASC"}
	case models.SortLikes:
		return []string{"likes_count DESC", "r.created_at DESC", "r.id DESC"}
	case models.SortViews:
		return []string{"r.view_count DESC", "r.created_at DESC", "r.id DESC"}
	case models.SortPopular:
		return []string{"likes_count DESC", "r.view_count DESC", "r.created_at DESC", "r.id DESC"}
	case sortRecentlyUpdated:
		return []string{"r.updated_at DESC", "r.id DESC"}
	default:
		return []string{"r.created_at DESC", "r.id DESC"}
	}
}

func buildPageQuery(q ListQuery) sq.SelectBuilder {
	return psql.Select(routes.RouteColumns...).
		Column(sq.Expr(
			"EXISTS (SELECT 1 FROM route_favorites fv WHERE fv.route_id = r.id AND fv.user_id = ?) AS is_favorited", q.Viewer)).
		From("routes r").
		Where(whereClause(q.Filter)).
		OrderBy(orderBy(q.Sort)...).
		Limit(uint64(q.Page.PageSize)).
		Offset(q.Page.Offset())
}

func buildCountQuery(f models.RouteFilter) sq.SelectBuilder {
	return psql.Select("COUNT(*)").From("routes r").Where(whereClause(f))
}
