package pins

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/FACorreiaa/loci-routes/internal/app/models"
	database "github.com/FACorreiaa/loci-routes/internal/db"
)

var _ Repository = (*RepositoryImpl)(nil)

// Repository is the pin store. Every query is scoped to the owning user.
type Repository interface {
	CreatePin(ctx context.Context, pin *models.Pin) error
	ListDailyPins(ctx context.Context, owner uuid.UUID, city, day string) ([]models.Pin, error)
	ListGroupedPins(ctx context.Context, owner uuid.UUID, limit int) ([]models.PinGroup, error)
	DeleteUnconsumedPin(ctx context.Context, owner, pinID uuid.UUID) error
	PinStats(ctx context.Context, owner uuid.UUID) (*models.PinStats, error)

	// Route assembly support
	FetchUnconsumedPins(ctx context.Context, owner uuid.UUID, pinIDs []uuid.UUID) ([]models.Pin, error)
	ClaimPins(ctx context.Context, routeID, owner uuid.UUID, pinIDs []uuid.UUID) error
	ReleaseRoutePins(ctx context.Context, routeID uuid.UUID) (int64, error)

	// Proximity
	FindNearbyPins(ctx context.Context, owner uuid.UUID, at models.Coordinates, radiusMeters float64, limit int) ([]models.NearbyPin, error)
}

type RepositoryImpl struct {
	logger *zap.Logger
	pgpool database.Pool
}

func NewRepository(pgpool database.Pool, logger *zap.Logger) *RepositoryImpl {
	return &RepositoryImpl{
		logger: logger,
		pgpool: pgpool,
	}
}

func pinColumns(alias string) string {
	p := ""
	if alias != "" {
		p = alias + "."
	}
	cols := []string{
		"id", "user_id", "name", "address", "description", "image", "latitude", "longitude",
		"place_id", "category", "rating", "price_level", "website", "phone_number", "types",
		"business_status", "city", "country", "captured_at",
	}
	for i, c := range cols {
		cols[i] = p + c
	}
	cols = append(cols,
		fmt.Sprintf("to_char(%scapture_day, 'YYYY-MM-DD')", p),
		p+"consumed", p+"route_id", p+"created_at", p+"updated_at",
	)
	return strings.Join(cols, ", ")
}

func scanPin(row pgx.Row, extra ...any) (models.Pin, error) {
	var pin models.Pin
	dest := []any{
		&pin.ID, &pin.UserID, &pin.Name, &pin.Address, &pin.Description, &pin.Image,
		&pin.Coordinates.Lat, &pin.Coordinates.Lng, &pin.PlaceID, &pin.Category, &pin.Rating,
		&pin.PriceLevel, &pin.Website, &pin.PhoneNumber, &pin.Types, &pin.BusinessStatus,
		&pin.City, &pin.Country, &pin.CapturedAt, &pin.CaptureDay, &pin.Consumed, &pin.RouteID,
		&pin.CreatedAt, &pin.UpdatedAt,
	}
	err := row.Scan(append(dest, extra...)...)
	if pin.Types == nil {
		pin.Types = []string{}
	}
	return pin, err
}

func collectPins(rows pgx.Rows) ([]models.Pin, error) {
	defer rows.Close()
	pins := make([]models.Pin, 0)
	for rows.Next() {
		pin, err := scanPin(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pin: %w", err)
		}
		pins = append(pins, pin)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pin rows: %w", err)
	}
	return pins, nil
}

// CreatePin inserts an unconsumed pin. Location is derived from the coordinates.
func (r *RepositoryImpl) CreatePin(ctx context.Context, pin *models.Pin) (err error) {
	ctx, span := otel.Tracer("PinRepository").Start(ctx, "CreatePin", trace.WithAttributes(
		attribute.String("pin.id", pin.ID.String()),
		attribute.String("pin.city", pin.City),
	))
	defer span.End()
	defer database.Observe(ctx, "pins.create", time.Now(), &err)

	query := `
        INSERT INTO pins (
            id, user_id, name, address, description, image, latitude, longitude, location,
            place_id, category, rating, price_level, website, phone_number, types,
            business_status, city, country, captured_at, capture_day, consumed, route_id
        ) VALUES (
            $1, $2, $3, $4, $5, $6, $7, $8, ST_SetSRID(ST_MakePoint($8, $7), 4326)::geography,
            $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20::date, FALSE, NULL
        )
        RETURNING created_at, updated_at
    `
	err = r.pgpool.QueryRow(ctx, query,
		pin.ID, pin.UserID, pin.Name, pin.Address, pin.Description, pin.Image,
		pin.Coordinates.Lat, pin.Coordinates.Lng,
		pin.PlaceID, pin.Category, pin.Rating, pin.PriceLevel, pin.Website, pin.PhoneNumber, pin.Types,
		pin.BusinessStatus, pin.City, pin.Country, pin.CapturedAt, pin.CaptureDay,
	).Scan(&pin.CreatedAt, &pin.UpdatedAt)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("pin %s: %w", pin.ID, models.ErrConflict)
		}
		r.logger.Error("Failed to create pin", zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
		return fmt.Errorf("failed to create pin: %w", err)
	}
	span.SetStatus(codes.Ok, "pin created")
	return nil
}

// ListDailyPins returns the owner's unconsumed pins for one city and capture day.
func (r *RepositoryImpl) ListDailyPins(ctx context.Context, owner uuid.UUID, city, day string) (_ []models.Pin, err error) {
	ctx, span := otel.Tracer("PinRepository").Start(ctx, "ListDailyPins", trace.WithAttributes(
		attribute.String("pin.city", city),
		attribute.String("pin.day", day),
	))
	defer span.End()
	defer database.Observe(ctx, "pins.list_daily", time.Now(), &err)

	query := `
        SELECT ` + pinColumns("") + `
        FROM pins
        WHERE user_id = $1 AND consumed = FALSE AND LOWER(city) = LOWER($2) AND capture_day = $3::date
        ORDER BY captured_at ASC, id ASC
    `
	rows, err := r.pgpool.Query(ctx, query, owner, city, day)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
		return nil, fmt.Errorf("failed to list daily pins: %w", err)
	}
	pins, err := collectPins(rows)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("pins.count", len(pins)))
	return pins, nil
}

// ListGroupedPins buckets unconsumed pins by (capture day, city), newest day
// first, returning at most limit buckets.
func (r *RepositoryImpl) ListGroupedPins(ctx context.Context, owner uuid.UUID, limit int) (_ []models.PinGroup, err error) {
	ctx, span := otel.Tracer("PinRepository").Start(ctx, "ListGroupedPins", trace.WithAttributes(
		attribute.Int("limit", limit),
	))
	defer span.End()
	defer database.Observe(ctx, "pins.list_grouped", time.Now(), &err)

	query := `
        WITH groups AS (
            SELECT capture_day, city
            FROM pins
            WHERE user_id = $1 AND consumed = FALSE
            GROUP BY capture_day, city
            ORDER BY capture_day DESC, city ASC
            LIMIT $2
        )
        SELECT ` + pinColumns("p") + `
        FROM pins p
        JOIN groups g ON g.capture_day = p.capture_day AND g.city = p.city
        WHERE p.user_id = $1 AND p.consumed = FALSE
        ORDER BY p.capture_day DESC, p.city ASC, p.captured_at ASC, p.id ASC
    `
	rows, err := r.pgpool.Query(ctx, query, owner, limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
		return nil, fmt.Errorf("failed to list grouped pins: %w", err)
	}
	pins, err := collectPins(rows)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return groupPins(pins), nil
}

// groupPins folds rows already ordered by (day, city) into buckets.
func groupPins(pins []models.Pin) []models.PinGroup {
	groups := make([]models.PinGroup, 0)
	for _, p := range pins {
		n := len(groups)
		if n == 0 || groups[n-1].Day != p.CaptureDay || groups[n-1].City != p.City {
			groups = append(groups, models.PinGroup{Day: p.CaptureDay, City: p.City})
			n++
		}
		groups[n-1].Pins = append(groups[n-1].Pins, p)
		groups[n-1].Count++
	}
	return groups
}

// DeleteUnconsumedPin removes a pin only while it is owned and unconsumed.
// Missing, foreign and consumed pins all report ErrNotFound.
func (r *RepositoryImpl) DeleteUnconsumedPin(ctx context.Context, owner, pinID uuid.UUID) (err error) {
	ctx, span := otel.Tracer("PinRepository").Start(ctx, "DeleteUnconsumedPin", trace.WithAttributes(
		attribute.String("pin.id", pinID.String()),
	))
	defer span.End()
	defer database.Observe(ctx, "pins.delete", time.Now(), &err)

	tag, err := r.pgpool.Exec(ctx,
		`DELETE FROM pins WHERE id = $1 AND user_id = $2 AND consumed = FALSE`, pinID, owner)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "delete failed")
		return fmt.Errorf("failed to delete pin: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.NewNotFoundError("pin not found or already used")
	}
	return nil
}

func (r *RepositoryImpl) PinStats(ctx context.Context, owner uuid.UUID) (_ *models.PinStats, err error) {
	ctx, span := otel.Tracer("PinRepository").Start(ctx, "PinStats")
	defer span.End()
	defer database.Observe(ctx, "pins.stats", time.Now(), &err)

	query := `
        SELECT COUNT(*),
               COUNT(*) FILTER (WHERE consumed),
               COUNT(*) FILTER (WHERE NOT consumed),
               COUNT(DISTINCT city),
               COUNT(DISTINCT category)
        FROM pins
        WHERE user_id = $1
    `
	var s models.PinStats
	err = r.pgpool.QueryRow(ctx, query, owner).Scan(
		&s.TotalPins, &s.UsedPins, &s.UnusedPins, &s.CityCount, &s.CategoryCount,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
		return nil, fmt.Errorf("failed to load pin stats: %w", err)
	}
	return &s, nil
}

// FetchUnconsumedPins returns the subset of pinIDs that are owned by owner and
// still unconsumed, in no particular order.
func (r *RepositoryImpl) FetchUnconsumedPins(ctx context.Context, owner uuid.UUID, pinIDs []uuid.UUID) (_ []models.Pin, err error) {
	ctx, span := otel.Tracer("PinRepository").Start(ctx, "FetchUnconsumedPins", trace.WithAttributes(
		attribute.Int("pins.requested", len(pinIDs)),
	))
	defer span.End()
	defer database.Observe(ctx, "pins.fetch_unconsumed", time.Now(), &err)

	query := `
        SELECT ` + pinColumns("") + `
        FROM pins
        WHERE id = ANY($1) AND user_id = $2 AND consumed = FALSE
    `
	rows, err := r.pgpool.Query(ctx, query, pinIDs, owner)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
		return nil, fmt.Errorf("failed to fetch pins: %w", err)
	}
	return collectPins(rows)
}

// ClaimPins flips every pin in pinIDs to consumed by routeID in one
// transaction. The flip is conditional on the pin still being unconsumed or
// already held by routeID; if any pin was claimed by another route nothing is
// committed and ErrInvalidBatch is returned.
func (r *RepositoryImpl) ClaimPins(ctx context.Context, routeID, owner uuid.UUID, pinIDs []uuid.UUID) (err error) {
	ctx, span := otel.Tracer("PinRepository").Start(ctx, "ClaimPins", trace.WithAttributes(
		attribute.String("route.id", routeID.String()),
		attribute.Int("pins.count", len(pinIDs)),
	))
	defer span.End()
	defer database.Observe(ctx, "pins.claim", time.Now(), &err)

	tx, err := r.pgpool.Begin(ctx)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to begin claim transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				r.logger.Warn("Failed to roll back pin claim", zap.Error(rbErr))
			}
		}
	}()

	tag, err := tx.Exec(ctx, `
        UPDATE pins
        SET consumed = TRUE, route_id = $1, updated_at = NOW()
        WHERE id = ANY($2) AND user_id = $3 AND (consumed = FALSE OR route_id = $1)
    `, routeID, pinIDs, owner)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "claim failed")
		return fmt.Errorf("failed to claim pins: %w", err)
	}
	if claimed := tag.RowsAffected(); claimed != int64(len(pinIDs)) {
		span.SetStatus(codes.Error, "claim conflict")
		r.logger.Warn("Pin claim lost a race, rolling back",
			zap.String("routeID", routeID.String()),
			zap.Int64("claimed", claimed),
			zap.Int("requested", len(pinIDs)))
		err = models.NewInvalidBatchError("some pins not found or already used")
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to commit pin claim: %w", err)
	}
	span.SetStatus(codes.Ok, "pins claimed")
	return nil
}

// ReleaseRoutePins returns every pin consumed by routeID to the unconsumed pool.
func (r *RepositoryImpl) ReleaseRoutePins(ctx context.Context, routeID uuid.UUID) (_ int64, err error) {
	ctx, span := otel.Tracer("PinRepository").Start(ctx, "ReleaseRoutePins", trace.WithAttributes(
		attribute.String("route.id", routeID.String()),
	))
	defer span.End()
	defer database.Observe(ctx, "pins.release", time.Now(), &err)

	tag, err := r.pgpool.Exec(ctx, `
        UPDATE pins
        SET consumed = FALSE, route_id = NULL, updated_at = NOW()
        WHERE route_id = $1
    `, routeID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "release failed")
		return 0, fmt.Errorf("failed to release pins: %w", err)
	}
	span.SetAttributes(attribute.Int64("pins.released", tag.RowsAffected()))
	return tag.RowsAffected(), nil
}

// FindNearbyPins uses the GIST index through ST_DWithin on the sphere, so the
// radius filter is exact rather than a bounding-box approximation.
func (r *RepositoryImpl) FindNearbyPins(ctx context.Context, owner uuid.UUID, at models.Coordinates, radiusMeters float64, limit int) (_ []models.NearbyPin, err error) {
	ctx, span := otel.Tracer("PinRepository").Start(ctx, "FindNearbyPins", trace.WithAttributes(
		attribute.Float64("latitude", at.Lat),
		attribute.Float64("longitude", at.Lng),
		attribute.Float64("radius_m", radiusMeters),
	))
	defer span.End()
	defer database.Observe(ctx, "pins.nearby", time.Now(), &err)

	query := `
        SELECT ` + pinColumns("") + `,
               ST_Distance(location, ST_SetSRID(ST_MakePoint($2, $3), 4326)::geography, false) AS distance_m
        FROM pins
        WHERE user_id = $1 AND consumed = FALSE
          AND ST_DWithin(location, ST_SetSRID(ST_MakePoint($2, $3), 4326)::geography, $4, false)
        ORDER BY distance_m ASC, id ASC
        LIMIT $5
    `
	rows, err := r.pgpool.Query(ctx, query, owner, at.Lng, at.Lat, radiusMeters, limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
		return nil, fmt.Errorf("failed to query nearby pins: %w", err)
	}
	defer rows.Close()

	result := make([]models.NearbyPin, 0)
	for rows.Next() {
		var distance float64
		pin, err := scanPin(rows, &distance)
		if err != nil {
			return nil, fmt.Errorf("failed to scan nearby pin: %w", err)
		}
		result = append(result, models.NearbyPin{Pin: pin, DistanceMeters: distance})
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating nearby pins: %w", err)
	}
	span.SetAttributes(attribute.Int("pins.count", len(result)))
	return result, nil
}
