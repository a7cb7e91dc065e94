package routes

import (
	"github.com/google/uuid"

	"github.com/FACorreiaa/loci-routes/internal/app/models"
)

// renumber makes order a dense 0..n-1 sequence following slice position.
func renumber(stops []models.Stop) []models.Stop {
	for i := range stops {
		stops[i].Order = i
	}
	return stops
}

func indexOfStop(stops []models.Stop, stopID uuid.UUID) int {
	for i := range stops {
		if stops[i].ID == stopID {
			return i
		}
	}
	return -1
}

// insertStop places stop at position, clamped to the list bounds. A nil
// position appends.
func insertStop(stops []models.Stop, stop models.Stop, position *int) []models.Stop {
	at := len(stops)
	if position != nil {
		at = max(0, min(*position, len(stops)))
	}
	out := make([]models.Stop, 0, len(stops)+1)
	out = append(out, stops[:at]...)
	out = append(out, stop)
	out = append(out, stops[at:]...)
	return renumber(out)
}

func patchStop(stops []models.Stop, stopID uuid.UUID, patch models.StopPatch) ([]models.Stop, error) {
	i := indexOfStop(stops, stopID)
	if i < 0 {
		return nil, models.NewNotFoundError("stop not found")
	}
	out := append([]models.Stop(nil), stops...)
	if err := patch.Apply(&out[i]); err != nil {
		return nil, err
	}
	return renumber(out), nil
}

func removeStop(stops []models.Stop, stopID uuid.UUID) ([]models.Stop, error) {
	i := indexOfStop(stops, stopID)
	if i < 0 {
		return nil, models.NewNotFoundError("stop not found")
	}
	out := make([]models.Stop, 0, len(stops)-1)
	out = append(out, stops[:i]...)
	out = append(out, stops[i+1:]...)
	return renumber(out), nil
}

// reorderStops returns the stops in the order named by ids. Every existing stop
// must be named exactly once.
func reorderStops(stops []models.Stop, ids []uuid.UUID) ([]models.Stop, error) {
	byID := make(map[uuid.UUID]models.Stop, len(stops))
	for _, s := range stops {
		byID[s.ID] = s
	}

	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]models.Stop, 0, len(ids))
	for _, id := range ids {
		s, ok := byID[id]
		if !ok {
			return nil, models.NewValidationError("stop_ids", "unknown stop id "+id.String())
		}
		if _, dup := seen[id]; dup {
			return nil, models.NewValidationError("stop_ids", "duplicate stop id "+id.String())
		}
		seen[id] = struct{}{}
		out = append(out, s)
	}
	if len(out) != len(stops) {
		return nil, models.NewIncompleteReorderError("reorder must name every stop of the route")
	}
	return renumber(out), nil
}

// pinIDsOf lists the source pins of stops that came from pins.
func pinIDsOf(stops []models.Stop) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(stops))
	for _, s := range stops {
		if s.PinID != nil {
			ids = append(ids, *s.PinID)
		}
	}
	return ids
}
