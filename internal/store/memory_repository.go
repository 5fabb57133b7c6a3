package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryRepository is an in-memory implementation of Repository.
// This is intended for testing and for running without a database.
type InMemoryRepository struct {
	mu           sync.RWMutex
	locations    map[string]*Location
	observations map[string]map[time.Time]*Observation
	predictions  map[string][]*StoredPrediction
}

// NewInMemoryRepository creates a new in-memory repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		locations:    make(map[string]*Location),
		observations: make(map[string]map[time.Time]*Observation),
		predictions:  make(map[string][]*StoredPrediction),
	}
}

// ListLocations returns every location ordered by name.
func (r *InMemoryRepository) ListLocations(_ context.Context) ([]*Location, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	locations := make([]*Location, 0, len(r.locations))
	for _, l := range r.locations {
		cpy := *l
		locations = append(locations, &cpy)
	}
	sort.Slice(locations, func(i, j int) bool {
		if locations[i].Name != locations[j].Name {
			return locations[i].Name < locations[j].Name
		}
		return locations[i].ID < locations[j].ID
	})
	return locations, nil
}

// GetLocation retrieves a location by ID.
func (r *InMemoryRepository) GetLocation(_ context.Context, id string) (*Location, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	l, ok := r.locations[id]
	if !ok {
		return nil, ErrLocationNotFound
	}
	cpy := *l
	return &cpy, nil
}

// FindLocationNear returns a location within NearDegrees of lat/lon.
func (r *InMemoryRepository) FindLocationNear(_ context.Context, lat, lon float64) (*Location, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if l := r.nearLocked(lat, lon); l != nil {
		cpy := *l
		return &cpy, nil
	}
	return nil, ErrLocationNotFound
}

// nearLocked picks the oldest matching location so lookups are stable.
func (r *InMemoryRepository) nearLocked(lat, lon float64) *Location {
	var found *Location
	for _, l := range r.locations {
		if !l.Near(lat, lon) {
			continue
		}
		if found == nil || l.CreatedAt.Before(found.CreatedAt) ||
			(l.CreatedAt.Equal(found.CreatedAt) && l.ID < found.ID) {
			found = l
		}
	}
	return found
}

// AddLocation stores loc unless one already exists near its coordinates.
func (r *InMemoryRepository) AddLocation(_ context.Context, loc *Location) (*Location, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing := r.nearLocked(loc.Latitude, loc.Longitude); existing != nil {
		cpy := *existing
		return &cpy, false, nil
	}

	stored := *loc
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	r.locations[stored.ID] = &stored

	cpy := stored
	return &cpy, true, nil
}

// UpsertObservation stores obs, replacing any observation for the same day.
func (r *InMemoryRepository) UpsertObservation(_ context.Context, obs *Observation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.locations[obs.LocationID]; !ok {
		return ErrLocationNotFound
	}

	byDay, ok := r.observations[obs.LocationID]
	if !ok {
		byDay = make(map[time.Time]*Observation)
		r.observations[obs.LocationID] = byDay
	}

	cpy := *obs
	cpy.Date = Day(obs.Date)
	byDay[cpy.Date] = &cpy
	return nil
}

// ListObservations returns the most recent observations, newest first.
func (r *InMemoryRepository) ListObservations(_ context.Context, locationID string, limit int) ([]*Observation, error) {
	if limit <= 0 {
		limit = DefaultObservationLimit
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	observations := make([]*Observation, 0, len(r.observations[locationID]))
	for _, o := range r.observations[locationID] {
		cpy := *o
		observations = append(observations, &cpy)
	}
	sort.Slice(observations, func(i, j int) bool {
		return observations[i].Date.After(observations[j].Date)
	})

	if len(observations) > limit {
		observations = observations[:limit]
	}
	return observations, nil
}

// AddPrediction stores a forecast.
func (r *InMemoryRepository) AddPrediction(_ context.Context, p *StoredPrediction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.locations[p.LocationID]; !ok {
		return ErrLocationNotFound
	}

	cpy := *p
	if cpy.ID == "" {
		cpy.ID = uuid.NewString()
		p.ID = cpy.ID
	}
	if cpy.CreatedAt.IsZero() {
		cpy.CreatedAt = time.Now().UTC()
	}
	cpy.InputFeatures = append([]byte(nil), p.InputFeatures...)
	r.predictions[p.LocationID] = append(r.predictions[p.LocationID], &cpy)
	return nil
}

// ListPredictions returns the most recent forecasts, newest first.
func (r *InMemoryRepository) ListPredictions(_ context.Context, locationID string, limit int) ([]*StoredPrediction, error) {
	if limit <= 0 {
		limit = DefaultPredictionLimit
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	stored := r.predictions[locationID]
	predictions := make([]*StoredPrediction, 0, len(stored))
	// Walk backwards so equal keys keep newest-inserted first.
	for i := len(stored) - 1; i >= 0; i-- {
		cpy := *stored[i]
		predictions = append(predictions, &cpy)
	}
	sort.SliceStable(predictions, func(i, j int) bool {
		if !predictions[i].PredictionDate.Equal(predictions[j].PredictionDate) {
			return predictions[i].PredictionDate.After(predictions[j].PredictionDate)
		}
		return predictions[i].CreatedAt.After(predictions[j].CreatedAt)
	})

	if len(predictions) > limit {
		predictions = predictions[:limit]
	}
	return predictions, nil
}

// Ensure InMemoryRepository implements Repository interface.
var _ Repository = (*InMemoryRepository)(nil)
