package store

import "context"

// Repository defines the interface for forecast data persistence.
type Repository interface {
	// ListLocations returns every location ordered by name.
	ListLocations(ctx context.Context) ([]*Location, error)

	// GetLocation retrieves a location by ID.
	// Returns ErrLocationNotFound if it doesn't exist.
	GetLocation(ctx context.Context, id string) (*Location, error)

	// FindLocationNear returns a location within NearDegrees of lat/lon.
	// Returns ErrLocationNotFound if there is none.
	FindLocationNear(ctx context.Context, lat, lon float64) (*Location, error)

	// AddLocation stores loc unless a location already exists near its
	// coordinates. It returns the stored location and whether it was created.
	AddLocation(ctx context.Context, loc *Location) (*Location, bool, error)

	// UpsertObservation stores obs, replacing any observation for the same
	// location and day.
	UpsertObservation(ctx context.Context, obs *Observation) error

	// ListObservations returns the most recent observations, newest first.
	// A non-positive limit means DefaultObservationLimit.
	ListObservations(ctx context.Context, locationID string, limit int) ([]*Observation, error)

	// AddPrediction stores a forecast.
	AddPrediction(ctx context.Context, p *StoredPrediction) error

	// ListPredictions returns the most recent forecasts, newest first.
	// A non-positive limit means DefaultPredictionLimit.
	ListPredictions(ctx context.Context, locationID string, limit int) ([]*StoredPrediction, error)
}
