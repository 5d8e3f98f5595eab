// Package stations keeps the station registry in step with the live feed.
package stations

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/couchcryptid/road-weather-etl/internal/domain"
	"github.com/couchcryptid/road-weather-etl/internal/observability"
)

// Store persists stations. Stations are never deleted.
type Store interface {
	ListStations(ctx context.Context) ([]domain.Station, error)
	CreateStations(ctx context.Context, stations []domain.Station) error
	UpdateStation(ctx context.Context, station domain.Station) error
}

// SnapshotSource returns the current report of every station.
type SnapshotSource interface {
	CurrentSnapshot(ctx context.Context) ([]domain.RawReport, error)
}

// ElevationLookup resolves terrain height; nil means the lookup failed.
type ElevationLookup interface {
	Elevation(ctx context.Context, lat, lng float64) *float64
}

// Result summarizes one reconciliation.
type Result struct {
	Created   int
	Moved     int
	Unchanged int
	Skipped   int
}

// Reconciler diffs the live snapshot against the registry.
type Reconciler struct {
	store     Store
	source    SnapshotSource
	elevation ElevationLookup
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// NewReconciler creates a Reconciler.
func NewReconciler(store Store, source SnapshotSource, elevation ElevationLookup, logger *slog.Logger, metrics *observability.Metrics) *Reconciler {
	return &Reconciler{
		store:     store,
		source:    source,
		elevation: elevation,
		logger:    logger,
		metrics:   metrics,
	}
}

// Reconcile fetches the current snapshot and applies it to the registry.
func (r *Reconciler) Reconcile(ctx context.Context) (Result, error) {
	snapshot, err := r.source.CurrentSnapshot(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("fetch station snapshot: %w", err)
	}
	return r.ReconcileSnapshot(ctx, snapshot)
}

// ReconcileSnapshot applies a snapshot to the registry. Stations whose
// coordinates differ are moved (counter bumped, change time stamped, labels
// overwritten); unseen stations are created in bulk; stations missing from
// the snapshot are left alone. Malformed entries are skipped.
func (r *Reconciler) ReconcileSnapshot(ctx context.Context, snapshot []domain.RawReport) (Result, error) {
	var res Result
	live := make(map[int]domain.Station, len(snapshot))
	for _, raw := range snapshot {
		st, err := domain.StationFromSnapshot(raw)
		if err != nil {
			res.Skipped++
			r.logger.Warn("skipping malformed snapshot entry", "error", err)
			continue
		}
		if _, dup := live[st.ExternalID]; dup {
			continue
		}
		live[st.ExternalID] = st
	}

	registered, err := r.store.ListStations(ctx)
	if err != nil {
		return res, fmt.Errorf("list stations: %w", err)
	}
	known := make(map[int]struct{}, len(registered))

	now := domain.Now()
	for _, st := range registered {
		known[st.ExternalID] = struct{}{}
		cur, ok := live[st.ExternalID]
		if !ok {
			continue
		}
		if st.SamePosition(cur) {
			res.Unchanged++
			continue
		}
		r.logger.Info("station moved",
			"station_id", st.ExternalID,
			"from_lat", st.Latitude, "from_lng", st.Longitude,
			"to_lat", cur.Latitude, "to_lng", cur.Longitude,
		)
		st.Move(cur, now)
		if err := r.store.UpdateStation(ctx, st); err != nil {
			return res, fmt.Errorf("update station %d: %w", st.ExternalID, err)
		}
		res.Moved++
		r.metrics.StationChanges.WithLabelValues("moved").Inc()
	}

	var added []domain.Station
	for id, st := range live {
		if _, ok := known[id]; !ok {
			added = append(added, st)
		}
	}
	sort.Slice(added, func(i, j int) bool { return added[i].ExternalID < added[j].ExternalID })
	if len(added) > 0 {
		if err := r.store.CreateStations(ctx, added); err != nil {
			return res, fmt.Errorf("create stations: %w", err)
		}
		res.Created = len(added)
		r.metrics.StationChanges.WithLabelValues("created").Add(float64(len(added)))
	}

	r.logger.Info("station registry reconciled",
		"created", res.Created, "moved", res.Moved, "unchanged", res.Unchanged, "skipped", res.Skipped)
	return res, nil
}

// RefreshElevations looks up the elevation of every registered station and
// stores it. A failed lookup stores a null elevation. It returns the number
// of stations that received a value.
func (r *Reconciler) RefreshElevations(ctx context.Context) (int, error) {
	registered, err := r.store.ListStations(ctx)
	if err != nil {
		return 0, fmt.Errorf("list stations: %w", err)
	}
	found := 0
	for _, st := range registered {
		if err := ctx.Err(); err != nil {
			return found, err
		}
		st.Elevation = r.elevation.Elevation(ctx, st.Latitude, st.Longitude)
		if st.Elevation != nil {
			found++
		}
		if err := r.store.UpdateStation(ctx, st); err != nil {
			return found, fmt.Errorf("update station %d: %w", st.ExternalID, err)
		}
	}
	r.logger.Info("station elevations refreshed", "stations", len(registered), "found", found)
	return found, nil
}
