// Package memory is an in-process store with the same uniqueness rules as
// the Postgres store. It backs tests and STORE=memory development runs.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/couchcryptid/road-weather-etl/internal/domain"
)

var (
	ErrStationExists   = errors.New("station already exists")
	ErrStationNotFound = errors.New("station not found")
)

type reportKey struct {
	station int
	unix    int64
}

type labelKey struct {
	category domain.Category
	label    string
}

// Store holds every entity in maps guarded by one mutex.
type Store struct {
	mu       sync.Mutex
	stations map[int]domain.Station
	reports  map[reportKey]domain.Report
	codes    map[labelKey]domain.CategoryCode
	order    []labelKey
	outcomes []domain.PollOutcome
}

// New creates an empty store.
func New() *Store {
	return &Store{
		stations: make(map[int]domain.Station),
		reports:  make(map[reportKey]domain.Report),
		codes:    make(map[labelKey]domain.CategoryCode),
	}
}

// ListStations returns all stations ordered by external id.
func (s *Store) ListStations(_ context.Context) ([]domain.Station, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Station, 0, len(s.stations))
	for _, st := range s.stations {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExternalID < out[j].ExternalID })
	return out, nil
}

// CreateStations inserts all stations or none.
func (s *Store) CreateStations(_ context.Context, stations []domain.Station) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[int]struct{}, len(stations))
	for _, st := range stations {
		if _, ok := s.stations[st.ExternalID]; ok {
			return fmt.Errorf("station %d: %w", st.ExternalID, ErrStationExists)
		}
		if _, ok := seen[st.ExternalID]; ok {
			return fmt.Errorf("station %d: %w", st.ExternalID, ErrStationExists)
		}
		seen[st.ExternalID] = struct{}{}
	}
	for _, st := range stations {
		s.stations[st.ExternalID] = st
	}
	return nil
}

// UpdateStation replaces a registered station.
func (s *Store) UpdateStation(_ context.Context, st domain.Station) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.stations[st.ExternalID]; !ok {
		return fmt.Errorf("station %d: %w", st.ExternalID, ErrStationNotFound)
	}
	s.stations[st.ExternalID] = st
	return nil
}

// InsertReports stores the batch atomically. A repeated (station, unix)
// pair, already stored or within the batch, rejects the whole batch with
// domain.ErrDuplicateReport.
func (s *Store) InsertReports(_ context.Context, reports []domain.Report) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch := make(map[reportKey]struct{}, len(reports))
	for _, r := range reports {
		k := reportKey{station: r.StationID, unix: r.Unix}
		if _, ok := s.stations[r.StationID]; !ok {
			return 0, fmt.Errorf("report for station %d: %w", r.StationID, ErrStationNotFound)
		}
		if _, ok := s.reports[k]; ok {
			return 0, fmt.Errorf("station %d unix %d: %w", r.StationID, r.Unix, domain.ErrDuplicateReport)
		}
		if _, ok := batch[k]; ok {
			return 0, fmt.Errorf("station %d unix %d: %w", r.StationID, r.Unix, domain.ErrDuplicateReport)
		}
		batch[k] = struct{}{}
	}
	for _, r := range reports {
		s.reports[reportKey{station: r.StationID, unix: r.Unix}] = r
	}
	return len(reports), nil
}

// Reports returns a station's stored reports ordered by unix time.
func (s *Store) Reports(stationID int) []domain.Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Report
	for k, r := range s.reports {
		if k.station == stationID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Unix < out[j].Unix })
	return out
}

// ListCategoryCodes returns codes in insertion order.
func (s *Store) ListCategoryCodes(_ context.Context) ([]domain.CategoryCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.CategoryCode, 0, len(s.order))
	for _, k := range s.order {
		out = append(out, s.codes[k])
	}
	return out, nil
}

// CreateCategoryCodes inserts labels not yet present and returns how many were added.
func (s *Store) CreateCategoryCodes(_ context.Context, codes []domain.CategoryCode) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, cc := range codes {
		k := labelKey{category: cc.Category, label: cc.Label}
		if _, ok := s.codes[k]; ok {
			continue
		}
		s.codes[k] = cc
		s.order = append(s.order, k)
		n++
	}
	return n, nil
}

// CreateOutcome appends a poll outcome.
func (s *Store) CreateOutcome(_ context.Context, o domain.PollOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes = append(s.outcomes, o)
	return nil
}

// Outcomes returns every recorded outcome in insertion order.
func (s *Store) Outcomes() []domain.PollOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.PollOutcome(nil), s.outcomes...)
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close() {}
