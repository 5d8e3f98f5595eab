package domain

import (
	"fmt"
	"time"
)

// Station is a roadside sensor location identified by its external id.
type Station struct {
	ExternalID            int        `json:"external_id"`
	CityName              string     `json:"city_name"`
	RoadName              string     `json:"road_name"`
	RoadNumber            string     `json:"road_number"`
	Latitude              float64    `json:"latitude"`
	Longitude             float64    `json:"longitude"`
	PositionChangeCounter int        `json:"position_change_counter"`
	PositionChangeTime    *time.Time `json:"position_change_time,omitempty"`
	Elevation             *float64   `json:"elevation,omitempty"`
}

// SamePosition reports whether both stations sit at exactly the same coordinates.
func (s Station) SamePosition(other Station) bool {
	return s.Latitude == other.Latitude && s.Longitude == other.Longitude
}

// Move applies a coordinate change observed in the live feed: the change
// counter is bumped, the change time stamped, and coordinates plus
// descriptive labels overwritten.
func (s *Station) Move(live Station, at time.Time) {
	s.PositionChangeCounter++
	t := at.UTC()
	s.PositionChangeTime = &t
	s.Latitude = live.Latitude
	s.Longitude = live.Longitude
	s.CityName = live.CityName
	s.RoadName = live.RoadName
	s.RoadNumber = live.RoadNumber
}

// StationFromSnapshot extracts station identity and labels from one entry of
// the current snapshot.
func StationFromSnapshot(raw RawReport) (Station, error) {
	id, err := requiredInt(raw, "id")
	if err != nil {
		return Station{}, fmt.Errorf("station id: %w", err)
	}
	lat, err := requiredFloat(raw, "lat")
	if err != nil {
		return Station{}, fmt.Errorf("station %d latitude: %w", id, err)
	}
	lng, err := requiredFloat(raw, "lng")
	if err != nil {
		return Station{}, fmt.Errorf("station %d longitude: %w", id, err)
	}
	st := Station{
		ExternalID: int(id),
		Latitude:   lat,
		Longitude:  lng,
	}
	if st.CityName, err = requiredText(raw, "irenginys"); err != nil {
		return Station{}, fmt.Errorf("station %d: %w", id, err)
	}
	if st.RoadName, err = requiredText(raw, "pavadinimas"); err != nil {
		return Station{}, fmt.Errorf("station %d: %w", id, err)
	}
	if st.RoadNumber, err = requiredText(raw, "numeris"); err != nil {
		return Station{}, fmt.Errorf("station %d: %w", id, err)
	}
	return st, nil
}

// ReportStationID returns the station id carried by a raw report.
func ReportStationID(raw RawReport) (int, error) {
	id, err := requiredInt(raw, "id")
	if err != nil {
		return 0, err
	}
	return int(id), nil
}
