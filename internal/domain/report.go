package domain

import "time"

// RawReport is one report object as decoded from the source JSON.
type RawReport map[string]any

// Report is a normalized station reading. It is unique per (StationID, Unix)
// and immutable once stored.
type Report struct {
	StationID      int       `json:"station_id" validate:"required,gt=0"`
	Unix           int64     `json:"unix" validate:"required,gt=0"`
	Local          time.Time `json:"local" validate:"required"`
	UTC            time.Time `json:"utc" validate:"required"`
	TimeZoneOffset int       `json:"time_zone_offset" validate:"gte=-720,lte=840"`

	SurfaceCondition    *int     `json:"surface_condition,omitempty"`
	AirTemperature      *float64 `json:"air_temperature,omitempty"`
	SurfaceTemperature  *float64 `json:"surface_temperature,omitempty"`
	Visibility          *int     `json:"visibility,omitempty"`
	WindDirection       *int     `json:"wind_direction,omitempty"`
	WindSpeedAvg        *float64 `json:"wind_speed_avg,omitempty"`
	WindSpeedMax        *float64 `json:"wind_speed_max,omitempty"`
	PrecipitationType   *int     `json:"precipitation_type,omitempty"`
	PrecipitationAmount *float64 `json:"precipitation_amount,omitempty"`
	DewPoint            *float64 `json:"dew_point,omitempty"`
	FrostPoint          *float64 `json:"frost_point,omitempty"`
}
