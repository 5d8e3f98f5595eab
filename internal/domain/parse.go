package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// LocalTimeLayout is the source's wall-clock timestamp format.
const LocalTimeLayout = "2006-01-02 15:04"

// DecodeReports decodes a JSON array of report objects, keeping numbers as
// json.Number so integer fields are not rounded through float64.
func DecodeReports(body []byte) ([]RawReport, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var raws []RawReport
	if err := dec.Decode(&raws); err != nil {
		return nil, fmt.Errorf("decode reports: %w", err)
	}
	return raws, nil
}

// ParseLocalTime parses a source wall-clock timestamp in loc.
func ParseLocalTime(v any, loc *time.Location) (time.Time, error) {
	s, ok := v.(string)
	if !ok {
		if v == nil {
			return time.Time{}, errNull
		}
		return time.Time{}, fmt.Errorf("cannot convert %T to timestamp", v)
	}
	t, err := time.ParseInLocation(LocalTimeLayout, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
	}
	return t, nil
}

// TimeZoneOffset returns ceil((local wall clock - utc wall clock) / 60s) in minutes.
func TimeZoneOffset(local, utc time.Time) int {
	wall := time.Date(local.Year(), local.Month(), local.Day(),
		local.Hour(), local.Minute(), local.Second(), local.Nanosecond(), time.UTC)
	u := utc.UTC()
	return int(math.Ceil(wall.Sub(u).Seconds() / 60))
}

// ParseReport normalizes one raw report for the given station. Category
// labels go through resolver; any label it does not know is returned so the
// caller can withhold the batch. Coercion failures and missing keys are
// tagged StatusParsingFailure.
func ParseReport(raw RawReport, stationID int, resolver CodeResolver, loc *time.Location) (Report, []UnregisteredLabel, error) {
	r, unknown, err := parseReport(raw, stationID, resolver, loc)
	if err != nil {
		return Report{}, nil, Fail(StatusParsingFailure, fmt.Errorf("parse report: %w", err))
	}
	return r, unknown, nil
}

func parseReport(raw RawReport, stationID int, resolver CodeResolver, loc *time.Location) (Report, []UnregisteredLabel, error) {
	id, err := requiredInt(raw, "id")
	if err != nil {
		return Report{}, nil, err
	}
	if id != int64(stationID) {
		return Report{}, nil, fmt.Errorf("report belongs to station %d, not %d", id, stationID)
	}
	unix, err := requiredInt(raw, "surinkimo_data_unix")
	if err != nil {
		return Report{}, nil, err
	}
	lv, err := lookup(raw, "surinkimo_data")
	if err != nil {
		return Report{}, nil, err
	}
	local, err := ParseLocalTime(lv, loc)
	if err != nil {
		return Report{}, nil, fmt.Errorf("field %q: %w", "surinkimo_data", err)
	}

	r := Report{
		StationID: stationID,
		Unix:      unix,
		Local:     local,
		UTC:       time.Unix(unix, 0).UTC(),
	}
	r.TimeZoneOffset = TimeZoneOffset(r.Local, r.UTC)

	var unknown []UnregisteredLabel
	category := func(key string, c Category) (*int, error) {
		label, err := requiredText(raw, key)
		if err != nil {
			return nil, err
		}
		res := resolver.Resolve(c, label, stationID)
		if res.Unregistered {
			unknown = append(unknown, UnregisteredLabel{Category: c, Label: label, StationID: stationID})
		}
		return res.Code, nil
	}

	if r.SurfaceCondition, err = category("kelio_danga", CategorySurfaceCondition); err != nil {
		return Report{}, nil, err
	}
	if r.AirTemperature, err = optionalFloat(raw, "oro_temperatura"); err != nil {
		return Report{}, nil, err
	}
	if r.SurfaceTemperature, err = optionalFloat(raw, "dangos_temperatura"); err != nil {
		return Report{}, nil, err
	}
	if r.Visibility, err = optionalInt(raw, "matomumas"); err != nil {
		return Report{}, nil, err
	}
	if r.WindDirection, err = category("vejo_kryptis", CategoryWindDirection); err != nil {
		return Report{}, nil, err
	}
	if r.WindSpeedAvg, err = optionalFloat(raw, "vejo_greitis_vidut"); err != nil {
		return Report{}, nil, err
	}
	if r.WindSpeedMax, err = optionalFloat(raw, "vejo_greitis_maks"); err != nil {
		return Report{}, nil, err
	}
	if r.PrecipitationType, err = category("krituliu_tipas", CategoryPrecipitationType); err != nil {
		return Report{}, nil, err
	}
	if r.PrecipitationAmount, err = optionalFloat(raw, "krituliu_kiekis"); err != nil {
		return Report{}, nil, err
	}
	if r.DewPoint, err = optionalFloat(raw, "rasos_taskas"); err != nil {
		return Report{}, nil, err
	}
	if r.FrostPoint, err = optionalFloat(raw, "uzsalimo_taskas"); err != nil {
		return Report{}, nil, err
	}
	return r, unknown, nil
}

// ParseBatch parses every raw report for a station. It fails on the first
// report that cannot be parsed. The returned labels are deduplicated.
func ParseBatch(raws []RawReport, stationID int, resolver CodeResolver, loc *time.Location) ([]Report, []UnregisteredLabel, error) {
	reports := make([]Report, 0, len(raws))
	var unknown []UnregisteredLabel
	seen := make(map[UnregisteredLabel]struct{})
	for _, raw := range raws {
		r, labels, err := ParseReport(raw, stationID, resolver, loc)
		if err != nil {
			return nil, nil, err
		}
		reports = append(reports, r)
		for _, l := range labels {
			if _, ok := seen[l]; ok {
				continue
			}
			seen[l] = struct{}{}
			unknown = append(unknown, l)
		}
	}
	return reports, unknown, nil
}
