package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Status classifies the result of one polling attempt for one station.
type Status string

const (
	StatusSuccess               Status = "SUCCESS"
	StatusRequestFailure        Status = "HTTP_REQUEST_ERROR"
	StatusEmptyResult           Status = "EMPTY_REPORT_ERROR"
	StatusDecodeFailure         Status = "JSON_DECODE_ERROR"
	StatusOutOfTimeRange        Status = "OUT_OF_TIMERANGE_ERROR"
	StatusParsingFailure        Status = "PARSING_ERROR"
	StatusValidationFailure     Status = "VALIDATION_ERROR"
	StatusUnknownCategoryValues Status = "UNKN_PARSING_ERROR"
	// StatusInternal records failures outside the stage taxonomy. The cycle
	// that produced one is aborted after the outcome is written.
	StatusInternal Status = "INTERNAL_ERROR"
)

// Statuses lists every outcome status.
var Statuses = []Status{
	StatusSuccess,
	StatusRequestFailure,
	StatusEmptyResult,
	StatusDecodeFailure,
	StatusOutOfTimeRange,
	StatusParsingFailure,
	StatusValidationFailure,
	StatusUnknownCategoryValues,
	StatusInternal,
}

// StageError tags a per-station pipeline failure with the outcome status it maps to.
type StageError struct {
	Status Status
	Err    error
}

func (e *StageError) Error() string {
	if e.Err == nil {
		return strings.ToLower(string(e.Status))
	}
	return fmt.Sprintf("%s: %v", strings.ToLower(string(e.Status)), e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Fail wraps err as a stage failure with the given status.
func Fail(status Status, err error) error {
	return &StageError{Status: status, Err: err}
}

// Failf formats a stage failure with the given status.
func Failf(status Status, format string, args ...any) error {
	return &StageError{Status: status, Err: fmt.Errorf(format, args...)}
}

// StatusOf returns the status carried by err. Errors without a StageError in
// their chain report false.
func StatusOf(err error) (Status, bool) {
	if err == nil {
		return StatusSuccess, true
	}
	var se *StageError
	if errors.As(err, &se) {
		return se.Status, true
	}
	return StatusInternal, false
}

// Store sentinels surfaced through the report persistence boundary.
var (
	ErrDuplicateReport = errors.New("duplicate report for station and unix time")
	ErrInvalidReport   = errors.New("report violates schema constraints")
)

// Trigger names one of the scheduled entry points.
type Trigger string

const (
	TriggerCurrent    Trigger = "current_weather"
	TriggerLastHour   Trigger = Trigger(PeriodLastHour)
	TriggerLastDay    Trigger = Trigger(PeriodLastDay)
	TriggerStations   Trigger = "stations"
	TriggerElevations Trigger = "elevations"
)

// MaxErrorMessageLen caps the stored error message, in characters.
const MaxErrorMessageLen = 5000

// PollOutcome is the append-only record of one polling attempt for one station.
type PollOutcome struct {
	ID              uuid.UUID  `json:"id"`
	RunID           uuid.UUID  `json:"run_id"`
	StationID       int        `json:"station_id"`
	Trigger         Trigger    `json:"trigger"`
	RequestedAt     time.Time  `json:"requested_at"`
	RequestedAtUnix int64      `json:"requested_at_unix"`
	Status          Status     `json:"status"`
	ErrorMessage    *string    `json:"error_message,omitempty"`
	EarliestReport  *time.Time `json:"earliest_report,omitempty"`
	LatestReport    *time.Time `json:"latest_report,omitempty"`
	ReportCount     int        `json:"report_count"`
}

// NewPollOutcome starts an outcome for a station attempt at the given time.
// Status defaults to success until Finish records otherwise.
func NewPollOutcome(runID uuid.UUID, stationID int, trigger Trigger, at time.Time) PollOutcome {
	return PollOutcome{
		ID:              uuid.New(),
		RunID:           runID,
		StationID:       stationID,
		Trigger:         trigger,
		RequestedAt:     at.UTC(),
		RequestedAtUnix: at.Unix(),
		Status:          StatusSuccess,
	}
}

// Finish sets the outcome's status and message from err. On success the
// report span and count are taken from reports.
func (o *PollOutcome) Finish(reports []Report, err error) {
	if err != nil {
		o.Status, _ = StatusOf(err)
		msg := truncateRunes(err.Error(), MaxErrorMessageLen)
		o.ErrorMessage = &msg
		o.EarliestReport, o.LatestReport, o.ReportCount = nil, nil, 0
		return
	}
	o.Status = StatusSuccess
	o.ErrorMessage = nil
	o.EarliestReport, o.LatestReport = ReportSpan(reports)
	o.ReportCount = len(reports)
}

// ReportSpan returns the earliest and latest local report times in reports.
func ReportSpan(reports []Report) (earliest, latest *time.Time) {
	for i := range reports {
		t := reports[i].Local
		if earliest == nil || t.Before(*earliest) {
			earliest = &t
		}
		if latest == nil || t.After(*latest) {
			latest = &t
		}
	}
	return earliest, latest
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	r := []rune(s)
	return string(r[:limit])
}
