package kafka

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/couchcryptid/road-weather-etl/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerializeOutcome(t *testing.T) {
	now := time.Date(2025, 6, 1, 7, 0, 0, 0, time.UTC)
	outcome := domain.NewPollOutcome(uuid.New(), 1181, domain.TriggerLastHour, now)
	outcome.Finish(nil, domain.Failf(domain.StatusOutOfTimeRange, "no reports in window"))

	msg, err := serializeOutcome(outcome)
	require.NoError(t, err)

	assert.Equal(t, []byte("1181"), msg.Key)
	require.Len(t, msg.Headers, 3)
	assert.Equal(t, "status", msg.Headers[0].Key)
	assert.Equal(t, []byte("OUT_OF_TIMERANGE_ERROR"), msg.Headers[0].Value)
	assert.Equal(t, "trigger", msg.Headers[1].Key)
	assert.Equal(t, []byte("last_hour"), msg.Headers[1].Value)
	assert.Equal(t, []byte(now.Format(time.RFC3339)), msg.Headers[2].Value)

	var decoded domain.PollOutcome
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, outcome.ID, decoded.ID)
	assert.Equal(t, domain.StatusOutOfTimeRange, decoded.Status)
	require.NotNil(t, decoded.ErrorMessage)
	assert.Contains(t, *decoded.ErrorMessage, "no reports in window")
	assert.Equal(t, now.Unix(), decoded.RequestedAtUnix)
}

func TestSerializeOutcome_SuccessCarriesSpan(t *testing.T) {
	loc := time.FixedZone("EEST", 3*3600)
	first := time.Date(2025, 6, 1, 9, 0, 0, 0, loc)
	reports := []domain.Report{{StationID: 7, Local: first}, {StationID: 7, Local: first.Add(30 * time.Minute)}}
	outcome := domain.NewPollOutcome(uuid.New(), 7, domain.TriggerCurrent, first)
	outcome.Finish(reports, nil)

	msg, err := serializeOutcome(outcome)
	require.NoError(t, err)
	assert.Contains(t, string(msg.Value), `"report_count":2`)
	assert.Contains(t, string(msg.Value), `"status":"SUCCESS"`)
	assert.NotContains(t, string(msg.Value), "error_message")
}
