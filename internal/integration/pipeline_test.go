//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/couchcryptid/road-weather-etl/internal/adapter/eismo"
	"github.com/couchcryptid/road-weather-etl/internal/adapter/elevation"
	"github.com/couchcryptid/road-weather-etl/internal/adapter/httpclient"
	kafkaadapter "github.com/couchcryptid/road-weather-etl/internal/adapter/kafka"
	"github.com/couchcryptid/road-weather-etl/internal/adapter/postgres"
	"github.com/couchcryptid/road-weather-etl/internal/category"
	"github.com/couchcryptid/road-weather-etl/internal/domain"
	"github.com/couchcryptid/road-weather-etl/internal/observability"
	"github.com/couchcryptid/road-weather-etl/internal/pipeline"
	"github.com/couchcryptid/road-weather-etl/internal/stations"
	"github.com/jackc/pgx/v5"
	"github.com/jonboulle/clockwork"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const outcomeTopic = "test-poll-outcomes"

// fakeEismo serves a fixed snapshot and per-station history.
func fakeEismo(t *testing.T, snapshot []map[string]any, history map[string][]map[string]any) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/weather-conditions-service/", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(snapshot)
	})
	mux.HandleFunc("/weather-conditions-retrospective/", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(history[r.URL.Query().Get("id")])
	})
	mux.HandleFunc("/elevation/", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "112.5")
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func sourceReport(id int, local time.Time, precipitation string) map[string]any {
	return map[string]any{
		"id":                  id,
		"lat":                 54.6872,
		"lng":                 25.2797,
		"irenginys":           "Vilnius",
		"pavadinimas":         "Vilnius-Kaunas",
		"numeris":             "A1",
		"surinkimo_data_unix": local.Unix(),
		"surinkimo_data":      local.Format(domain.LocalTimeLayout),
		"kelio_danga":         "Sausa",
		"oro_temperatura":     14.2,
		"dangos_temperatura":  18.9,
		"matomumas":           2000,
		"vejo_kryptis":        "Pietų",
		"vejo_greitis_vidut":  3.1,
		"vejo_greitis_maks":   6,
		"krituliu_tipas":      precipitation,
		"krituliu_kiekis":     0,
		"rasos_taskas":        8.5,
		"uzsalimo_taskas":     7.9,
	}
}

func countRows(ctx context.Context, t *testing.T, conn *pgx.Conn, query string, args ...any) int {
	t.Helper()
	var n int
	require.NoError(t, conn.QueryRow(ctx, query, args...).Scan(&n))
	return n
}

func TestPipelineEndToEnd(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	dsn := startPostgres(ctx, t)
	broker := startKafka(ctx, t)
	createTopic(t, broker, outcomeTopic)

	loc, err := time.LoadLocation("Europe/Vilnius")
	require.NoError(t, err)
	now := time.Date(2025, 6, 1, 10, 15, 0, 0, loc)
	domain.SetClock(clockwork.NewFakeClockAt(now))
	defer domain.SetClock(nil)

	inWindow := time.Date(2025, 6, 1, 9, 30, 0, 0, loc)
	src := fakeEismo(t,
		[]map[string]any{sourceReport(1181, now.Add(-5*time.Minute), "Nėra"), sourceReport(1182, now.Add(-5*time.Minute), "Nėra")},
		map[string][]map[string]any{
			"1181": {sourceReport(1181, inWindow, "Nėra"), sourceReport(1181, inWindow.Add(10*time.Minute), "Nėra")},
			"1182": {sourceReport(1182, inWindow, "Ledo kruopos")},
		},
	)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := observability.NewMetricsForTesting()

	require.NoError(t, postgres.Migrate(dsn, logger))
	require.NoError(t, postgres.Migrate(dsn, logger), "second run is a no-op")
	store, err := postgres.Open(ctx, dsn, 4, logger)
	require.NoError(t, err)
	defer store.Close()

	codes, err := category.DefaultSeed()
	require.NoError(t, err)
	_, err = category.Seed(ctx, store, codes)
	require.NoError(t, err)

	fast := httpclient.Policy{MaxRetries: 1, BackoffFactor: time.Millisecond, Logging: true}
	httpClient := httpclient.New(5*time.Second, logger, metrics)
	source := eismo.NewClient(httpClient, src.URL, fast, fast, logger)
	heights := elevation.NewClient(httpClient, src.URL+"/elevation/", 10, logger, metrics)
	registry := stations.NewReconciler(store, source, heights, logger, metrics)
	writer := kafkaadapter.NewOutcomeWriter([]string{broker}, outcomeTopic, logger)
	defer writer.Close()

	orch := pipeline.New(source, registry, store, writer, pipeline.Config{
		Location: loc, LastHourReports: 50, LastDayReports: 1000,
	}, logger, metrics)

	require.NoError(t, orch.RunRetrospective(ctx, domain.PeriodLastHour))
	require.NoError(t, orch.RefreshElevations(ctx))

	conn, err := pgx.Connect(ctx, dsn)
	require.NoError(t, err)
	defer conn.Close(ctx)

	assert.Equal(t, 2, countRows(ctx, t, conn, `SELECT count(*) FROM stations`))
	assert.Equal(t, 2, countRows(ctx, t, conn, `SELECT count(*) FROM stations WHERE elevation = 112.5`))
	assert.Equal(t, 2, countRows(ctx, t, conn, `SELECT count(*) FROM reports WHERE station_id = 1181`))
	assert.Equal(t, 0, countRows(ctx, t, conn, `SELECT count(*) FROM reports WHERE station_id = 1182`))
	assert.Equal(t, 1, countRows(ctx, t, conn,
		`SELECT count(*) FROM category_codes WHERE category = 'precipitation_type' AND label = $1 AND code IS NULL`, "Ledo kruopos"))

	var status string
	require.NoError(t, conn.QueryRow(ctx,
		`SELECT status FROM poll_outcomes WHERE station_id = 1182`).Scan(&status))
	assert.Equal(t, string(domain.StatusUnknownCategoryValues), status)

	var local time.Time
	var offset int
	require.NoError(t, conn.QueryRow(ctx,
		`SELECT local_time, time_zone_offset FROM reports WHERE station_id = 1181 ORDER BY unix LIMIT 1`).Scan(&local, &offset))
	assert.Equal(t, 9, local.Hour())
	assert.Equal(t, 180, offset)

	// Re-running the same window hits the unique key and records a validation failure.
	require.NoError(t, orch.RunRetrospective(ctx, domain.PeriodLastHour))
	assert.Equal(t, 2, countRows(ctx, t, conn, `SELECT count(*) FROM reports WHERE station_id = 1181`))
	assert.Equal(t, 1, countRows(ctx, t, conn,
		`SELECT count(*) FROM poll_outcomes WHERE station_id = 1181 AND status = $1`, string(domain.StatusValidationFailure)))
	assert.Equal(t, 4, countRows(ctx, t, conn, `SELECT count(*) FROM poll_outcomes`))

	// The current snapshot stores one fresh report per station.
	require.NoError(t, orch.RunCurrent(ctx))
	assert.Equal(t, 3, countRows(ctx, t, conn, `SELECT count(*) FROM reports WHERE station_id = 1181`))

	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       outcomeTopic,
		GroupID:     fmt.Sprintf("test-outcomes-%d", time.Now().UnixNano()),
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     500 * time.Millisecond,
		StartOffset: kafkago.FirstOffset,
	})
	defer reader.Close()

	readCtx, readCancel := context.WithTimeout(ctx, 30*time.Second)
	defer readCancel()
	msg, err := reader.ReadMessage(readCtx)
	require.NoError(t, err)

	var outcome domain.PollOutcome
	require.NoError(t, json.Unmarshal(msg.Value, &outcome))
	assert.Equal(t, strconv.Itoa(outcome.StationID), string(msg.Key))
	assert.Equal(t, domain.TriggerLastHour, outcome.Trigger)
}
