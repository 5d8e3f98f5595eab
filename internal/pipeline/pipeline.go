package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/couchcryptid/road-weather-etl/internal/category"
	"github.com/couchcryptid/road-weather-etl/internal/domain"
	"github.com/couchcryptid/road-weather-etl/internal/observability"
	"github.com/couchcryptid/road-weather-etl/internal/stations"
	"github.com/google/uuid"
)

// Source fetches raw reports from the upstream service.
type Source interface {
	CurrentSnapshot(ctx context.Context) ([]domain.RawReport, error)
	Retrospective(ctx context.Context, stationID, n int) ([]domain.RawReport, error)
}

// Registry keeps the station registry current.
type Registry interface {
	Reconcile(ctx context.Context) (stations.Result, error)
	ReconcileSnapshot(ctx context.Context, snapshot []domain.RawReport) (stations.Result, error)
	RefreshElevations(ctx context.Context) (int, error)
}

// Store is the persistence boundary used by a cycle.
type Store interface {
	category.Store
	ListStations(ctx context.Context) ([]domain.Station, error)
	// InsertReports stores the batch atomically. A duplicate (station, unix)
	// must surface as domain.ErrDuplicateReport and a constraint violation
	// as domain.ErrInvalidReport.
	InsertReports(ctx context.Context, reports []domain.Report) (int, error)
	CreateOutcome(ctx context.Context, outcome domain.PollOutcome) error
	Ping(ctx context.Context) error
}

// OutcomeSink receives every stored outcome. Publishing is best-effort.
type OutcomeSink interface {
	PublishOutcome(ctx context.Context, outcome domain.PollOutcome) error
}

// Config holds orchestration settings.
type Config struct {
	// Location is the source's civil time zone.
	Location        *time.Location
	LastHourReports int
	LastDayReports  int
	Category        category.Options
}

// Orchestrator runs ingestion cycles: fetch, filter, parse, check labels and
// persist per station, recording exactly one outcome per station attempt.
type Orchestrator struct {
	source   Source
	registry Registry
	store    Store
	sink     OutcomeSink
	cfg      Config
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// New creates an Orchestrator. sink may be nil.
func New(source Source, registry Registry, store Store, sink OutcomeSink, cfg Config, logger *slog.Logger, metrics *observability.Metrics) *Orchestrator {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Orchestrator{
		source:   source,
		registry: registry,
		store:    store,
		sink:     sink,
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
	}
}

// CheckReadiness reports whether the store is reachable.
func (o *Orchestrator) CheckReadiness(ctx context.Context) error {
	if err := o.store.Ping(ctx); err != nil {
		return fmt.Errorf("store not reachable: %w", err)
	}
	return nil
}

// fetchFunc returns the raw reports to parse for one station.
type fetchFunc func(ctx context.Context, stationID int) ([]domain.RawReport, error)

// RunRetrospective reconciles the registry, then polls every station's
// history for the period. The window is fixed when the cycle starts. Per-station failures become outcomes; only an
// error outside the stage taxonomy aborts the cycle and is returned.
func (o *Orchestrator) RunRetrospective(ctx context.Context, period domain.Period) error {
	n, err := o.reportsFor(period)
	if err != nil {
		return err
	}
	trigger := domain.Trigger(period)
	return o.cycle(ctx, trigger, func(ctx context.Context) (fetchFunc, error) {
		if _, err := o.registry.Reconcile(ctx); err != nil {
			o.logger.Error("station reconciliation failed, using stored registry", "trigger", trigger, "error", err)
		}
		now := domain.Now()
		return func(ctx context.Context, stationID int) ([]domain.RawReport, error) {
			raws, err := o.source.Retrospective(ctx, stationID, n)
			if err != nil {
				return nil, err
			}
			return domain.FilterWindow(raws, period, now, o.cfg.Location)
		}, nil
	})
}

// RunCurrent fetches the current snapshot once, reconciles the registry
// with it and stores each station's current report.
func (o *Orchestrator) RunCurrent(ctx context.Context) error {
	return o.cycle(ctx, domain.TriggerCurrent, func(ctx context.Context) (fetchFunc, error) {
		snapshot, snapErr := o.source.CurrentSnapshot(ctx)
		if snapErr != nil {
			o.logger.Error("current snapshot failed", "error", snapErr)
			return func(context.Context, int) ([]domain.RawReport, error) { return nil, snapErr }, nil
		}
		if _, err := o.registry.ReconcileSnapshot(ctx, snapshot); err != nil {
			o.logger.Error("station reconciliation failed, using stored registry", "trigger", domain.TriggerCurrent, "error", err)
		}

		byStation := make(map[int][]domain.RawReport)
		for _, raw := range snapshot {
			id, err := domain.ReportStationID(raw)
			if err != nil {
				o.logger.Warn("skipping snapshot entry without station id", "error", err)
				continue
			}
			byStation[id] = append(byStation[id], raw)
		}
		return func(_ context.Context, stationID int) ([]domain.RawReport, error) {
			raws := byStation[stationID]
			if len(raws) == 0 {
				return nil, domain.Failf(domain.StatusEmptyResult, "station %d: absent from current snapshot", stationID)
			}
			return raws, nil
		}, nil
	})
}

// RefreshStations reconciles the registry against the current snapshot.
func (o *Orchestrator) RefreshStations(ctx context.Context) error {
	if _, err := o.registry.Reconcile(ctx); err != nil {
		return fmt.Errorf("refresh stations: %w", err)
	}
	return nil
}

// RefreshElevations updates the elevation of every registered station.
func (o *Orchestrator) RefreshElevations(ctx context.Context) error {
	if _, err := o.registry.RefreshElevations(ctx); err != nil {
		return fmt.Errorf("refresh elevations: %w", err)
	}
	return nil
}

func (o *Orchestrator) reportsFor(period domain.Period) (int, error) {
	switch period {
	case domain.PeriodLastHour:
		return o.cfg.LastHourReports, nil
	case domain.PeriodLastDay:
		return o.cfg.LastDayReports, nil
	default:
		return 0, fmt.Errorf("unknown period %q", period)
	}
}

// cycle runs prepare once, then polls each registered station in id order
// and commits newly seen labels once at the end.
func (o *Orchestrator) cycle(ctx context.Context, trigger domain.Trigger, prepare func(context.Context) (fetchFunc, error)) error {
	start := domain.Now()
	o.metrics.CyclesRunning.Inc()
	defer func() {
		o.metrics.CyclesRunning.Dec()
		o.metrics.CycleDuration.WithLabelValues(string(trigger)).Observe(domain.Since(start).Seconds())
	}()

	runID := uuid.New()
	logger := o.logger.With("trigger", trigger, "run_id", runID)
	logger.Info("cycle started")

	fetch, err := prepare(ctx)
	if err != nil {
		return err
	}
	resolver, err := category.Load(ctx, o.store, o.cfg.Category, logger, o.metrics)
	if err != nil {
		return err
	}
	registered, err := o.store.ListStations(ctx)
	if err != nil {
		return fmt.Errorf("list stations: %w", err)
	}
	sort.Slice(registered, func(i, j int) bool { return registered[i].ExternalID < registered[j].ExternalID })

	var abort error
	polled := 0
	for _, st := range registered {
		if err := ctx.Err(); err != nil {
			abort = err
			break
		}
		polled++
		if err := o.pollStation(ctx, runID, trigger, st.ExternalID, resolver, fetch, logger); err != nil {
			abort = err
			break
		}
	}

	if flagged := resolver.FlaggedStations(); len(flagged) > 0 {
		logger.Warn("stations to refetch after label assignment", "stations", flagged)
	}
	_, commitErr := resolver.CommitUnregistered(context.WithoutCancel(ctx))
	if commitErr != nil {
		logger.Error("commit unregistered labels failed", "error", commitErr)
	}

	if abort != nil {
		logger.Error("cycle aborted", "error", abort, "stations_polled", polled)
	} else {
		logger.Info("cycle completed", "stations_polled", polled, "duration", domain.Since(start))
	}
	return errors.Join(abort, commitErr)
}

// pollStation processes one station and writes its outcome on every exit
// path, panics included. It returns an error only for failures outside the
// stage taxonomy.
func (o *Orchestrator) pollStation(
	ctx context.Context,
	runID uuid.UUID,
	trigger domain.Trigger,
	stationID int,
	resolver *category.Resolver,
	fetch fetchFunc,
	logger *slog.Logger,
) (err error) {
	outcome := domain.NewPollOutcome(runID, stationID, trigger, domain.Now())
	var reports []domain.Report
	var stageErr error

	defer func() {
		if p := recover(); p != nil {
			stageErr = fmt.Errorf("panic: %v", p)
			err = fmt.Errorf("station %d: %w", stationID, stageErr)
		}
		outcome.Finish(reports, stageErr)
		if werr := o.recordOutcome(context.WithoutCancel(ctx), outcome, logger); werr != nil && err == nil {
			err = werr
		}
	}()

	reports, stageErr = o.processStation(ctx, stationID, resolver, fetch)
	if _, tagged := domain.StatusOf(stageErr); !tagged {
		return fmt.Errorf("station %d: %w", stationID, stageErr)
	}
	return nil
}

func (o *Orchestrator) processStation(ctx context.Context, stationID int, resolver *category.Resolver, fetch fetchFunc) ([]domain.Report, error) {
	raws, err := fetch(ctx, stationID)
	if err != nil {
		return nil, err
	}

	reports, unknown, err := domain.ParseBatch(raws, stationID, resolver, o.cfg.Location)
	if err != nil {
		return nil, err
	}
	if len(unknown) > 0 {
		labels := make([]string, len(unknown))
		for i, l := range unknown {
			labels[i] = fmt.Sprintf("%s=%q", l.Category, l.Label)
		}
		return nil, domain.Failf(domain.StatusUnknownCategoryValues,
			"station %d: unregistered labels: %s", stationID, strings.Join(labels, ", "))
	}

	if err := domain.ValidateReports(reports); err != nil {
		return nil, err
	}
	if _, err := o.store.InsertReports(ctx, reports); err != nil {
		if errors.Is(err, domain.ErrDuplicateReport) || errors.Is(err, domain.ErrInvalidReport) {
			return nil, domain.Fail(domain.StatusValidationFailure, err)
		}
		return nil, fmt.Errorf("insert reports: %w", err)
	}
	o.metrics.ReportsPersisted.Add(float64(len(reports)))
	return reports, nil
}

func (o *Orchestrator) recordOutcome(ctx context.Context, outcome domain.PollOutcome, logger *slog.Logger) error {
	o.metrics.PollOutcomes.WithLabelValues(string(outcome.Trigger), string(outcome.Status)).Inc()
	if outcome.Status == domain.StatusSuccess {
		logger.Info("station polled", "station_id", outcome.StationID, "reports", outcome.ReportCount)
	} else {
		msg := ""
		if outcome.ErrorMessage != nil {
			msg = *outcome.ErrorMessage
		}
		logger.Warn("station poll failed", "station_id", outcome.StationID, "status", outcome.Status, "error", msg)
	}

	if err := o.store.CreateOutcome(ctx, outcome); err != nil {
		return fmt.Errorf("record outcome for station %d: %w", outcome.StationID, err)
	}
	if o.sink != nil {
		if err := o.sink.PublishOutcome(ctx, outcome); err != nil {
			o.metrics.OutcomePublishErrors.Inc()
			logger.Warn("publish outcome failed", "station_id", outcome.StationID, "error", err)
		}
	}
	return nil
}
