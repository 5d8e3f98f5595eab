// Command validate dry-runs the parsing stages against a captured source
// response without touching a database. It checks a category seed file,
// then decodes, window-filters, parses and validates the reports of one
// station, printing a PASS/FAIL summary per phase and the outcome status the
// ingestion pipeline would record.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -reports testdata/retrospective_1181.json \
//	  -station 1181 \
//	  -period last_day \
//	  -now "2025-06-01 10:15"
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"
	_ "time/tzdata"

	"github.com/couchcryptid/road-weather-etl/internal/adapter/memory"
	"github.com/couchcryptid/road-weather-etl/internal/category"
	"github.com/couchcryptid/road-weather-etl/internal/domain"
	"github.com/couchcryptid/road-weather-etl/internal/observability"
	"github.com/jonboulle/clockwork"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

type options struct {
	seedPath    string
	reportsPath string
	stationID   int
	period      string
	now         string
	timezone    string
}

func main() {
	var opts options
	flag.StringVar(&opts.seedPath, "seed", "", "category seed YAML (default: bundled seed)")
	flag.StringVar(&opts.reportsPath, "reports", "", "captured JSON array of source reports")
	flag.IntVar(&opts.stationID, "station", 0, "station id the reports belong to")
	flag.StringVar(&opts.period, "period", "", "window to apply: last_hour, last_day, or empty for none")
	flag.StringVar(&opts.now, "now", "", "reference local time for the window, YYYY-MM-DD HH:MM (default: now)")
	flag.StringVar(&opts.timezone, "tz", "Europe/Vilnius", "source time zone")
	flag.Parse()

	if opts.reportsPath == "" || opts.stationID <= 0 {
		flag.Usage()
		os.Exit(1)
	}
	os.Exit(run(opts, os.Stdout))
}

func run(opts options, out io.Writer) int {
	loc, err := time.LoadLocation(opts.timezone)
	if err != nil {
		fmt.Fprintf(out, "FATAL: load time zone: %v\n", err)
		return 1
	}
	if opts.now != "" {
		now, err := time.ParseInLocation(domain.LocalTimeLayout, opts.now, loc)
		if err != nil {
			fmt.Fprintf(out, "FATAL: parse -now: %v\n", err)
			return 1
		}
		domain.SetClock(clockwork.NewFakeClockAt(now))
		defer domain.SetClock(nil)
	}

	fmt.Fprintln(out, "=== Road Weather Parse Validation ===")
	fmt.Fprintln(out)

	seedPhase, resolver := validateSeed(opts.seedPath)
	phases := []*phase{seedPhase}
	status := domain.StatusInternal
	reports := 0
	if resolver != nil {
		var parsePhase *phase
		parsePhase, status, reports = validateReports(opts, resolver, loc)
		phases = append(phases, parsePhase)
	}

	allPassed := true
	for _, p := range phases {
		result := "PASS"
		if !p.passed() {
			result = fmt.Sprintf("FAIL (%d errors)", len(p.errors))
			allPassed = false
		}
		fmt.Fprintf(out, "  %-42s %s\n", p.name, result)
	}
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Station %d: outcome %s, %d reports\n", opts.stationID, status, reports)

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Fprintf(out, "\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Fprintf(out, "  %d. %s\n", i+1, e)
		}
	}
	if !allPassed {
		return 1
	}
	return 0
}

// validateSeed loads the seed into a scratch store and returns a resolver
// over it.
func validateSeed(path string) (*phase, *category.Resolver) {
	p := &phase{name: "Category seed"}
	codes, err := category.LoadSeed(path)
	if err != nil {
		p.errorf("load seed: %v", err)
		return p, nil
	}
	perCategory := make(map[domain.Category]int)
	for _, cc := range codes {
		perCategory[cc.Category]++
	}
	for _, c := range domain.Categories {
		if perCategory[c] == 0 {
			p.errorf("category %s has no labels", c)
		}
	}

	ctx := context.Background()
	store := memory.New()
	created, err := category.Seed(ctx, store, codes)
	if err != nil {
		p.errorf("seed store: %v", err)
		return p, nil
	}
	if created != len(codes) {
		p.errorf("%d duplicate labels in seed", len(codes)-created)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	resolver, err := category.Load(ctx, store, category.Options{}, logger, observability.NewMetricsForTesting())
	if err != nil {
		p.errorf("load resolver: %v", err)
		return p, nil
	}
	return p, resolver
}

// validateReports runs the per-station stages short of persistence and
// returns the status the pipeline would record.
func validateReports(opts options, resolver *category.Resolver, loc *time.Location) (*phase, domain.Status, int) {
	p := &phase{name: "Station reports"}
	fail := func(err error) (*phase, domain.Status, int) {
		p.errorf("%v", err)
		status, _ := domain.StatusOf(err)
		return p, status, 0
	}

	body, err := os.ReadFile(opts.reportsPath)
	if err != nil {
		return fail(err)
	}
	raws, err := domain.DecodeReports(body)
	if err != nil {
		return fail(domain.Fail(domain.StatusDecodeFailure, err))
	}
	if len(raws) == 0 {
		return fail(domain.Failf(domain.StatusEmptyResult, "no reports in %s", opts.reportsPath))
	}

	if opts.period != "" {
		period, err := domain.ParsePeriod(opts.period)
		if err != nil {
			return fail(err)
		}
		if raws, err = domain.FilterWindow(raws, period, domain.Now(), loc); err != nil {
			return fail(err)
		}
	}

	reports, unknown, err := domain.ParseBatch(raws, opts.stationID, resolver, loc)
	if err != nil {
		return fail(err)
	}
	if len(unknown) > 0 {
		for _, l := range unknown {
			p.errorf("unregistered %s label %q", l.Category, l.Label)
		}
		return p, domain.StatusUnknownCategoryValues, 0
	}
	if err := domain.ValidateReports(reports); err != nil {
		return fail(err)
	}
	return p, domain.StatusSuccess, len(reports)
}
