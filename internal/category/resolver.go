// Package category maps free-text source labels to curated integer codes.
package category

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/couchcryptid/road-weather-etl/internal/domain"
	"github.com/couchcryptid/road-weather-etl/internal/observability"
)

// Store persists the label tables.
type Store interface {
	ListCategoryCodes(ctx context.Context) ([]domain.CategoryCode, error)
	// CreateCategoryCodes inserts the codes in one transaction, skipping
	// labels that already exist, and returns how many were created.
	CreateCategoryCodes(ctx context.Context, codes []domain.CategoryCode) (int, error)
}

// Options tunes resolver behaviour.
type Options struct {
	// AutoCodeNumericWind commits numeric wind-direction labels with the
	// parsed degrees as their code instead of leaving them null. Such labels
	// are still flagged when first seen.
	AutoCodeNumericWind bool
}

// Resolver holds the code tables for one ingestion cycle plus the labels
// first seen during it. It is safe for concurrent use.
type Resolver struct {
	store   Store
	opts    Options
	logger  *slog.Logger
	metrics *observability.Metrics

	mu      sync.Mutex
	codes   map[domain.Category]map[string]*int
	pending map[domain.Category]map[string]struct{}
	flagged map[int]struct{}
}

// Load reads the persisted tables and returns a resolver for one cycle.
func Load(ctx context.Context, store Store, opts Options, logger *slog.Logger, metrics *observability.Metrics) (*Resolver, error) {
	codes, err := store.ListCategoryCodes(ctx)
	if err != nil {
		return nil, fmt.Errorf("load category codes: %w", err)
	}
	r := &Resolver{
		store:   store,
		opts:    opts,
		logger:  logger,
		metrics: metrics,
		codes:   make(map[domain.Category]map[string]*int, len(domain.Categories)),
		pending: make(map[domain.Category]map[string]struct{}, len(domain.Categories)),
		flagged: make(map[int]struct{}),
	}
	for _, c := range domain.Categories {
		r.codes[c] = make(map[string]*int)
		r.pending[c] = make(map[string]struct{})
	}
	for _, cc := range codes {
		if _, ok := r.codes[cc.Category]; !ok {
			continue
		}
		r.codes[cc.Category][cc.Label] = cc.Code
	}
	return r, nil
}

// Resolve looks up label in the category's table. An empty label resolves
// to nil. An unknown label, including a wind direction that parses as a
// number, is recorded for CommitUnregistered and flags stationID.
func (r *Resolver) Resolve(c domain.Category, label string, stationID int) domain.Resolution {
	if label == "" {
		return domain.Resolution{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	table, ok := r.codes[c]
	if !ok {
		return domain.Resolution{Unregistered: true}
	}
	if code, ok := table[label]; ok {
		return domain.Resolution{Code: code}
	}
	r.pending[c][label] = struct{}{}
	r.flagged[stationID] = struct{}{}
	return domain.Resolution{Unregistered: true}
}

// Pending returns the unregistered labels recorded for a category, sorted.
func (r *Resolver) Pending(c domain.Category) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return sortedKeys(r.pending[c])
}

// FlaggedStations returns the stations that reported unregistered labels, sorted.
func (r *Resolver) FlaggedStations() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]int, 0, len(r.flagged))
	for id := range r.flagged {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// CommitUnregistered stores every pending label of every category in one
// store call, with a null code unless auto-coding applies. Committed labels
// move into the resolver's tables so later lookups in the same cycle return
// their code.
func (r *Resolver) CommitUnregistered(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var batch []domain.CategoryCode
	for _, c := range domain.Categories {
		labels := sortedKeys(r.pending[c])
		if len(labels) == 0 {
			r.logger.Info("no unregistered labels received", "category", c)
			continue
		}
		r.logger.Warn("unregistered labels received", "category", c, "labels", strings.Join(labels, "; "), "count", len(labels))
		for _, label := range labels {
			batch = append(batch, domain.CategoryCode{Category: c, Label: label, Code: r.autoCode(c, label)})
		}
	}
	if len(batch) == 0 {
		return 0, nil
	}

	created, err := r.store.CreateCategoryCodes(ctx, batch)
	if err != nil {
		return 0, fmt.Errorf("commit unregistered labels: %w", err)
	}
	for _, cc := range batch {
		r.codes[cc.Category][cc.Label] = cc.Code
		r.metrics.UnregisteredLabels.WithLabelValues(string(cc.Category)).Inc()
	}
	for _, c := range domain.Categories {
		r.pending[c] = make(map[string]struct{})
	}
	r.logger.Info("unregistered labels committed", "created", created, "submitted", len(batch))
	return created, nil
}

func (r *Resolver) autoCode(c domain.Category, label string) *int {
	if !r.opts.AutoCodeNumericWind || c != domain.CategoryWindDirection {
		return nil
	}
	deg, err := strconv.Atoi(strings.TrimSpace(label))
	if err != nil || deg < 0 || deg > 360 {
		return nil
	}
	return &deg
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
