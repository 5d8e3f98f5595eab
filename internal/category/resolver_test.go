package category

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/couchcryptid/road-weather-etl/internal/domain"
	"github.com/couchcryptid/road-weather-etl/internal/observability"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	codes     []domain.CategoryCode
	creates   [][]domain.CategoryCode
	listErr   error
	createErr error
}

func (f *fakeStore) ListCategoryCodes(context.Context) ([]domain.CategoryCode, error) {
	return f.codes, f.listErr
}

func (f *fakeStore) CreateCategoryCodes(_ context.Context, codes []domain.CategoryCode) (int, error) {
	if f.createErr != nil {
		return 0, f.createErr
	}
	f.creates = append(f.creates, codes)
	n := 0
	for _, c := range codes {
		exists := false
		for _, e := range f.codes {
			if e.Category == c.Category && e.Label == c.Label {
				exists = true
				break
			}
		}
		if !exists {
			f.codes = append(f.codes, c)
			n++
		}
	}
	return n, nil
}

func intPtr(i int) *int { return &i }

func seededStore() *fakeStore {
	return &fakeStore{codes: []domain.CategoryCode{
		{Category: domain.CategoryWindDirection, Label: "Šiaurės", Code: intPtr(0)},
		{Category: domain.CategoryWindDirection, Label: "-", Code: nil},
		{Category: domain.CategorySurfaceCondition, Label: "Sausa", Code: intPtr(11)},
		{Category: domain.CategoryPrecipitationType, Label: "Nėra", Code: intPtr(0)},
	}}
}

func loadResolver(t *testing.T, store Store, opts Options) *Resolver {
	t.Helper()
	r, err := Load(context.Background(), store, opts, slog.New(slog.NewTextHandler(io.Discard, nil)), observability.NewMetricsForTesting())
	require.NoError(t, err)
	return r
}

func TestResolve_KnownLabels(t *testing.T) {
	r := loadResolver(t, seededStore(), Options{})

	res := r.Resolve(domain.CategoryWindDirection, "Šiaurės", 1)
	require.NotNil(t, res.Code)
	assert.Equal(t, 0, *res.Code)
	assert.False(t, res.Unregistered)

	res = r.Resolve(domain.CategorySurfaceCondition, "Sausa", 1)
	assert.Equal(t, 11, *res.Code)

	// Registered with a null code: nil, not flagged.
	res = r.Resolve(domain.CategoryWindDirection, "-", 1)
	assert.Nil(t, res.Code)
	assert.False(t, res.Unregistered)

	assert.Empty(t, r.FlaggedStations())
}

func TestResolve_EmptyLabel(t *testing.T) {
	r := loadResolver(t, seededStore(), Options{})
	res := r.Resolve(domain.CategoryPrecipitationType, "", 5)
	assert.Equal(t, domain.Resolution{}, res)
	assert.Empty(t, r.FlaggedStations())
}

func TestResolve_UnknownLabelIsIdempotent(t *testing.T) {
	r := loadResolver(t, seededStore(), Options{})

	first := r.Resolve(domain.CategoryPrecipitationType, "Kruša", 3)
	second := r.Resolve(domain.CategoryPrecipitationType, "Kruša", 3)

	assert.True(t, first.Unregistered)
	assert.True(t, second.Unregistered)
	assert.Nil(t, first.Code)
	assert.Equal(t, []string{"Kruša"}, r.Pending(domain.CategoryPrecipitationType))
	assert.Equal(t, []int{3}, r.FlaggedStations())
}

func TestResolve_NumericWindDirectionIsFlagged(t *testing.T) {
	r := loadResolver(t, seededStore(), Options{})

	res := r.Resolve(domain.CategoryWindDirection, "270", 9)
	assert.True(t, res.Unregistered)
	assert.Nil(t, res.Code)
	assert.Equal(t, []string{"270"}, r.Pending(domain.CategoryWindDirection))
	assert.Equal(t, []int{9}, r.FlaggedStations())
}

func TestCommitUnregistered_OneCallWithNullCodes(t *testing.T) {
	store := seededStore()
	r := loadResolver(t, store, Options{})

	r.Resolve(domain.CategoryPrecipitationType, "Kruša", 1)
	r.Resolve(domain.CategorySurfaceCondition, "Purvas", 2)
	r.Resolve(domain.CategoryWindDirection, "90", 2)

	n, err := r.CommitUnregistered(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	require.Len(t, store.creates, 1)
	for _, cc := range store.creates[0] {
		assert.Nil(t, cc.Code, cc.Label)
	}
	assert.Empty(t, r.Pending(domain.CategoryPrecipitationType))
	assert.InDelta(t, 1, testutil.ToFloat64(r.metrics.UnregisteredLabels.WithLabelValues("wind_direction")), 0)

	// Committed labels are now known within the same cycle.
	assert.False(t, r.Resolve(domain.CategoryPrecipitationType, "Kruša", 4).Unregistered)
}

func TestCommitUnregistered_NothingPending(t *testing.T) {
	store := seededStore()
	r := loadResolver(t, store, Options{})

	n, err := r.CommitUnregistered(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, store.creates)
}

func TestCommitUnregistered_AutoCodeNumericWind(t *testing.T) {
	store := seededStore()
	r := loadResolver(t, store, Options{AutoCodeNumericWind: true})

	assert.True(t, r.Resolve(domain.CategoryWindDirection, "135", 1).Unregistered)
	r.Resolve(domain.CategoryWindDirection, "Šiaurė", 1)

	_, err := r.CommitUnregistered(context.Background())
	require.NoError(t, err)

	byLabel := map[string]*int{}
	for _, cc := range store.creates[0] {
		byLabel[cc.Label] = cc.Code
	}
	require.NotNil(t, byLabel["135"])
	assert.Equal(t, 135, *byLabel["135"])
	assert.Nil(t, byLabel["Šiaurė"])
}

func TestCommitUnregistered_StoreErrorKeepsPending(t *testing.T) {
	store := seededStore()
	store.createErr = errors.New("db down")
	r := loadResolver(t, store, Options{})
	r.Resolve(domain.CategoryPrecipitationType, "Kruša", 1)

	_, err := r.CommitUnregistered(context.Background())
	require.Error(t, err)
	assert.Equal(t, []string{"Kruša"}, r.Pending(domain.CategoryPrecipitationType))
}

func TestLoad_StoreError(t *testing.T) {
	_, err := Load(context.Background(), &fakeStore{listErr: errors.New("db down")}, Options{},
		slog.New(slog.NewTextHandler(io.Discard, nil)), observability.NewMetricsForTesting())
	require.Error(t, err)
}

func TestDefaultSeed(t *testing.T) {
	codes, err := DefaultSeed()
	require.NoError(t, err)

	var calm, north *domain.CategoryCode
	for i := range codes {
		if codes[i].Category == domain.CategoryWindDirection && codes[i].Label == "-" {
			calm = &codes[i]
		}
		if codes[i].Category == domain.CategoryWindDirection && codes[i].Label == "Šiaurės" {
			north = &codes[i]
		}
	}
	require.NotNil(t, calm)
	assert.Nil(t, calm.Code)
	require.NotNil(t, north)
	assert.Equal(t, 0, *north.Code)
	assert.Len(t, codes, 7+9+27)
}

func TestLoadSeed_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte("surface_condition:\n  - {label: Sausa, code: 11}\n"), 0o600))

	codes, err := LoadSeed(path)
	require.NoError(t, err)
	require.Len(t, codes, 1)
	assert.Equal(t, domain.CategorySurfaceCondition, codes[0].Category)

	require.NoError(t, os.WriteFile(path, []byte("hail_size:\n  - {label: x}\n"), 0o600))
	_, err = LoadSeed(path)
	require.Error(t, err)
}

func TestSeed_SkipsExisting(t *testing.T) {
	store := seededStore()
	n, err := Seed(context.Background(), store, []domain.CategoryCode{
		{Category: domain.CategorySurfaceCondition, Label: "Sausa", Code: intPtr(99)},
		{Category: domain.CategorySurfaceCondition, Label: "Ledas", Code: intPtr(71)},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
