package responsedb

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/smearceptance/internal/timeutil"
	"github.com/banshee-data/smearceptance/internal/unfold"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "responses.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func testResponse(t *testing.T, k int) *unfold.Response {
	t.Helper()
	r, err := unfold.BuildResponse(mat.NewDense(3, 3, []float64{
		90, 8, 2,
		10, 80, 10,
		2, 8, 90,
	}), k)
	require.NoError(t, err)
	return r
}

func TestOpen_Migrates(t *testing.T) {
	db := openTestDB(t)
	version, dirty, err := db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
	assert.False(t, dirty)

	// Migrating an up-to-date database is a no-op.
	require.NoError(t, db.MigrateUp())

	require.NoError(t, db.MigrateTo(1))
	version, _, err = db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE name = 'unfold_results'`).Scan(&n))
	assert.Zero(t, n)
}

func TestSaveAndLoadResponse(t *testing.T) {
	db := openTestDB(t)
	r := testResponse(t, 1)

	id, err := db.SaveResponse("muon-momentum", r, "fixture")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	rec, err := db.GetResponse(id)
	require.NoError(t, err)
	assert.Equal(t, "muon-momentum", rec.Name)
	assert.Equal(t, 3, rec.NTrue)
	assert.Equal(t, 3, rec.NReco)
	assert.Equal(t, 1, rec.Truncation)
	assert.Equal(t, r.Rank, rec.Rank)
	assert.Equal(t, r.Singular, rec.Singular)
	assert.Equal(t, "fixture", rec.Notes)
	assert.True(t, mat.Equal(r.Migration(), rec.Migration))
	assert.True(t, mat.Equal(r.Inverse, rec.Inverse))

	loaded, err := db.LoadResponse(id)
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.Truncation)
	assert.True(t, mat.EqualApprox(r.Inverse, loaded.Inverse, 1e-12))
}

func TestListAndLatest(t *testing.T) {
	db := openTestDB(t)
	start := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	clock := timeutil.NewMockClock(start)
	db.SetClock(clock)

	first, err := db.SaveResponse("a", testResponse(t, 0), "")
	require.NoError(t, err)
	clock.Advance(time.Minute)
	second, err := db.SaveResponse("a", testResponse(t, 1), "")
	require.NoError(t, err)
	clock.Advance(time.Minute)
	_, err = db.SaveResponse("b", testResponse(t, 0), "")
	require.NoError(t, err)

	list, err := db.ListResponses()
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "b", list[0].Name, "newest first")
	assert.Nil(t, list[0].Migration, "matrices are not listed")
	assert.Empty(t, list[0].Notes)
	assert.True(t, list[0].CreatedAt.Equal(start.Add(2*time.Minute)))
	assert.True(t, list[2].CreatedAt.Equal(start))

	latest, err := db.LatestResponse("a")
	require.NoError(t, err)
	assert.Equal(t, second, latest)
	assert.NotEqual(t, first, latest)

	_, err = db.LatestResponse("missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestUnfoldResults(t *testing.T) {
	db := openTestDB(t)
	r := testResponse(t, 0)
	id, err := db.SaveResponse("r", r, "")
	require.NoError(t, err)

	toys, err := unfold.PropagateToys([]float64{100, 100, 100}, []float64{10, 10, 10}, r.Inverse, unfold.ToyConfig{N: 50, Seed: 1})
	require.NoError(t, err)
	_, err = db.SaveUnfold(id, 0, unfold.ThrowGaussian, toys)
	require.NoError(t, err)

	results, err := db.ListUnfolds(id)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, toys.Mean, results[0].Mean)
	assert.Equal(t, toys.StdDev, results[0].StdDev)
	assert.Equal(t, "gaussian", results[0].ThrowMode)
	assert.Equal(t, 50, results[0].Toys)

	_, err = db.SaveUnfold("no-such-response", 0, unfold.ThrowGaussian, toys)
	assert.Error(t, err, "foreign key enforced")

	require.NoError(t, db.DeleteResponse(id))
	results, err = db.ListUnfolds(id)
	require.NoError(t, err)
	assert.Empty(t, results, "cascade delete")
	assert.ErrorIs(t, db.DeleteResponse(id), sql.ErrNoRows)

	_, err = db.GetResponse(id)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}
