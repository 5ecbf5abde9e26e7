package worlddb

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/saucemap/internal/testutil"
	"github.com/banshee-data/saucemap/internal/world"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "worlds.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.MigrateUp())
	return db
}

func seededDB(t *testing.T) *DB {
	t.Helper()
	db := openTestDB(t)
	seed, err := LoadSeed(filepath.Join("testdata", "catalog.yaml"))
	require.NoError(t, err)
	require.NoError(t, db.Apply(context.Background(), seed))
	return db
}

func TestMigrations(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)

	version, dirty, err := db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
	assert.False(t, dirty)

	// Already current.
	require.NoError(t, db.MigrateUp())

	require.NoError(t, db.MigrateDown())
	version, _, err = db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)

	require.NoError(t, db.MigrateUp())
	version, _, err = db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
}

func TestWorldByCourse(t *testing.T) {
	t.Parallel()
	db := seededDB(t)
	ctx := context.Background()

	for _, want := range []*world.Meta{testutil.WatopiaMeta(), testutil.RichmondMeta()} {
		got, err := db.WorldByCourse(ctx, want.CourseID)
		require.NoError(t, err)
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("course %d mismatch (-want +got):\n%s", want.CourseID, diff)
		}
	}

	_, err := db.WorldByCourse(ctx, 99)
	assert.ErrorIs(t, err, world.ErrNotFound)

	all, err := db.Worlds(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, testutil.CourseRichmond, all[0].CourseID)
	assert.Equal(t, testutil.CourseWatopia, all[1].CourseID)
}

func TestRoads(t *testing.T) {
	t.Parallel()
	db := seededDB(t)
	ctx := context.Background()

	for _, course := range []int{testutil.CourseWatopia, testutil.CourseRichmond} {
		got, err := db.Roads(ctx, course)
		require.NoError(t, err)
		if diff := cmp.Diff(testutil.Roads(course), got); diff != "" {
			t.Errorf("course %d roads mismatch (-want +got):\n%s", course, diff)
		}
	}

	_, err := db.Roads(ctx, 99)
	assert.ErrorIs(t, err, world.ErrNotFound)
}

func TestPortalRoad(t *testing.T) {
	t.Parallel()
	db := seededDB(t)
	ctx := context.Background()

	got, err := db.PortalRoad(ctx, testutil.PortalRoadID)
	require.NoError(t, err)
	want := testutil.PortalRoad()
	assert.Equal(t, want.Path, got.Path)
	assert.Equal(t, want.Sports, got.Sports)
	assert.True(t, got.IsAvailable)
	assert.Zero(t, got.CourseID, "portal roads are not bound to a course")

	// A course road id is not a portal road.
	_, err = db.PortalRoad(ctx, 1)
	assert.ErrorIs(t, err, world.ErrNotFound)
}

func TestRoute(t *testing.T) {
	t.Parallel()
	db := seededDB(t)
	ctx := context.Background()

	got, err := db.Route(ctx, testutil.RouteWatopiaID)
	require.NoError(t, err)
	if diff := cmp.Diff(testutil.WatopiaRoute(), got); diff != "" {
		t.Errorf("route mismatch (-want +got):\n%s", diff)
	}

	_, err = db.Route(ctx, 99)
	assert.ErrorIs(t, err, world.ErrNotFound)
}

func TestApplyIsIdempotent(t *testing.T) {
	t.Parallel()
	db := seededDB(t)
	ctx := context.Background()

	seed, err := LoadSeed(filepath.Join("testdata", "catalog.yaml"))
	require.NoError(t, err)
	require.NoError(t, db.Apply(ctx, seed))

	roads, err := db.Roads(ctx, testutil.CourseWatopia)
	require.NoError(t, err)
	assert.Len(t, roads, 5)

	// Zero laps are stored as a single lap.
	require.NoError(t, db.Apply(ctx, &Seed{Routes: []SeedRoute{{
		ID: 11, CourseID: testutil.CourseWatopia, Path: [][2]float64{{0, 0}, {1, 1}},
	}}}))
	r, err := db.Route(ctx, 11)
	require.NoError(t, err)
	assert.Equal(t, 1, r.Laps)
}

func TestParseSeed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		doc     string
		wantErr string
	}{
		{
			name: "minimal",
			doc:  "worlds:\n  - {courseId: 1, worldId: 1, maxX: 1, maxY: 1, tileScale: 1, mapScale: 1}\n",
		},
		{
			name:    "missing world id",
			doc:     "worlds:\n  - {courseId: 1, maxX: 1, maxY: 1, tileScale: 1, mapScale: 1}\n",
			wantErr: "WorldID",
		},
		{
			name:    "inverted bounds",
			doc:     "worlds:\n  - {courseId: 1, worldId: 1, minX: 5, maxX: 1, maxY: 1, tileScale: 1, mapScale: 1}\n",
			wantErr: "MaxX",
		},
		{
			name:    "zero map scale",
			doc:     "worlds:\n  - {courseId: 1, worldId: 1, maxX: 1, maxY: 1, tileScale: 1}\n",
			wantErr: "MapScale",
		},
		{
			name:    "short road",
			doc:     "worlds:\n  - {courseId: 1, worldId: 1, maxX: 1, maxY: 1, tileScale: 1, mapScale: 1}\nroads:\n  - {id: 1, courseId: 1, path: [[0, 0]]}\n",
			wantErr: "Path",
		},
		{
			name:    "road on unknown course",
			doc:     "roads:\n  - {id: 1, courseId: 7, path: [[0, 0], [1, 1]]}\n",
			wantErr: "unknown course 7",
		},
		{
			name:    "route on unknown course",
			doc:     "routes:\n  - {id: 1, courseId: 7, path: [[0, 0], [1, 1]]}\n",
			wantErr: "unknown course 7",
		},
		{
			name:    "malformed yaml",
			doc:     "worlds: [",
			wantErr: "failed to parse catalog",
		},
		{
			name:    "point with three coordinates",
			doc:     "roads:\n  - {id: 1, courseId: 7, path: [[0, 0, 0], [1, 1]]}\n",
			wantErr: "failed to parse catalog",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseSeed([]byte(tt.doc))
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadSeed_FileChecks(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	_, err := LoadSeed(filepath.Join(dir, "catalog.json"))
	assert.ErrorContains(t, err, ".yaml extension")

	_, err = LoadSeed(filepath.Join(dir, "missing.yaml"))
	assert.ErrorContains(t, err, "failed to stat")

	p := filepath.Join(dir, "empty.yml")
	require.NoError(t, os.WriteFile(p, nil, 0o644))
	seed, err := LoadSeed(p)
	require.NoError(t, err)
	assert.Empty(t, seed.Worlds)
}

func TestSeedCatalogMatchesTestdata(t *testing.T) {
	t.Parallel()
	seed, err := LoadSeed(filepath.Join("..", "..", "config", "worlds.yaml"))
	require.NoError(t, err)
	assert.Len(t, seed.Worlds, 2)
	assert.Len(t, seed.PortalRoads, 1)
}
