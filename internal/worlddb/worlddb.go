// Package worlddb stores world metadata, road geometry and routes in SQLite
// and serves them to the map engine as a world.Catalog and
// world.GeometrySource.
package worlddb

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/saucemap/internal/curves"
	"github.com/banshee-data/saucemap/internal/monitoring"
	"github.com/banshee-data/saucemap/internal/world"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA foreign_keys=ON",
}

// DB is the world store.
type DB struct {
	*sql.DB
}

// Open opens the store at path and applies the connection pragmas. Call
// MigrateUp before first use of a new file.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", p, err)
		}
	}
	return &DB{db}, nil
}

// MigrateUp runs all pending migrations up to the latest version.
// Returns nil if the schema is already current.
func (db *DB) MigrateUp() error {
	m, err := db.newMigrate()
	if err != nil {
		return err
	}
	// m is not closed: that would close the shared connection.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// MigrateVersion returns the current migration version and dirty state.
// Returns 0, false, nil if no migrations have been applied yet.
func (db *DB) MigrateVersion() (version uint, dirty bool, err error) {
	m, err := db.newMigrate()
	if err != nil {
		return 0, false, err
	}
	version, dirty, err = m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

// MigrateDown rolls back the most recent migration.
func (db *DB) MigrateDown() error {
	m, err := db.newMigrate()
	if err != nil {
		return err
	}
	if err := m.Steps(-1); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration down failed: %w", err)
	}
	return nil
}

func (db *DB) newMigrate() (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(db.DB, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = migrateLogger{}
	return m, nil
}

// migrateLogger routes golang-migrate output to the diag stream.
type migrateLogger struct{}

func (migrateLogger) Printf(format string, v ...interface{}) {
	monitoring.Diagf("[migrate] "+format, v...)
}

func (migrateLogger) Verbose() bool { return false }

const worldColumns = `course_id, world_id, name, map_version,
	min_x, min_y, max_x, max_y, anchor_x, anchor_y, tile_scale, map_scale,
	lat_offset, lon_offset, lat_deg_dist, lon_deg_dist,
	flipped_hack, rotate_route_select`

func scanWorld(row interface{ Scan(...any) error }) (*world.Meta, error) {
	var m world.Meta
	err := row.Scan(&m.CourseID, &m.WorldID, &m.Name, &m.MapVersion,
		&m.MinX, &m.MinY, &m.MaxX, &m.MaxY, &m.AnchorX, &m.AnchorY,
		&m.TileScale, &m.MapScale,
		&m.LatOffset, &m.LonOffset, &m.LatDegDist, &m.LonDegDist,
		&m.FlippedHack, &m.RotateRouteSelect)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// WorldByCourse implements world.Catalog.
func (db *DB) WorldByCourse(ctx context.Context, courseID int) (*world.Meta, error) {
	row := db.QueryRowContext(ctx, `SELECT `+worldColumns+` FROM worlds WHERE course_id = ?`, courseID)
	m, err := scanWorld(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("course %d: %w", courseID, world.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load course %d: %w", courseID, err)
	}
	return m, nil
}

// Worlds lists every stored world ordered by course id.
func (db *DB) Worlds(ctx context.Context) ([]*world.Meta, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+worldColumns+` FROM worlds ORDER BY course_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*world.Meta
	for rows.Next() {
		m, err := scanWorld(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func courseKey(courseID int) string { return strconv.Itoa(courseID) }

func (db *DB) loadRoads(ctx context.Context, key string, roadID *int) ([]*world.Road, error) {
	q := `SELECT road_id, sports, is_available, looped, path_json FROM roads WHERE course_key = ?`
	args := []any{key}
	if roadID != nil {
		q += ` AND road_id = ?`
		args = append(args, *roadID)
	}
	q += ` ORDER BY sort_order, road_id`

	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*world.Road
	for rows.Next() {
		var (
			r      world.Road
			sports string
			path   string
		)
		if err := rows.Scan(&r.ID, &sports, &r.IsAvailable, &r.Looped, &path); err != nil {
			return nil, err
		}
		if sports != "" {
			r.Sports = strings.Split(sports, ",")
		}
		if err := json.Unmarshal([]byte(path), &r.Path); err != nil {
			return nil, fmt.Errorf("road %d has a corrupt path: %w", r.ID, err)
		}
		if key != world.PortalCourse {
			r.CourseID, _ = strconv.Atoi(key)
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

// Roads implements world.GeometrySource.
func (db *DB) Roads(ctx context.Context, courseID int) ([]*world.Road, error) {
	roads, err := db.loadRoads(ctx, courseKey(courseID), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load roads for course %d: %w", courseID, err)
	}
	if len(roads) == 0 {
		return nil, fmt.Errorf("roads for course %d: %w", courseID, world.ErrNotFound)
	}
	return roads, nil
}

// PortalRoad implements world.GeometrySource.
func (db *DB) PortalRoad(ctx context.Context, roadID int) (*world.Road, error) {
	roads, err := db.loadRoads(ctx, world.PortalCourse, &roadID)
	if err != nil {
		return nil, fmt.Errorf("failed to load portal road %d: %w", roadID, err)
	}
	if len(roads) == 0 {
		return nil, fmt.Errorf("portal road %d: %w", roadID, world.ErrNotFound)
	}
	return roads[0], nil
}

// Route implements world.GeometrySource. The stored points are joined into
// a Catmull-Rom curve.
func (db *DB) Route(ctx context.Context, routeID int) (*world.Route, error) {
	var (
		r      world.Route
		looped bool
		path   string
	)
	err := db.QueryRowContext(ctx,
		`SELECT route_id, course_id, name, laps, looped, path_json FROM routes WHERE route_id = ?`, routeID).
		Scan(&r.ID, &r.CourseID, &r.Name, &r.Laps, &looped, &path)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("route %d: %w", routeID, world.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load route %d: %w", routeID, err)
	}

	var pts [][2]float64
	if err := json.Unmarshal([]byte(path), &pts); err != nil {
		return nil, fmt.Errorf("route %d has a corrupt path: %w", routeID, err)
	}
	if r.CurvePath, err = curves.CatmullRomPath(curves.Points(pts), looped); err != nil {
		return nil, fmt.Errorf("route %d: %w", routeID, err)
	}
	return &r, nil
}
