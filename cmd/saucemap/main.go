// Command saucemap runs a headless live map: it ingests athlete states over
// HTTP, animates the viewport and serves snapshots and debug charts.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/banshee-data/saucemap/internal/api"
	"github.com/banshee-data/saucemap/internal/assets"
	"github.com/banshee-data/saucemap/internal/config"
	"github.com/banshee-data/saucemap/internal/mapview"
	"github.com/banshee-data/saucemap/internal/monitoring"
	"github.com/banshee-data/saucemap/internal/remote"
	"github.com/banshee-data/saucemap/internal/scene/plotraster"
	"github.com/banshee-data/saucemap/internal/version"
	"github.com/banshee-data/saucemap/internal/worlddb"
)

var (
	listen       = flag.String("listen", envOr("SAUCEMAP_LISTEN", ":8080"), "Listen address")
	configPath   = flag.String("config", envOr("SAUCEMAP_CONFIG", ""), "Map config JSON (defaults when empty)")
	dbPath       = flag.String("db", envOr("SAUCEMAP_DB", "saucemap.db"), "World store SQLite file")
	catalogPath  = flag.String("catalog", envOr("SAUCEMAP_CATALOG", "config/worlds.yaml"), "World catalog YAML applied at startup (empty to skip)")
	assetsURL    = flag.String("assets-url", envOr("SAUCEMAP_ASSETS_URL", ""), "Base URL of the map background assets (empty disables backgrounds)")
	rpcURL       = flag.String("rpc-url", envOr("SAUCEMAP_RPC_URL", "http://localhost:1080"), "Telemetry host RPC base URL (empty disables athlete details)")
	snapshotSize = flag.String("snapshot-size", envOr("SAUCEMAP_SNAPSHOT_SIZE", "800x600"), "Viewport size in pixels, WIDTHxHEIGHT")
	speedUnits   = flag.String("units", envOr("SAUCEMAP_UNITS", "kph"), "Speed units shown in pins (kph or mph)")
	course       = flag.Int("course", 0, "Course to show before the first athlete state arrives")
	trace        = flag.Bool("trace", false, "Enable per-frame trace logging")
	diag         = flag.Bool("diag", false, "Enable diagnostic logging")
	showVersion  = flag.Bool("version", false, "Print version and exit")
)

func envOr(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

// parseSize parses WIDTHxHEIGHT.
func parseSize(s string) (w, h float64, err error) {
	ws, hs, ok := strings.Cut(strings.ToLower(s), "x")
	if !ok {
		return 0, 0, fmt.Errorf("size %q: want WIDTHxHEIGHT", s)
	}
	wi, err := strconv.Atoi(ws)
	if err != nil || wi <= 0 {
		return 0, 0, fmt.Errorf("size %q: bad width", s)
	}
	hi, err := strconv.Atoi(hs)
	if err != nil || hi <= 0 {
		return 0, 0, fmt.Errorf("size %q: bad height", s)
	}
	return float64(wi), float64(hi), nil
}

func loadConfig(path string) (*config.MapConfig, error) {
	if path == "" {
		return config.EmptyMapConfig(), nil
	}
	return config.LoadMapConfig(path)
}

func openStore(ctx context.Context, path, catalog string) (*worlddb.DB, error) {
	store, err := worlddb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open world store: %w", err)
	}
	if err := store.MigrateUp(); err != nil {
		store.Close()
		return nil, err
	}
	if catalog != "" {
		seed, err := worlddb.LoadSeed(catalog)
		if err != nil {
			store.Close()
			return nil, err
		}
		if err := store.Apply(ctx, seed); err != nil {
			store.Close()
			return nil, fmt.Errorf("failed to apply catalog: %w", err)
		}
	}
	return store, nil
}

func main() {
	// .env is optional.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("failed to load .env: %v", err)
	}
	flag.Parse()
	if *showVersion {
		fmt.Println(version.String())
		return
	}

	writers := monitoring.LogWriters{Ops: os.Stderr}
	if *diag {
		writers.Diag = os.Stderr
	}
	if *trace {
		writers.Trace = os.Stderr
	}
	monitoring.SetLogWriters(writers)

	monitoring.Opsf("%s starting", version.String())

	if *listen == "" {
		log.Fatal("Listen address is required")
	}
	width, height, err := parseSize(*snapshotSize)
	if err != nil {
		log.Fatal(err)
	}
	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, *dbPath, *catalogPath)
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	opts := mapview.Options{
		Catalog:    store,
		Geometry:   store,
		Width:      width,
		Height:     height,
		SpeedUnits: *speedUnits,
	}
	if *assetsURL != "" {
		opts.Images = assets.New(*assetsURL, nil)
	}
	var rpc *remote.Client
	if *rpcURL != "" {
		rpc = remote.New(*rpcURL, nil)
		opts.Athletes = rpc
		opts.Events = rpc
	}
	v, err := mapview.New(cfg, opts)
	if err != nil {
		log.Fatalf("failed to create viewport: %v", err)
	}
	if *course != 0 {
		if err := v.SetCourse(ctx, *course); err != nil {
			log.Printf("failed to show course %d: %v", *course, err)
		}
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := v.Run(ctx); err != nil {
			log.Printf("render loop failed: %v", err)
		}
	}()

	if rpc != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ticker := time.NewTicker(remote.DefaultTTL)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					if n := rpc.Prune(); n > 0 {
						monitoring.Diagf("pruned %d cached remote records", n)
					}
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()

		server := &http.Server{
			Addr:    *listen,
			Handler: api.NewServer(v, plotraster.New()).Router(),
		}
		go func() {
			monitoring.Opsf("listening on %s", *listen)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}
		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()
	v.Drain()
	log.Printf("Graceful shutdown complete")
}
