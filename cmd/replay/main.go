// Replay runs the full evaluation pipeline over a recorded session: a
// directory of per-aircraft flight-history CSVs and a JSON file of extracted
// tower instructions. The ordered alert stream goes to stdout and,
// optionally, into a sqlite event store for the report tooling.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/airfield-data/surfacewatch/internal/adsb"
	"github.com/airfield-data/surfacewatch/internal/alert"
	"github.com/airfield-data/surfacewatch/internal/clearance"
	"github.com/airfield-data/surfacewatch/internal/compliance"
	"github.com/airfield-data/surfacewatch/internal/config"
	"github.com/airfield-data/surfacewatch/internal/conflict"
	"github.com/airfield-data/surfacewatch/internal/db"
	"github.com/airfield-data/surfacewatch/internal/engine"
	"github.com/airfield-data/surfacewatch/internal/surface"
	"github.com/airfield-data/surfacewatch/internal/track"
)

var (
	csvDir       = flag.String("csv", "csvs", "Directory of flight-history CSV files")
	instructions = flag.String("instructions", "", "JSON file of extracted tower instructions (optional)")
	configFile   = flag.String("config", "", "Tuning config JSON file (optional)")
	dbFile       = flag.String("db", "", "Persist the alert stream to this sqlite file (optional)")
	jsonOut      = flag.Bool("json", false, "Emit alerts as JSON lines instead of text")
)

func loadInstructions(path string, book *clearance.Book) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	var records []clearance.Clearance
	if err := json.Unmarshal(data, &records); err != nil {
		return 0, fmt.Errorf("parsing %s: %w", path, err)
	}
	for _, c := range records {
		book.Add(c)
	}
	return len(records), nil
}

func main() {
	flag.Parse()

	cfg := config.Default()
	if *configFile != "" {
		var err error
		cfg, err = config.Load(*configFile)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}

	surfaceMap, err := surface.LoadGeoJSON(cfg.GetSurfaceMapFile())
	if err != nil {
		log.Fatalf("Failed to load surface map: %v", err)
	}

	reports, err := adsb.LoadHistoryDir(*csvDir)
	if err != nil {
		log.Fatalf("Failed to load history: %v", err)
	}
	log.Printf("Loaded %d reports from %s", len(reports), *csvDir)

	book := clearance.NewBook()
	if *instructions != "" {
		n, err := loadInstructions(*instructions, book)
		if err != nil {
			log.Fatalf("Failed to load instructions: %v", err)
		}
		log.Printf("Loaded %d instructions from %s", n, *instructions)
	}

	var store engine.EventStore
	if *dbFile != "" {
		database, err := db.NewDB(*dbFile)
		if err != nil {
			log.Fatalf("Failed to open database: %v", err)
		}
		defer database.Close()
		if err := database.MigrateUp(cfg.GetMigrationsDir()); err != nil {
			log.Fatalf("Failed to migrate database: %v", err)
		}
		store = database
	}

	estimator := track.NewEstimator(track.Config{
		Smoothing:      cfg.GetSmoothingFactor(),
		HistoryLength:  cfg.GetHistoryLength(),
		SilenceTimeout: cfg.GetSilenceTimeout(),
		MaxHorizon:     cfg.GetPredictionHorizon(),
	})
	detector := conflict.New(conflict.Config{
		Horizon:               cfg.GetPredictionHorizon(),
		Step:                  cfg.GetSamplingStep(),
		HorizontalThresholdNM: cfg.GetHorizontalSeparationNM(),
		VerticalThresholdFt:   cfg.GetVerticalSeparationFt(),
		ProximityCutoffNM:     cfg.GetProximityCutoffNM(),
		SeverityTierSeconds:   cfg.GetSeverityTierSeconds(),
		FieldElevationFt:      cfg.GetFieldElevationFt(),
		GroundMaxAGLFt:        cfg.GetGroundMaxAGLFt(),
	})
	monitor := compliance.New(compliance.Config{
		FieldElevationFt:    cfg.GetFieldElevationFt(),
		GroundMaxAGLFt:      cfg.GetGroundMaxAGLFt(),
		RolloutExitSpeedKts: cfg.GetRolloutExitSpeedKts(),
	}, surfaceMap, book)

	eng := engine.New(engine.Options{
		Estimator:  estimator,
		Detector:   detector,
		Monitor:    monitor,
		Emitter:    alert.NewEmitter(),
		Surface:    surfaceMap,
		Clearances: book,
		Store:      store,
	})

	start := time.Now()
	events := eng.Replay(context.Background(), reports)
	log.Printf("Replay finished: %d events in %s", len(events), time.Since(start).Round(time.Millisecond))

	enc := json.NewEncoder(os.Stdout)
	for _, ev := range events {
		if *jsonOut {
			if err := enc.Encode(ev); err != nil {
				log.Fatalf("Failed to encode event: %v", err)
			}
			continue
		}
		fmt.Printf("%s %s\n", ev.Time.Format(time.RFC3339), ev)
	}
}
