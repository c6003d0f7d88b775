package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/airfield-data/surfacewatch/internal/adsb"
	"github.com/airfield-data/surfacewatch/internal/alert"
	"github.com/airfield-data/surfacewatch/internal/api"
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
	devMode    = flag.Bool("dev", false, "Run in dev mode with a mock feed")
	listen     = flag.String("listen", ":8080", "Listen address")
	configFile = flag.String("config", "", "Tuning config JSON file (optional)")
	feedAddr   = flag.String("feed", "localhost:30003", "SBS feed: tcp host:port or serial device path")
	mockFile   = flag.String("mock-feed", "fixtures/sbs.txt", "SBS lines replayed by the dev mode mock feed")
)

// feedMuxer is the subset of the feed mux main needs, so serial, TCP and
// mock feeds interchange freely.
type feedMuxer interface {
	Subscribe() (string, chan string)
	Unsubscribe(string)
	Monitor(context.Context) error
	Close() error
}

func openFeed() (feedMuxer, error) {
	if *devMode {
		data, err := os.ReadFile(*mockFile)
		if err != nil {
			return nil, err
		}
		lines := strings.Split(strings.TrimSpace(string(data)), "\n")
		return adsb.NewMockFeedMux(lines, 500*time.Millisecond), nil
	}
	if strings.Contains(*feedAddr, ":") {
		return adsb.NewTCPFeedMux(*feedAddr)
	}
	return adsb.NewSerialFeedMux(*feedAddr)
}

func main() {
	flag.Parse()

	if *listen == "" {
		log.Fatal("Listen address is required")
	}

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

	database, err := db.NewDB(cfg.GetDatabaseFile())
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer database.Close()
	if err := database.MigrateUp(cfg.GetMigrationsDir()); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	feed, err := openFeed()
	if err != nil {
		log.Fatalf("Failed to open feed: %v", err)
	}
	defer feed.Close()

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
	book := clearance.NewBook()
	monitor := compliance.New(compliance.Config{
		FieldElevationFt:    cfg.GetFieldElevationFt(),
		GroundMaxAGLFt:      cfg.GetGroundMaxAGLFt(),
		RolloutExitSpeedKts: cfg.GetRolloutExitSpeedKts(),
	}, surfaceMap, book)
	emitter := alert.NewEmitter()

	eng := engine.New(engine.Options{
		Estimator:    estimator,
		Detector:     detector,
		Monitor:      monitor,
		Emitter:      emitter,
		Surface:      surfaceMap,
		Clearances:   book,
		Store:        database,
		TickInterval: time.Second,
	})

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// feed reader routine
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := feed.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("feed monitor failed: %v", err)
		}
		log.Print("feed monitor routine terminated")
	}()

	// decode routine: SBS lines to position reports into the engine
	wg.Add(1)
	go func() {
		defer wg.Done()
		id, lines := feed.Subscribe()
		defer feed.Unsubscribe(id)
		decoder := adsb.NewDecoder()
		for {
			select {
			case line, ok := <-lines:
				if !ok {
					return
				}
				report, err := decoder.Decode(line)
				if err != nil {
					if !errors.Is(err, adsb.ErrSkippedMessage) {
						log.Printf("dropping feed line: %v", err)
					}
					continue
				}
				eng.Submit(report)
			case <-ctx.Done():
				log.Print("decode routine terminated")
				return
			}
		}
	}()

	// evaluation tick loop
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := eng.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("engine stopped: %v", err)
		}
		log.Print("engine routine terminated")
	}()

	// alert log routine: every emitted event also lands in the service log
	wg.Add(1)
	go func() {
		defer wg.Done()
		events, cancel := emitter.Subscribe()
		defer cancel()
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return
				}
				log.Printf("alert %s", ev)
			case <-ctx.Done():
				return
			}
		}
	}()

	// HTTP server routine
	wg.Add(1)
	go func() {
		defer wg.Done()

		apiServer := api.NewServer(eng, estimator, emitter, database)
		mux := http.NewServeMux()
		mux.Handle("/", api.LoggingMiddleware(apiServer.ServeMux()))

		server := &http.Server{
			Addr:    *listen,
			Handler: mux,
		}

		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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
	log.Printf("Graceful shutdown complete")
}
