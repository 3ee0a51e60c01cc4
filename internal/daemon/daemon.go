package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"

	"skyroute/internal/api"
	"skyroute/internal/config"
	"skyroute/internal/conflict"
	"skyroute/internal/database"
	"skyroute/internal/dump1090"
	"skyroute/internal/geo"
	"skyroute/internal/metrics"
	"skyroute/internal/models"
	"skyroute/internal/route"
	"skyroute/internal/scheduler"
	"skyroute/internal/tasks"
	"skyroute/internal/telemetry"

	"golang.org/x/sync/errgroup"
)

// registryBatchSize is the number of registry rows written per transaction on first load
const registryBatchSize = 5000

// Daemon owns every long-running component and their shared resources
type Daemon struct {
	cfg       *config.Config
	database  database.Repository
	detector  *conflict.Detector
	monitor   *tasks.ConflictMonitor
	hub       *api.Hub
	server    *api.Server
	sink      metrics.Sink
	tracker   *telemetry.Tracker
	sbsClient *dump1090.SBSClient
}

// New builds the daemon from configuration. Nothing runs until Run is called.
func New(cfg *config.Config) (*Daemon, error) {
	db, err := database.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	d := &Daemon{cfg: cfg, database: db}
	if err := d.build(); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

func (d *Daemon) build() error {
	cfg := d.cfg
	registry := d.database.RegistryRepository()

	if err := loadRegistry(registry, cfg.RegistryCSV); err != nil {
		return err
	}
	classifier := telemetry.NewClassifier(registry, nil)

	var source conflict.Source
	switch cfg.Telemetry.Source {
	case config.SourceOpenSky:
		source = telemetry.NewOpenSky(telemetry.OpenSkyConfig{
			BaseURL:      cfg.Telemetry.OpenSky.BaseURL,
			TokenURL:     cfg.Telemetry.OpenSky.TokenURL,
			ClientID:     cfg.Telemetry.OpenSky.ClientID,
			ClientSecret: cfg.Telemetry.OpenSky.ClientSecret,
			BBox: telemetry.BoundingBox{
				MinLat: cfg.Telemetry.OpenSky.BBox.MinLat,
				MinLon: cfg.Telemetry.OpenSky.BBox.MinLon,
				MaxLat: cfg.Telemetry.OpenSky.BBox.MaxLat,
				MaxLon: cfg.Telemetry.OpenSky.BBox.MaxLon,
			},
			Timeout: cfg.Telemetry.Timeout,
		}, classifier)
	case config.SourceSBS:
		d.tracker = telemetry.NewTracker(cfg.Telemetry.SBS.StaleAfter, classifier)
		d.sbsClient = dump1090.NewSBSClient(cfg.Telemetry.SBS.Addr)
		source = d.tracker
	}

	opts := []conflict.Option{}
	if source != nil {
		opts = append(opts, conflict.WithSource(source))
	}
	if cfg.Simulation.Seed != 0 {
		opts = append(opts, conflict.WithRand(rand.New(rand.NewSource(cfg.Simulation.Seed))))
	}
	d.detector = conflict.New(detectionThresholds(cfg.Detection), zones(cfg.Zones), fleet(cfg.Fleet, classifier), opts...)

	d.sink = metrics.NopSink{}
	if cfg.Influx.Enabled {
		sink, err := metrics.NewInfluxSink(metrics.InfluxConfig{
			URL:    cfg.Influx.URL,
			Token:  cfg.Influx.Token,
			Org:    cfg.Influx.Org,
			Bucket: cfg.Influx.Bucket,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize metrics sink: %w", err)
		}
		d.sink = sink
	}

	d.hub = api.NewHub()
	d.monitor = tasks.NewConflictMonitor(tasks.MonitorConfig{
		Detector:  d.detector,
		Alerts:    d.database.AlertRepository(),
		Conflicts: d.database.ConflictRepository(),
		Publisher: d.hub,
		Sink:      d.sink,
		Interval:  cfg.PollInterval,
		Timeout:   cfg.Telemetry.Timeout,
	})

	server, err := api.New(api.Config{
		Addr:           cfg.HTTPAddr,
		RouteCacheSize: cfg.Cache.RouteSize,
		Critical: route.CriticalThresholds{
			DistanceKm:      cfg.Route.CriticalDistanceKm,
			ConstraintCount: cfg.Route.CriticalConstraintCount,
		},
	}, api.Deps{
		Optimizer: route.New(route.Options{
			MaxPasses:      cfg.Route.MaxPasses,
			PinDestination: cfg.Route.PinDestination,
		}),
		Flights: d.monitor,
		Traffic: d.detector,
		Alerts:  d.database.AlertRepository(),
		Hub:     d.hub,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize http server: %w", err)
	}
	d.server = server

	return nil
}

// Run starts all components and blocks until ctx is cancelled or one of them fails
func (d *Daemon) Run(ctx context.Context) error {
	slog.Info("Starting daemon",
		"telemetry", d.cfg.Telemetry.Source,
		"zones", len(d.cfg.Zones),
		"fleet", len(d.cfg.Fleet),
		"poll_interval", d.cfg.PollInterval,
	)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		d.hub.Run(ctx)
		return nil
	})

	g.Go(func() error {
		return d.server.ListenAndServe(ctx)
	})

	g.Go(func() error {
		sched := scheduler.New(ctx)
		sched.AddTask(d.monitor)
		sched.Start()
		<-ctx.Done()
		sched.Stop()
		return nil
	})

	if d.sbsClient != nil {
		messageChan := make(chan *models.SBSMessage, 1000)
		collector := tasks.NewPositionCollectorWithConfig(
			d.database.PositionRepository(),
			d.tracker,
			messageChan,
			d.cfg.BatchSize,
			d.cfg.BatchTimeout,
		)

		g.Go(func() error {
			defer close(messageChan)
			slog.Info("Starting SBS message streamer", "addr", d.cfg.Telemetry.SBS.Addr)
			if err := d.sbsClient.StreamMessages(ctx, messageChan); err != nil && ctx.Err() == nil {
				return fmt.Errorf("sbs streamer stopped: %w", err)
			}
			return nil
		})

		g.Go(func() error {
			if err := collector.Start(ctx); err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		})
	}

	slog.Info("Daemon started successfully")
	err := g.Wait()
	slog.Info("Daemon stopped")
	return err
}

// Close releases the database, metrics sink and feed connection
func (d *Daemon) Close() error {
	if d.sbsClient != nil {
		if err := d.sbsClient.Close(); err != nil {
			slog.Error("Error closing SBS client", "error", err)
		}
	}
	if d.sink != nil {
		if err := d.sink.Close(); err != nil {
			slog.Error("Error closing metrics sink", "error", err)
		}
	}
	if err := d.database.Close(); err != nil {
		slog.Error("Error closing database", "error", err)
		return err
	}
	return nil
}

// loadRegistry fills the aircraft registry from CSV the first time the daemon runs
func loadRegistry(repo database.RegistryRepository, csvPaths []string) error {
	if len(csvPaths) == 0 {
		return nil
	}

	populated, err := repo.IsTablePopulated()
	if err != nil {
		return fmt.Errorf("failed to check aircraft registry: %w", err)
	}
	if populated {
		slog.Info("Aircraft registry is already populated")
		return nil
	}

	slog.Info("Aircraft registry is empty, loading from CSV files", "csv_paths", csvPaths)
	if err := repo.LoadFromMultipleCSV(csvPaths, registryBatchSize); err != nil {
		return fmt.Errorf("failed to load aircraft registry: %w", err)
	}
	slog.Info("Successfully loaded aircraft registry")
	return nil
}

func detectionThresholds(c config.DetectionConfig) conflict.Thresholds {
	return conflict.Thresholds{
		ProximityKm:          c.ProximityKm,
		CriticalProximityKm:  c.CriticalProximityKm,
		ZoneCriticalRatio:    c.ZoneCriticalRatio,
		MaxPositionJitterDeg: c.MaxPositionJitterDeg,
		MaxAltitudeJitterFt:  c.MaxAltitudeJitterFt,
	}
}

func zones(cfgs []config.ZoneConfig) []models.RestrictedZone {
	out := make([]models.RestrictedZone, 0, len(cfgs))
	for _, z := range cfgs {
		out = append(out, models.RestrictedZone{
			Name:     z.Name,
			Center:   geo.NewPoint(z.Lat, z.Lon),
			RadiusKm: z.RadiusKm,
		})
	}
	return out
}

// fleet builds the initial simulated aircraft; entries without a category are classified
// from their id and callsign
func fleet(cfgs []config.AircraftConfig, classifier *telemetry.Classifier) []models.Aircraft {
	out := make([]models.Aircraft, 0, len(cfgs))
	for _, a := range cfgs {
		category := models.Category(strings.ToLower(a.Category))
		if category == "" {
			category = classifier.Classify(a.ID, a.Callsign)
		}
		out = append(out, models.Aircraft{
			ID:         a.ID,
			Callsign:   a.Callsign,
			Lat:        a.Lat,
			Lon:        a.Lon,
			AltitudeFt: a.AltitudeFt,
			Category:   category,
		})
	}
	return out
}
