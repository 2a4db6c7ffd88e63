package cmd

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"clinic-sync/core/config"
	"clinic-sync/core/corpus"
	"clinic-sync/core/history"
	"clinic-sync/core/loader"
	"clinic-sync/core/logger"
	"clinic-sync/core/middleware/auth"
	"clinic-sync/core/middleware/rayid"
	"clinic-sync/core/scheduler"
	"clinic-sync/core/source"
	"clinic-sync/core/storage"
	"clinic-sync/core/store"
	"clinic-sync/core/tasks"
	"clinic-sync/feature/patients"
	"clinic-sync/feature/sync"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// startCmd represents the start command
var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the synchronization server",
	Long:  `Starts the HTTP server, the background scheduler and the task registry.`,
	Run: func(cmd *cobra.Command, args []string) {
		// 1. Load Configuration
		cfg, err := config.LoadConfig(".")
		if err != nil {
			log.Fatalf("Failed to load configuration: %v", err)
		}

		// 2. Initialize Logger
		logg, err := logger.New(&cfg.Log)
		if err != nil {
			log.Fatalf("Failed to initialize logger: %v", err)
		}
		defer logg.Sync()
		zap.ReplaceGlobals(logg)

		// 3. Run History Database (Optional)
		var recorder *history.Recorder
		if cfg.History.Enabled {
			if db, err := history.Connect(cfg.History); err != nil {
				logg.Warn("Run history database unavailable, runs will not be recorded", zap.Error(err))
			} else if rec, err := history.NewRecorder(db, logg); err != nil {
				logg.Warn("Run history migration failed, runs will not be recorded", zap.Error(err))
			} else {
				recorder = rec
				logg.Info("Run history database connected")
			}
		}

		// 4. Remote Clients
		sourceClient := source.NewClient(cfg.Source)
		storeClient := store.NewClient(cfg.Store)

		archive, err := buildArchive(cfg, logg)
		if err != nil {
			logg.Fatal("Failed to open insurance file archive", zap.Error(err))
		}

		// 5. Task Registry
		var taskRecorder tasks.Recorder
		if recorder != nil {
			taskRecorder = recorder
		}
		registry := tasks.NewRegistry(cfg.Server.TaskRetention(), taskRecorder, logg)

		// 6. Reconciliation Service
		reconciler := sync.NewReconciler(sourceClient, storeClient, archive, logg)
		service := sync.NewService(reconciler, registry, sourceClient, cfg.Server.DefaultAppointmentType, logg)

		// 7. Scheduler
		sched := scheduler.New(cfg.Scheduler, service.RunScheduled, scheduler.SystemClock{}, logg)
		sched.Start()

		// 8. Initialize Fiber App
		app := fiber.New(fiber.Config{
			DisableStartupMessage: true, // We will log our own startup message
		})

		// Middleware Registration
		// 1. RayID (Must be first to trace everything)
		app.Use(rayid.New())

		// 2. Logging Middleware (Custom to use Zap + RayID)
		app.Use(func(c *fiber.Ctx) error {
			l := logger.WithRayID(logg, c)
			l.Info("Request started",
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.String("ip", c.IP()),
			)
			err := c.Next()
			// Log error if happened
			if err != nil {
				l.Error("Request error", zap.Error(err))
			}
			return err
		})

		// Health endpoint stays public so probes need no key.
		app.Get("/health", func(c *fiber.Ctx) error {
			return c.JSON(fiber.Map{"status": "ok"})
		})

		// 3. Auth (Protect API)
		api := app.Group("/api")
		api.Use(auth.New(auth.Config{ApiKey: cfg.Server.ApiKey}))

		// 4. Load Features
		mgr := loader.NewManager()
		mgr.Register(sync.NewFeature(service, registry, sched, recorder, logg))
		if err := mgr.LoadAll(api); err != nil {
			logg.Fatal("Failed to load features", zap.Error(err))
		}

		// 5. Start Server
		go func() {
			logg.Info("Starting server", zap.String("addr", cfg.Server.Addr()))
			if err := app.Listen(cfg.Server.Addr()); err != nil {
				logg.Fatal("Server failed to start", zap.Error(err))
			}
		}()

		// 6. Graceful Shutdown
		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt, syscall.SIGTERM)
		<-c
		logg.Info("Shutting down server...")
		sched.Stop()
		_ = app.Shutdown()
	},
}

// buildArchive opens the insurance file corpus from the configured backend.
func buildArchive(cfg *config.Config, logg *zap.Logger) (patients.Archive, error) {
	switch cfg.Corpus.Backend {
	case "dir":
		if cfg.Corpus.Dir == "" {
			return nil, fmt.Errorf("corpus.dir must be set for the dir backend")
		}
		src := corpus.NewDirSource(cfg.Corpus.Dir, cfg.Corpus.Suffix)
		return corpus.NewScanner(src, logg), nil
	case "bucket":
		client, err := storage.NewClient(cfg.Storage)
		if err != nil {
			return nil, err
		}
		src := corpus.NewBucketSource(client, cfg.Storage.Bucket, cfg.Corpus.Suffix)
		return corpus.NewScanner(src, logg), nil
	default:
		return nil, fmt.Errorf("unknown corpus backend %q", cfg.Corpus.Backend)
	}
}

func init() {
	RootCmd.AddCommand(startCmd)
}
