package cmd

import (
	"context"
	"fmt"
	"time"

	"clinic-sync/core/config"
	"clinic-sync/core/logger"
	"clinic-sync/core/source"
	"clinic-sync/core/store"
	"clinic-sync/feature/sync"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	// Flags for the sync command
	syncPatientCode string
	syncTypeID      int
)

// syncCmd runs one reconciliation pass from the command line and exits.
var syncCmd = &cobra.Command{
	Use:   "sync <date>",
	Short: "Run one reconciliation pass for a day",
	Long: `Reconcile the examination database with the appointment system for a
single day, then exit. The date is given as YYYY-MM-DD.

Examples:
  # Reconcile one whole day
  clinic-sync sync 2026-09-03

  # Reconcile a single patient only (never deletes anything)
  clinic-sync sync 2026-09-03 --patient 0001234`,
	Args: cobra.ExactArgs(1),
	RunE: runSync,
}

func init() {
	syncCmd.Flags().StringVar(&syncPatientCode, "patient", "", "Limit the run to one patient code (safe mode)")
	syncCmd.Flags().IntVar(&syncTypeID, "type", 0, "Appointment type to reconcile (default from config)")

	RootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	day, err := time.Parse("2006-01-02", args[0])
	if err != nil {
		return fmt.Errorf("date must be YYYY-MM-DD: %w", err)
	}

	cfg, err := config.LoadConfig(".")
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logg, err := logger.New(&logger.Config{Level: cfg.Log.Level, Format: "console"})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logg.Sync()

	archive, err := buildArchive(cfg, logg)
	if err != nil {
		return fmt.Errorf("failed to open insurance file archive: %w", err)
	}

	typeID := syncTypeID
	if typeID == 0 {
		typeID = cfg.Server.DefaultAppointmentType
	}
	scope := sync.Scope{PatientCode: syncPatientCode}

	reconciler := sync.NewReconciler(source.NewClient(cfg.Source), store.NewClient(cfg.Store), archive, logg)
	result, err := reconciler.Run(context.Background(), day, typeID, scope)
	if err != nil {
		return err
	}

	logg.Info("Reconciliation finished",
		zap.String("date", result.Date),
		zap.Int("considered", result.Considered),
		zap.Int("inserted", result.Inserted),
		zap.Int("updated", result.Updated),
		zap.Int("existing", result.Existing),
		zap.Int("deleted", result.Deleted),
		zap.Int("unmapped", result.Unmapped),
		zap.Int("unresolved", result.Unresolved),
		zap.Int("failed", result.Failed),
	)
	return nil
}
