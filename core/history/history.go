package history

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"clinic-sync/core/tasks"
)

// Run is one finished synchronization run.
type Run struct {
	ID          uint      `gorm:"primaryKey" json:"-"`
	TaskID      string    `gorm:"size:128;index" json:"task_id"`
	Date        string    `gorm:"size:10;index" json:"date"`
	TypeID      int       `json:"appointment_type_id"`
	PatientCode string    `gorm:"size:16" json:"patient_code,omitempty"`
	Status      string    `gorm:"size:16" json:"status"`
	Error       string    `gorm:"type:text" json:"error,omitempty"`
	Result      string    `gorm:"type:text" json:"result,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
}

// Connect establishes the run-history database connection. The connection is
// optional; callers log the error and continue without a recorder.
func Connect(cfg Config) (*gorm.DB, error) {
	userInfo := url.UserPassword(cfg.User, cfg.Password).String()

	timeout := cfg.TimeoutSeconds
	if timeout <= 0 {
		timeout = 30
	}

	dsn := fmt.Sprintf("%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local&timeout=%ds&readTimeout=%ds&writeTimeout=%ds",
		userInfo, cfg.Host, cfg.Port, cfg.Name, timeout, timeout, timeout)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeout)*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// Recorder writes finished runs to the ledger. Implements tasks.Recorder.
type Recorder struct {
	db  *gorm.DB
	log *zap.Logger
}

// NewRecorder prepares the ledger table and returns a recorder.
func NewRecorder(db *gorm.DB, log *zap.Logger) (*Recorder, error) {
	if err := db.AutoMigrate(&Run{}); err != nil {
		return nil, fmt.Errorf("failed to migrate run history: %w", err)
	}
	return &Recorder{db: db, log: log}, nil
}

// RecordFinished persists one finished task. Failures are logged and
// swallowed; the ledger never breaks a sync run.
func (r *Recorder) RecordFinished(t tasks.Task) {
	run := Run{
		TaskID:      t.ID,
		Date:        t.Date,
		TypeID:      t.TypeID,
		PatientCode: t.PatientCode,
		Status:      string(t.Status),
		Error:       t.Error,
		StartedAt:   t.StartedAt,
		FinishedAt:  t.FinishedAt,
	}
	if t.Result != nil {
		raw, err := json.Marshal(t.Result)
		if err != nil {
			r.log.Warn("run result not serializable", zap.String("task_id", t.ID), zap.Error(err))
		} else {
			run.Result = string(raw)
		}
	}

	if err := r.db.Create(&run).Error; err != nil {
		r.log.Warn("failed to record run history", zap.String("task_id", t.ID), zap.Error(err))
	}
}

// Recent returns the most recently finished runs, newest first.
func (r *Recorder) Recent(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	var runs []Run
	err := r.db.Order("finished_at DESC").Limit(limit).Find(&runs).Error
	return runs, err
}
