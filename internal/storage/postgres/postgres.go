// internal/storage/postgres/postgres.go
package postgres

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/didier3529/casino-sol-sub000/internal/storage"
	"github.com/didier3529/casino-sol-sub000/internal/storage/models"
	"github.com/didier3529/casino-sol-sub000/internal/types"
)

// gormLogger bridges GORM logging onto zap.
type gormLogger struct {
	zapLogger *zap.Logger
	logLevel  logger.LogLevel
}

func newGormLogger(zapLogger *zap.Logger) logger.Interface {
	return &gormLogger{
		zapLogger: zapLogger,
		logLevel:  logger.Warn,
	}
}

func (l *gormLogger) LogMode(level logger.LogLevel) logger.Interface {
	newLogger := *l
	newLogger.logLevel = level
	return &newLogger
}

func (l *gormLogger) Info(_ context.Context, msg string, data ...interface{}) {
	if l.logLevel >= logger.Info {
		l.zapLogger.Sugar().Infof(msg, data...)
	}
}

func (l *gormLogger) Warn(_ context.Context, msg string, data ...interface{}) {
	if l.logLevel >= logger.Warn {
		l.zapLogger.Sugar().Warnf(msg, data...)
	}
}

func (l *gormLogger) Error(_ context.Context, msg string, data ...interface{}) {
	if l.logLevel >= logger.Error {
		l.zapLogger.Sugar().Errorf(msg, data...)
	}
}

func (l *gormLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.logLevel <= logger.Silent {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()

	fields := []zap.Field{
		zap.Duration("elapsed", elapsed),
		zap.String("sql", sql),
		zap.Int64("rows", rows),
	}

	if err != nil && err != gorm.ErrRecordNotFound {
		l.zapLogger.Error("trace", append(fields, zap.Error(err))...)
		return
	}

	if l.logLevel >= logger.Info {
		l.zapLogger.Info("trace", fields...)
	}
}

type postgresStorage struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewStorage(dsn string, zapLogger *zap.Logger) (storage.Storage, error) {
	gormLogger := newGormLogger(zapLogger.Named("gorm"))

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormLogger,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
		DisableForeignKeyConstraintWhenMigrating: true,
		SkipDefaultTransaction:                   true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return &postgresStorage{
		db:     db,
		logger: zapLogger,
	}, nil
}

func (p *postgresStorage) RunMigrations(ctx context.Context) error {
	// Advisory lock so concurrent replicas don't race AutoMigrate.
	var lockObtained bool
	err := p.db.WithContext(ctx).Raw("SELECT pg_try_advisory_lock(4217)").Scan(&lockObtained).Error
	if err != nil {
		return fmt.Errorf("failed to acquire migration lock: %w", err)
	}
	if !lockObtained {
		return fmt.Errorf("another migration is in progress")
	}
	defer p.db.Exec("SELECT pg_advisory_unlock(4217)")

	err = p.db.WithContext(ctx).AutoMigrate(
		&models.BuybackConfig{},
		&models.BuybackEvent{},
	)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

func (p *postgresStorage) Ping(ctx context.Context) error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (p *postgresStorage) EnsureBuybackConfig(ctx context.Context) (*models.BuybackConfig, error) {
	var cfg models.BuybackConfig
	err := p.db.WithContext(ctx).Order("id asc").First(&cfg).Error
	if err == nil {
		return &cfg, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, err
	}

	seed := models.DefaultBuybackConfig()
	if err := p.db.WithContext(ctx).Create(seed).Error; err != nil {
		return nil, fmt.Errorf("failed to seed buyback config: %w", err)
	}
	p.logger.Info("Seeded default buyback config", zap.Uint("id", seed.ID))
	return seed, nil
}

func (p *postgresStorage) GetBuybackConfig(ctx context.Context) (*models.BuybackConfig, error) {
	var cfg models.BuybackConfig
	err := p.db.WithContext(ctx).Order("id asc").First(&cfg).Error
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (p *postgresStorage) UpdateBuybackConfig(ctx context.Context, updates map[string]interface{}) (*models.BuybackConfig, error) {
	cfg, err := p.GetBuybackConfig(ctx)
	if err != nil {
		return nil, err
	}
	updates["updated_at"] = time.Now().UTC()
	err = p.db.WithContext(ctx).Model(&models.BuybackConfig{}).
		Where("id = ?", cfg.ID).
		Updates(updates).Error
	if err != nil {
		return nil, err
	}
	return p.GetBuybackConfig(ctx)
}

func (p *postgresStorage) TouchLastRun(ctx context.Context, at time.Time) error {
	cfg, err := p.GetBuybackConfig(ctx)
	if err != nil {
		return err
	}
	return p.db.WithContext(ctx).Model(&models.BuybackConfig{}).
		Where("id = ?", cfg.ID).
		Updates(map[string]interface{}{
			"last_run_at": at.UTC(),
			"updated_at":  time.Now().UTC(),
		}).Error
}

func (p *postgresStorage) SaveBuybackEvent(ctx context.Context, event *models.BuybackEvent) error {
	return p.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "transaction_signature"}},
			DoNothing: true,
		}).
		Create(event).Error
}

func (p *postgresStorage) ListBuybackEvents(ctx context.Context, limit, offset int) ([]*models.BuybackEvent, error) {
	var events []*models.BuybackEvent
	err := p.db.WithContext(ctx).
		Order("created_at desc").
		Limit(limit).
		Offset(offset).
		Find(&events).Error
	return events, err
}

func (p *postgresStorage) GetBuybackStats(ctx context.Context) (*storage.Stats, error) {
	var stats storage.Stats

	err := p.db.WithContext(ctx).Model(&models.BuybackEvent{}).
		Count(&stats.TotalEvents).Error
	if err != nil {
		return nil, err
	}

	err = p.db.WithContext(ctx).Model(&models.BuybackEvent{}).
		Where("success = ?", true).
		Count(&stats.SuccessfulEvents).Error
	if err != nil {
		return nil, err
	}
	stats.FailedEvents = stats.TotalEvents - stats.SuccessfulEvents

	// Money aggregates exclude dry runs: nothing actually moved.
	type aggregates struct {
		SpentSum  uint64
		BoughtSum uint64
		BurnedSum uint64
	}
	var agg aggregates
	err = p.db.WithContext(ctx).Model(&models.BuybackEvent{}).
		Select("COALESCE(SUM(spent_lamports), 0) AS spent_sum, COALESCE(SUM(tokens_bought), 0) AS bought_sum, COALESCE(SUM(tokens_burned), 0) AS burned_sum").
		Where("success = ? AND dry_run = ?", true, false).
		Scan(&agg).Error
	if err != nil {
		return nil, err
	}

	stats.TotalSpentSOL = types.LamportsToSOL(agg.SpentSum)
	stats.TotalTokensBought = agg.BoughtSum
	stats.TotalTokensBurned = agg.BurnedSum

	var last models.BuybackEvent
	err = p.db.WithContext(ctx).
		Where("success = ? AND dry_run = ?", true, false).
		Order("created_at desc").
		First(&last).Error
	if err == nil {
		t := last.CreatedAt
		stats.LastSuccessAt = &t
	} else if err != gorm.ErrRecordNotFound {
		return nil, err
	}

	return &stats, nil
}

func (p *postgresStorage) CountFailedEventsSince(ctx context.Context, since time.Time) (int64, error) {
	var count int64
	err := p.db.WithContext(ctx).Model(&models.BuybackEvent{}).
		Where("success = ? AND created_at >= ?", false, since).
		Count(&count).Error
	return count, err
}

func (p *postgresStorage) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
