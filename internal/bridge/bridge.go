// Package bridge orchestrates the two pipeline actions: fetch the full
// REDCap export, and load the held snapshot into Snowflake. Each action is
// one error boundary — a failure is reported as a single typed error and
// never tears anything else down. The bridge owns metrics and logging for
// both actions so the web UI and the headless CLI report identically.
package bridge

import (
	"context"

	"go.uber.org/zap"

	"github.com/redcap-tools/snowbridge/pkg/connector/destination/snowflake"
	"github.com/redcap-tools/snowbridge/pkg/connector/source/redcap"
	"github.com/redcap-tools/snowbridge/pkg/logger"
	"github.com/redcap-tools/snowbridge/pkg/metrics"
	"github.com/redcap-tools/snowbridge/pkg/models"
	"github.com/redcap-tools/snowbridge/pkg/settings"
)

// recordSource fetches the full project export.
type recordSource interface {
	FetchRecords(ctx context.Context) (*models.RecordTable, error)
}

// recordSink bulk-writes a snapshot into a destination table.
type recordSink interface {
	Load(ctx context.Context, table *models.RecordTable, destName string) (snowflake.Result, error)
}

// Bridge wires the source connector to the sink connector over a shared
// settings resolver.
type Bridge struct {
	settings *settings.Resolver
	logger   *zap.Logger

	// newSource builds the source per fetch so a fixed token or URL takes
	// effect without a restart; replaced in tests.
	newSource func(cfg redcap.Config) (recordSource, error)
	sink      recordSink
}

// New creates a bridge over the given settings resolver.
func New(r *settings.Resolver) *Bridge {
	return &Bridge{
		settings: r,
		logger:   logger.With(zap.String("component", "bridge")),
		newSource: func(cfg redcap.Config) (recordSource, error) {
			return redcap.New(cfg)
		},
		sink: snowflake.New(r),
	}
}

// DefaultTableName returns the configured destination table name, falling
// back to the built-in default when unset.
func (b *Bridge) DefaultTableName() string {
	return b.settings.GetDefault(settings.SnowflakeTable, settings.DefaultTable)
}

// Fetch exports the full project from REDCap. Configuration problems and
// fetch failures both surface as the action's single error.
func (b *Bridge) Fetch(ctx context.Context) (*models.RecordTable, error) {
	src, err := b.newSource(redcap.ConfigFromSettings(b.settings))
	if err != nil {
		metrics.FetchesTotal.WithLabelValues(metrics.OutcomeFailure).Inc()
		return nil, err
	}

	timer := metrics.NewTimer(metrics.FetchDuration)
	table, err := src.FetchRecords(ctx)
	elapsed := timer.Stop()

	if err != nil {
		metrics.FetchesTotal.WithLabelValues(metrics.OutcomeFailure).Inc()
		b.logger.Error("fetch failed", zap.Error(err))
		return nil, err
	}

	metrics.FetchesTotal.WithLabelValues(metrics.OutcomeSuccess).Inc()
	b.logger.Info("fetch completed",
		zap.Int("rows", table.Len()),
		zap.Duration("elapsed", elapsed))

	return table, nil
}

// Load bulk-writes the snapshot into the named destination table. A nil or
// empty snapshot is a skipped no-op, never an error; the caller decides how
// to phrase that to the user.
func (b *Bridge) Load(ctx context.Context, table *models.RecordTable, destName string) (snowflake.Result, error) {
	timer := metrics.NewTimer(metrics.LoadDuration)
	result, err := b.sink.Load(ctx, table, destName)
	elapsed := timer.Stop()

	if err != nil {
		metrics.LoadsTotal.WithLabelValues(metrics.OutcomeFailure).Inc()
		b.logger.Error("load failed", zap.String("table", destName), zap.Error(err))
		return snowflake.Result{}, err
	}

	if result.Skipped {
		metrics.LoadsTotal.WithLabelValues(metrics.OutcomeSkipped).Inc()
		return result, nil
	}

	metrics.LoadsTotal.WithLabelValues(metrics.OutcomeSuccess).Inc()
	metrics.RowsLoaded.Add(float64(result.Rows))
	b.logger.Info("load completed",
		zap.String("table", result.Table),
		zap.Int64("rows", result.Rows),
		zap.Duration("elapsed", elapsed))

	return result, nil
}

// Run performs one headless fetch-then-load cycle. The destination table
// name follows the same default as the UI when tableName is empty.
func (b *Bridge) Run(ctx context.Context, tableName string) error {
	if tableName == "" {
		tableName = b.DefaultTableName()
	}

	table, err := b.Fetch(ctx)
	if err != nil {
		return err
	}

	result, err := b.Load(ctx, table, tableName)
	if err != nil {
		return err
	}
	if result.Skipped {
		b.logger.Warn("nothing to load, export was empty")
	}

	return nil
}
