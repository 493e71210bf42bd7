// Package snowflake implements the destination connector.
//
// A load is one scoped SQL session: ensure the destination table exists,
// truncate it, stage the snapshot as a gzipped CSV with PUT, then COPY it
// in. Prior contents are unconditionally discarded on every load — this is
// a full-replace pipeline, not an incremental one — and there is no
// transaction spanning the steps, so a COPY failure after the truncate
// leaves the table empty, exactly like the system it feeds replaced.
package snowflake

import (
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"

	// Snowflake driver
	_ "github.com/snowflakedb/gosnowflake"

	"github.com/redcap-tools/snowbridge/pkg/errors"
	"github.com/redcap-tools/snowbridge/pkg/logger"
	"github.com/redcap-tools/snowbridge/pkg/models"
	"github.com/redcap-tools/snowbridge/pkg/settings"
)

// requiredSettings are the six settings a load cannot proceed without.
var requiredSettings = []string{
	settings.SnowflakeAccount,
	settings.SnowflakeUser,
	settings.SnowflakePassword,
	settings.SnowflakeWarehouse,
	settings.SnowflakeDatabase,
	settings.SnowflakeSchema,
}

// Config holds the resolved Snowflake connection settings.
type Config struct {
	Account   string
	User      string
	Password  string
	Warehouse string
	Database  string
	Schema    string
}

// ConfigFromSettings resolves the sink settings. When any required setting
// is empty it fails with one aggregated configuration error naming every
// missing setting, before any connection is attempted.
func ConfigFromSettings(r *settings.Resolver) (Config, error) {
	if missing := r.Missing(requiredSettings); len(missing) > 0 {
		return Config{}, errors.NewMissingSettings(missing)
	}
	return Config{
		Account:   r.Get(settings.SnowflakeAccount),
		User:      r.Get(settings.SnowflakeUser),
		Password:  r.Get(settings.SnowflakePassword),
		Warehouse: r.Get(settings.SnowflakeWarehouse),
		Database:  r.Get(settings.SnowflakeDatabase),
		Schema:    r.Get(settings.SnowflakeSchema),
	}, nil
}

// Result reports the outcome of a load.
type Result struct {
	// Table is the uppercased destination table name.
	Table string
	// Rows is the number of rows the bulk loader reports written.
	Rows int64
	// Chunks is the number of staged files copied in.
	Chunks int
	// Skipped is true when the load short-circuited on an empty table.
	Skipped bool
}

// copyResult is one row of COPY INTO output (one per staged file).
type copyResult struct {
	File       string
	Status     string
	RowsLoaded int64
	FirstError string
}

// session is the scoped SQL connection a load runs inside. It exists as an
// interface so tests can record the statement sequence without a warehouse.
type session interface {
	Exec(ctx context.Context, query string) error
	QueryCopyResults(ctx context.Context, query string) ([]copyResult, error)
	Close() error
}

// Sink loads RecordTables into Snowflake.
type Sink struct {
	settings *settings.Resolver
	logger   *zap.Logger

	// connect opens the scoped session; replaced in tests.
	connect func(ctx context.Context, cfg Config) (session, error)
	// stageDir receives the temporary stage files; defaults to os.TempDir.
	stageDir string
}

// New creates a sink over the given settings resolver. Settings are resolved
// per load, not cached, so an operator can fix a missing credential without
// restarting the process.
func New(r *settings.Resolver) *Sink {
	return &Sink{
		settings: r,
		logger:   logger.With(zap.String("component", "snowflake_sink")),
		connect:  dial,
	}
}

// Load bulk-writes the table into the named destination table, replacing its
// contents. An absent or empty table is a no-op reported via Result.Skipped.
func (s *Sink) Load(ctx context.Context, table *models.RecordTable, destName string) (Result, error) {
	if table.IsEmpty() {
		s.logger.Warn("no data to load")
		return Result{Skipped: true}, nil
	}

	cfg, err := ConfigFromSettings(s.settings)
	if err != nil {
		return Result{}, err
	}

	// Uppercase by Snowflake identifier convention.
	name := strings.ToUpper(destName)

	sess, err := s.connect(ctx, cfg)
	if err != nil {
		return Result{}, errors.Wrap(err, errors.ErrorTypeLoad, "failed to connect to Snowflake")
	}
	defer sess.Close()

	if err := sess.Exec(ctx, createTableSQL(name, table.Columns)); err != nil {
		return Result{}, errors.Wrap(err, errors.ErrorTypeLoad, "failed to create destination table")
	}

	if err := sess.Exec(ctx, "TRUNCATE TABLE "+quoteIdent(name)); err != nil {
		return Result{}, errors.Wrap(err, errors.ErrorTypeLoad, "failed to truncate destination table")
	}

	result, err := s.bulkWrite(ctx, sess, table, name)
	if err != nil {
		return Result{}, err
	}

	s.logger.Info("load completed",
		zap.String("table", name),
		zap.Int64("rows", result.Rows),
		zap.Int("chunks", result.Chunks))

	return result, nil
}

// bulkWrite stages the table as a gzipped CSV and copies it in, then checks
// the loader's own status report. A non-LOADED file status is a load error
// even when no SQL error was returned: loader-reported failure and transport
// failure are distinct channels and both must be checked.
func (s *Sink) bulkWrite(ctx context.Context, sess session, table *models.RecordTable, name string) (Result, error) {
	path, err := s.writeStageFile(table)
	if err != nil {
		return Result{}, err
	}
	defer os.Remove(path)

	putSQL := fmt.Sprintf("PUT file://%s @%%%s AUTO_COMPRESS=FALSE OVERWRITE=TRUE",
		path, quoteIdent(name))
	if err := sess.Exec(ctx, putSQL); err != nil {
		return Result{}, errors.Wrap(err, errors.ErrorTypeLoad, "failed to stage data file")
	}

	results, err := sess.QueryCopyResults(ctx, copySQL(name, table.Columns))
	if err != nil {
		return Result{}, errors.Wrap(err, errors.ErrorTypeLoad, "failed to copy staged data")
	}
	if len(results) == 0 {
		return Result{}, errors.New(errors.ErrorTypeLoad, "bulk loader reported no staged files")
	}

	out := Result{Table: name, Chunks: len(results)}
	for _, r := range results {
		if !strings.EqualFold(r.Status, "LOADED") {
			return Result{}, errors.Newf(errors.ErrorTypeLoad,
				"bulk loader reported %s for %s: %s", r.Status, r.File, r.FirstError)
		}
		out.Rows += r.RowsLoaded
	}

	return out, nil
}

// writeStageFile writes the table as a gzipped CSV (header + rows in column
// order) into a temp file and returns its path.
func (s *Sink) writeStageFile(table *models.RecordTable) (string, error) {
	f, err := os.CreateTemp(s.stageDir, fmt.Sprintf("snowbridge_%d_*.csv.gz", time.Now().Unix()))
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeLoad, "failed to create stage file")
	}

	gz := gzip.NewWriter(f)
	w := csv.NewWriter(gz)

	if err := w.Write(table.Columns); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", errors.Wrap(err, errors.ErrorTypeLoad, "failed to write stage header")
	}

	fields := make([]string, len(table.Columns))
	for _, row := range table.Rows {
		for i, col := range table.Columns {
			fields[i] = row.Value(col)
		}
		if err := w.Write(fields); err != nil {
			f.Close()
			os.Remove(f.Name())
			return "", errors.Wrap(err, errors.ErrorTypeLoad, "failed to write stage row")
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", errors.Wrap(err, errors.ErrorTypeLoad, "failed to flush stage file")
	}
	if err := gz.Close(); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", errors.Wrap(err, errors.ErrorTypeLoad, "failed to finish stage file")
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", errors.Wrap(err, errors.ErrorTypeLoad, "failed to close stage file")
	}

	return f.Name(), nil
}

// createTableSQL builds the create-if-absent DDL: one VARCHAR column per
// exported field. REDCap's CSV export is untyped, so VARCHAR loses nothing.
func createTableSQL(name string, columns []string) string {
	defs := make([]string, len(columns))
	for i, col := range columns {
		defs[i] = quoteIdent(col) + " VARCHAR"
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)",
		quoteIdent(name), strings.Join(defs, ", "))
}

// copySQL builds the COPY INTO statement reading from the table stage.
func copySQL(name string, columns []string) string {
	quoted := make([]string, len(columns))
	for i, col := range columns {
		quoted[i] = quoteIdent(col)
	}
	return fmt.Sprintf(
		"COPY INTO %s (%s) FROM @%%%s FILE_FORMAT = (TYPE = CSV SKIP_HEADER = 1 FIELD_OPTIONALLY_ENCLOSED_BY = '\"' COMPRESSION = GZIP) PURGE = TRUE",
		quoteIdent(name), strings.Join(quoted, ", "), quoteIdent(name))
}

// quoteIdent double-quotes a Snowflake identifier.
func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// dial opens a *sql.DB session against Snowflake and verifies it.
func dial(ctx context.Context, cfg Config) (session, error) {
	dsn := fmt.Sprintf("%s:%s@%s/%s/%s?warehouse=%s&ocspFailOpen=true&validateDefaultParameters=true",
		cfg.User, cfg.Password, cfg.Account, cfg.Database, cfg.Schema, cfg.Warehouse)

	db, err := sql.Open("snowflake", dsn)
	if err != nil {
		return nil, err
	}

	// One connection per load; never pooled across loads.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return &sqlSession{db: db}, nil
}

// sqlSession adapts *sql.DB to the session interface.
type sqlSession struct {
	db *sql.DB
}

func (s *sqlSession) Exec(ctx context.Context, query string) error {
	_, err := s.db.ExecContext(ctx, query)
	return err
}

// QueryCopyResults runs a COPY INTO and scans its per-file result rows by
// column name, since the driver's column set varies across statement forms.
func (s *sqlSession) QueryCopyResults(ctx context.Context, query string) ([]copyResult, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var results []copyResult
	for rows.Next() {
		vals := make([]sql.NullString, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		var r copyResult
		for i, col := range cols {
			switch strings.ToLower(col) {
			case "file":
				r.File = vals[i].String
			case "status":
				r.Status = vals[i].String
			case "rows_loaded":
				r.RowsLoaded, _ = strconv.ParseInt(vals[i].String, 10, 64)
			case "first_error":
				r.FirstError = vals[i].String
			}
		}
		results = append(results, r)
	}

	return results, rows.Err()
}

func (s *sqlSession) Close() error {
	return s.db.Close()
}
