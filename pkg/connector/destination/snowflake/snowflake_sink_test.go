package snowflake

import (
	"context"
	stderrors "errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redcap-tools/snowbridge/pkg/errors"
	"github.com/redcap-tools/snowbridge/pkg/models"
	"github.com/redcap-tools/snowbridge/pkg/settings"
)

// fakeSession records the statement sequence a load issues.
type fakeSession struct {
	statements  []string
	execErr     map[string]error // keyed by statement prefix
	copyResults []copyResult
	copyErr     error
	closed      bool
}

func (f *fakeSession) Exec(_ context.Context, query string) error {
	f.statements = append(f.statements, query)
	for prefix, err := range f.execErr {
		if strings.HasPrefix(query, prefix) {
			return err
		}
	}
	return nil
}

func (f *fakeSession) QueryCopyResults(_ context.Context, query string) ([]copyResult, error) {
	f.statements = append(f.statements, query)
	return f.copyResults, f.copyErr
}

func (f *fakeSession) Close() error {
	f.closed = true
	return nil
}

func validResolver() *settings.Resolver {
	return settings.NewResolver(&settings.StaticProvider{Values: map[string]string{
		settings.SnowflakeAccount:   "xy12345.us-east-1",
		settings.SnowflakeUser:      "loader",
		settings.SnowflakePassword:  "hunter2",
		settings.SnowflakeWarehouse: "LOAD_WH",
		settings.SnowflakeDatabase:  "CLINICAL",
		settings.SnowflakeSchema:    "RAW",
	}})
}

func sampleTable(rows int) *models.RecordTable {
	table := models.NewRecordTable([]string{"record_id", "age"})
	for i := 0; i < rows; i++ {
		table.Append(models.Row{"record_id": "r", "age": "30"})
	}
	return table
}

// newTestSink returns a sink whose connect hands out the fake session and
// records whether a connection was attempted.
func newTestSink(r *settings.Resolver, sess *fakeSession) (*Sink, *bool) {
	connected := false
	s := New(r)
	s.connect = func(ctx context.Context, cfg Config) (session, error) {
		connected = true
		return sess, nil
	}
	return s, &connected
}

func TestLoadMissingSettingsAggregated(t *testing.T) {
	r := settings.NewResolver(&settings.StaticProvider{Values: map[string]string{
		settings.SnowflakeAccount: "acct",
		settings.SnowflakeSchema:  "RAW",
	}})
	sink, connected := newTestSink(r, &fakeSession{})

	_, err := sink.Load(context.Background(), sampleTable(1), "t")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
	assert.Equal(t, []string{
		settings.SnowflakeUser,
		settings.SnowflakePassword,
		settings.SnowflakeWarehouse,
		settings.SnowflakeDatabase,
	}, errors.MissingSettings(err))
	assert.False(t, *connected, "no connection may be attempted on missing settings")
}

func TestLoadEmptyTableNoOp(t *testing.T) {
	// Credentials deliberately absent: the empty guard runs first.
	sink, connected := newTestSink(settings.NewResolver(), &fakeSession{})

	res, err := sink.Load(context.Background(), nil, "t")
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.False(t, *connected)

	res, err = sink.Load(context.Background(), sampleTable(0), "t")
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.False(t, *connected)
}

func TestLoadStatementOrderAndUppercasing(t *testing.T) {
	sess := &fakeSession{copyResults: []copyResult{
		{File: "snowbridge_1.csv.gz", Status: "LOADED", RowsLoaded: 2},
	}}
	sink, _ := newTestSink(validResolver(), sess)

	res, err := sink.Load(context.Background(), sampleTable(2), "patients_2024")
	require.NoError(t, err)

	require.Len(t, sess.statements, 4)
	assert.True(t, strings.HasPrefix(sess.statements[0], `CREATE TABLE IF NOT EXISTS "PATIENTS_2024" (`))
	assert.Contains(t, sess.statements[0], `"record_id" VARCHAR, "age" VARCHAR`)
	assert.Equal(t, `TRUNCATE TABLE "PATIENTS_2024"`, sess.statements[1])
	assert.True(t, strings.HasPrefix(sess.statements[2], "PUT file://"))
	assert.Contains(t, sess.statements[2], `@%"PATIENTS_2024"`)
	assert.True(t, strings.HasPrefix(sess.statements[3], `COPY INTO "PATIENTS_2024" ("record_id", "age") FROM @%"PATIENTS_2024"`))

	assert.Equal(t, "PATIENTS_2024", res.Table)
	assert.Equal(t, int64(2), res.Rows)
	assert.Equal(t, 1, res.Chunks)
	assert.True(t, sess.closed, "session must be closed on success")
}

func TestLoadDefaultTableName(t *testing.T) {
	sess := &fakeSession{copyResults: []copyResult{
		{Status: "LOADED", RowsLoaded: 3},
	}}
	sink, _ := newTestSink(validResolver(), sess)

	res, err := sink.Load(context.Background(), sampleTable(3), settings.DefaultTable)
	require.NoError(t, err)
	assert.Equal(t, "REDCAP_EXPORT", res.Table)
	assert.Equal(t, int64(3), res.Rows)
}

func TestLoadRepeatTruncatesEachTime(t *testing.T) {
	sess := &fakeSession{copyResults: []copyResult{{Status: "LOADED", RowsLoaded: 2}}}
	sink, _ := newTestSink(validResolver(), sess)

	table := sampleTable(2)
	_, err := sink.Load(context.Background(), table, "t")
	require.NoError(t, err)
	_, err = sink.Load(context.Background(), table, "t")
	require.NoError(t, err)

	var truncates, copies int
	lastTruncate, firstCopy := -1, -1
	for i, stmt := range sess.statements {
		if strings.HasPrefix(stmt, "TRUNCATE") {
			truncates++
			lastTruncate = i
		}
		if strings.HasPrefix(stmt, "COPY INTO") {
			copies++
			if firstCopy == -1 {
				firstCopy = i
			}
		}
	}
	assert.Equal(t, 2, truncates, "every load truncates before writing")
	assert.Equal(t, 2, copies)
	assert.Greater(t, lastTruncate, firstCopy, "second truncate follows first copy")
}

func TestLoadLoaderReportedFailure(t *testing.T) {
	sess := &fakeSession{copyResults: []copyResult{
		{File: "chunk0.csv.gz", Status: "LOAD_FAILED", FirstError: "NULL result in a non-nullable column"},
	}}
	sink, _ := newTestSink(validResolver(), sess)

	_, err := sink.Load(context.Background(), sampleTable(1), "t")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeLoad))
	assert.Contains(t, err.Error(), "LOAD_FAILED")
	assert.Contains(t, err.Error(), "non-nullable")
	assert.True(t, sess.closed, "session must be closed on loader-reported failure")
}

func TestLoadNoCopyResults(t *testing.T) {
	sink, _ := newTestSink(validResolver(), &fakeSession{})

	_, err := sink.Load(context.Background(), sampleTable(1), "t")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeLoad))
}

func TestLoadDDLFailureClosesSession(t *testing.T) {
	sess := &fakeSession{execErr: map[string]error{
		"CREATE TABLE": stderrors.New("insufficient privileges"),
	}}
	sink, _ := newTestSink(validResolver(), sess)

	_, err := sink.Load(context.Background(), sampleTable(1), "t")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeLoad))
	assert.True(t, sess.closed)
	require.Len(t, sess.statements, 1, "no statement may follow a failed DDL")
}

func TestLoadConnectFailure(t *testing.T) {
	sink := New(validResolver())
	sink.connect = func(ctx context.Context, cfg Config) (session, error) {
		return nil, stderrors.New("250001: could not authenticate")
	}

	_, err := sink.Load(context.Background(), sampleTable(1), "t")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeLoad))
}

func TestCreateTableSQLQuotesIdentifiers(t *testing.T) {
	got := createTableSQL("T", []string{`odd"col`})
	assert.Equal(t, `CREATE TABLE IF NOT EXISTS "T" ("odd""col" VARCHAR)`, got)
}
