package web

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redcap-tools/snowbridge/pkg/connector/destination/snowflake"
	"github.com/redcap-tools/snowbridge/pkg/errors"
	"github.com/redcap-tools/snowbridge/pkg/models"
)

type fakePipeline struct {
	fetchTable *models.RecordTable
	fetchErr   error
	loadResult snowflake.Result
	loadErr    error
	loadedWith *models.RecordTable
	loadedName string
}

func (f *fakePipeline) Fetch(_ context.Context) (*models.RecordTable, error) {
	return f.fetchTable, f.fetchErr
}

func (f *fakePipeline) Load(_ context.Context, table *models.RecordTable, destName string) (snowflake.Result, error) {
	f.loadedWith = table
	f.loadedName = destName
	return f.loadResult, f.loadErr
}

func (f *fakePipeline) DefaultTableName() string { return "REDCAP_EXPORT" }

func tableWithRows(n int) *models.RecordTable {
	t := models.NewRecordTable([]string{"record_id", "age"})
	for i := 0; i < n; i++ {
		t.Append(models.Row{"record_id": "x", "age": "40"})
	}
	return t
}

// client wraps a server with a persistent sid cookie, like a browser tab.
type client struct {
	t   *testing.T
	srv *Server
	sid *http.Cookie
}

func newClient(t *testing.T, p pipeline) *client {
	return &client{t: t, srv: NewServer(p)}
}

func (c *client) do(method, path string, form url.Values) *httptest.ResponseRecorder {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	r := httptest.NewRequest(method, path, body)
	if form != nil {
		r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if c.sid != nil {
		r.AddCookie(c.sid)
	}

	w := httptest.NewRecorder()
	c.srv.ServeHTTP(w, r)

	for _, cookie := range w.Result().Cookies() {
		if cookie.Name == "sid" {
			c.sid = cookie
		}
	}
	return w
}

func (c *client) page() string {
	w := c.do(http.MethodGet, "/", nil)
	require.Equal(c.t, http.StatusOK, w.Code)
	return w.Body.String()
}

func TestIndexEmptyState(t *testing.T) {
	c := newClient(t, &fakePipeline{})
	body := c.page()
	assert.Contains(t, body, "No data fetched yet.")
	assert.NotContains(t, body, "Load to Snowflake", "load is only offered once data is held")
}

func TestFetchThenPreview(t *testing.T) {
	c := newClient(t, &fakePipeline{fetchTable: tableWithRows(3)})

	w := c.do(http.MethodPost, "/fetch", url.Values{})
	require.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/", w.Header().Get("Location"))

	body := c.page()
	assert.Contains(t, body, "Fetched 3 rows from REDCap.")
	assert.Contains(t, body, "<th>record_id</th>")
	assert.Contains(t, body, "3 rows fetched")
	assert.Contains(t, body, `value="REDCAP_EXPORT"`, "destination input is pre-filled")

	// The flash is one-shot; the table persists.
	body = c.page()
	assert.NotContains(t, body, "Fetched 3 rows")
	assert.Contains(t, body, "<th>record_id</th>")
}

func TestPreviewCapsAtFiftyRows(t *testing.T) {
	c := newClient(t, &fakePipeline{fetchTable: tableWithRows(120)})
	c.do(http.MethodPost, "/fetch", url.Values{})

	body := c.page()
	assert.Contains(t, body, "120 rows fetched, showing first 50.")
	assert.Equal(t, 50, strings.Count(body, "<td>x</td>"))
}

func TestFetchFailureShowsError(t *testing.T) {
	c := newClient(t, &fakePipeline{
		fetchErr: errors.New(errors.ErrorTypeFetch, "REDCap export returned status 403"),
	})

	c.do(http.MethodPost, "/fetch", url.Values{})
	body := c.page()
	assert.Contains(t, body, "Fetch failed:")
	assert.Contains(t, body, "403")
	assert.Contains(t, body, "No data fetched yet.")
}

func TestLoadWithoutFetchWarns(t *testing.T) {
	p := &fakePipeline{loadResult: snowflake.Result{Skipped: true}}
	c := newClient(t, p)

	c.do(http.MethodPost, "/load", url.Values{})
	body := c.page()
	assert.Contains(t, body, "No data to load. Fetch from REDCap first.")
	assert.Nil(t, p.loadedWith)
	assert.Equal(t, "REDCAP_EXPORT", p.loadedName, "empty form falls back to the default table")
}

func TestLoadSuccess(t *testing.T) {
	p := &fakePipeline{
		fetchTable: tableWithRows(3),
		loadResult: snowflake.Result{Table: "PATIENTS_2024", Rows: 3, Chunks: 1},
	}
	c := newClient(t, p)
	c.do(http.MethodPost, "/fetch", url.Values{})
	c.page() // consume the fetch flash

	c.do(http.MethodPost, "/load", url.Values{"table": {"patients_2024"}})
	body := c.page()
	assert.Contains(t, body, "Loaded 3 rows into PATIENTS_2024.")
	assert.Equal(t, "patients_2024", p.loadedName)
	require.NotNil(t, p.loadedWith)
	assert.Equal(t, 3, p.loadedWith.Len())
}

func TestLoadFailureKeepsTable(t *testing.T) {
	p := &fakePipeline{
		fetchTable: tableWithRows(2),
		loadErr:    errors.NewMissingSettings([]string{"SNOWFLAKE_PASSWORD", "SNOWFLAKE_WAREHOUSE"}),
	}
	c := newClient(t, p)
	c.do(http.MethodPost, "/fetch", url.Values{})
	c.page()

	c.do(http.MethodPost, "/load", url.Values{})
	body := c.page()
	assert.Contains(t, body, "Load failed: missing settings: SNOWFLAKE_PASSWORD, SNOWFLAKE_WAREHOUSE")
	assert.Contains(t, body, "<th>record_id</th>", "fetched data survives a failed load")
}

func TestRepeatLoadAllowed(t *testing.T) {
	p := &fakePipeline{
		fetchTable: tableWithRows(2),
		loadResult: snowflake.Result{Table: "REDCAP_EXPORT", Rows: 2, Chunks: 1},
	}
	c := newClient(t, p)
	c.do(http.MethodPost, "/fetch", url.Values{})
	c.page()

	c.do(http.MethodPost, "/load", url.Values{})
	c.page()
	c.do(http.MethodPost, "/load", url.Values{})
	body := c.page()
	assert.Contains(t, body, "Loaded 2 rows into REDCAP_EXPORT.")
	require.NotNil(t, p.loadedWith, "the same snapshot loads again without refetching")
}

func TestResetDiscardsTable(t *testing.T) {
	c := newClient(t, &fakePipeline{fetchTable: tableWithRows(2)})
	c.do(http.MethodPost, "/fetch", url.Values{})
	c.page()

	c.do(http.MethodPost, "/reset", url.Values{})
	body := c.page()
	assert.Contains(t, body, "Discarded fetched data.")
	assert.Contains(t, body, "No data fetched yet.")
}

func TestHealthz(t *testing.T) {
	c := newClient(t, &fakePipeline{})
	w := c.do(http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	c := newClient(t, &fakePipeline{})
	w := c.do(http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
