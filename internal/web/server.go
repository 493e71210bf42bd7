// Package web serves the two-button UI over the bridge: fetch the REDCap
// export into the session, preview it, and load it into Snowflake. State is
// per-session and in-memory; every action is a form POST followed by a
// redirect back to the page, with the outcome shown as a one-shot message.
package web

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/redcap-tools/snowbridge/internal/session"
	"github.com/redcap-tools/snowbridge/pkg/connector/destination/snowflake"
	"github.com/redcap-tools/snowbridge/pkg/errors"
	"github.com/redcap-tools/snowbridge/pkg/jsonutil"
	"github.com/redcap-tools/snowbridge/pkg/logger"
	"github.com/redcap-tools/snowbridge/pkg/models"
)

//go:embed templates/index.html
var templateFS embed.FS

// previewRows caps how many fetched rows the page renders.
const previewRows = 50

// pipeline is the slice of the bridge the UI needs.
type pipeline interface {
	Fetch(ctx context.Context) (*models.RecordTable, error)
	Load(ctx context.Context, table *models.RecordTable, destName string) (snowflake.Result, error)
	DefaultTableName() string
}

// Server is the HTTP front end.
type Server struct {
	bridge   pipeline
	sessions *session.Store
	logger   *zap.Logger
	tmpl     *template.Template
	mux      *http.ServeMux
}

// NewServer builds the server and its routes.
func NewServer(bridge pipeline) *Server {
	s := &Server{
		bridge:   bridge,
		sessions: session.NewStore(),
		logger:   logger.With(zap.String("component", "web")),
		tmpl:     template.Must(template.ParseFS(templateFS, "templates/index.html")),
		mux:      http.NewServeMux(),
	}

	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.HandleFunc("POST /fetch", s.handleFetch)
	s.mux.HandleFunc("POST /load", s.handleLoad)
	s.mux.HandleFunc("POST /reset", s.handleReset)
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.Handle("GET /metrics", promhttp.Handler())

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// pageData is the template's view of one session.
type pageData struct {
	Flash       *session.Flash
	TableName   string
	HasTable    bool
	Columns     []string
	Preview     [][]string
	TotalRows   int
	PreviewRows int
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.FromRequest(w, r)

	data := pageData{
		Flash:     sess.TakeFlash(),
		TableName: s.bridge.DefaultTableName(),
	}

	if table := sess.Table(); table != nil {
		head := table.Head(previewRows)
		preview := make([][]string, 0, len(head))
		for _, row := range head {
			cells := make([]string, len(table.Columns))
			for i, col := range table.Columns {
				cells[i] = row.Value(col)
			}
			preview = append(preview, cells)
		}

		data.HasTable = true
		data.Columns = table.Columns
		data.Preview = preview
		data.TotalRows = table.Len()
		data.PreviewRows = len(head)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tmpl.Execute(w, data); err != nil {
		s.logger.Error("template render failed", zap.Error(err))
	}
}

func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.FromRequest(w, r)

	table, err := s.bridge.Fetch(r.Context())
	if err != nil {
		sess.SetFlash(session.LevelError, actionMessage("Fetch failed", err))
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	sess.SetTable(table)
	if table.IsEmpty() {
		sess.SetFlash(session.LevelWarning, "Fetched 0 rows from REDCap. The project export is empty.")
	} else {
		sess.SetFlash(session.LevelSuccess, rowsMessage("Fetched", table.Len(), "from REDCap."))
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.FromRequest(w, r)

	destName := strings.TrimSpace(r.PostFormValue("table"))
	if destName == "" {
		destName = s.bridge.DefaultTableName()
	}

	// The fetched snapshot stays in the session whatever happens below, so
	// the user can retry a load without refetching.
	result, err := s.bridge.Load(r.Context(), sess.Table(), destName)
	switch {
	case err != nil:
		sess.SetFlash(session.LevelError, actionMessage("Load failed", err))
	case result.Skipped:
		sess.SetFlash(session.LevelWarning, "No data to load. Fetch from REDCap first.")
	default:
		sess.SetFlash(session.LevelSuccess,
			rowsMessage("Loaded", int(result.Rows), "into "+result.Table+"."))
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.FromRequest(w, r)
	sess.ClearTable()
	sess.SetFlash(session.LevelSuccess, "Discarded fetched data.")
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	_ = jsonutil.WriteResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// actionMessage phrases an action failure for the page. Missing-settings
// errors enumerate the setting names so the operator knows exactly what to
// provision; everything else shows the error chain as-is.
func actionMessage(prefix string, err error) string {
	if names := errors.MissingSettings(err); len(names) > 0 {
		return prefix + ": missing settings: " + strings.Join(names, ", ")
	}
	return prefix + ": " + err.Error()
}

// rowsMessage builds "<verb> N row(s) <rest>".
func rowsMessage(verb string, n int, rest string) string {
	noun := "rows"
	if n == 1 {
		noun = "row"
	}
	return fmt.Sprintf("%s %d %s %s", verb, n, noun, rest)
}
