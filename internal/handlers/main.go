package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	dataanalyzer "github.com/MegaGrindStone/data-analyzer-ui"
	"github.com/MegaGrindStone/data-analyzer-ui/internal/models"
	"github.com/MegaGrindStone/data-analyzer-ui/internal/stream"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/tmaxmax/go-sse"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/extension"
)

// Backend represents the analysis service the UI talks to. Upload hands a file over, Summary and
// Visualizations describe the last uploaded file, and GenerateResponse opens the streamed answer to a
// question about it.
type Backend interface {
	Upload(ctx context.Context, filename string, file io.Reader) error
	Summary(ctx context.Context) (models.Summary, error)
	Visualizations(ctx context.Context) (models.VisualizationSet, error)
	GenerateResponse(ctx context.Context, query string) (io.ReadCloser, error)
}

// FileStore remembers the file each session uploaded last. An empty name means nothing was uploaded.
type FileStore interface {
	CurrentFile(ctx context.Context, sessionID string) (string, error)
	SetCurrentFile(ctx context.Context, sessionID, name string) error
}

// Conversations holds the chat of every session together with the state of its outstanding request.
// Begin must fail while a request of the same session is in flight. Open returns what a freshly loaded
// chat view shows, dropping a conversation with no request in flight.
type Conversations interface {
	Open(sessionID string) (models.Conversation, stream.State)
	Begin(sessionID, messageID, query string, now time.Time) (models.Conversation, error)
	Transition(sessionID string, to stream.State) error
	Update(sessionID string, fn func(models.Conversation) models.Conversation) models.Conversation
	Clear(sessionID string)
}

// Main serves the pages of the analyzer, forwards work to the Backend, and pushes chat updates to the
// browser through server-sent events.
type Main struct {
	sseSrv    *sse.Server
	templates *template.Template
	static    http.Handler

	backend       Backend
	files         FileStore
	conversations Conversations
	results       *resultCache

	streamOpts []stream.Option

	// Chat streams run on this context, so Shutdown stops them.
	ctx    context.Context
	cancel context.CancelFunc

	logger *slog.Logger
}

// SSE event types.
var (
	messagesSSEType     = sse.Type("messages")
	closeMessageSSEType = sse.Type("closeMessage")
	closeChatSSEType    = sse.Type("closeChat")
)

const errLoggerKey = "err"

// NewMain creates a new Main instance. It parses the embedded templates and prepares the SSE server,
// which subscribes every browser to the topic of its own session. streamOpts are passed to stream.Read
// for every chat answer.
func NewMain(
	backend Backend,
	files FileStore,
	conversations Conversations,
	logger *slog.Logger,
	streamOpts ...stream.Option,
) (Main, error) {
	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			highlighting.NewHighlighting(highlighting.WithStyle("github")),
		),
	)

	// We parse templates from three distinct directories to separate layout, pages, and partial views
	tmpl, err := template.New("").Funcs(template.FuncMap{
		"markdown": markdownFunc(md),
		"json":     jsonFunc,
	}).ParseFS(
		dataanalyzer.TemplateFS,
		"templates/layout/*.html",
		"templates/pages/*.html",
		"templates/partials/*.html",
	)
	if err != nil {
		return Main{}, fmt.Errorf("error parsing templates: %w", err)
	}

	staticFS, err := fs.Sub(dataanalyzer.StaticFS, "static")
	if err != nil {
		return Main{}, fmt.Errorf("error opening static files: %w", err)
	}

	logger = logger.With(slog.String("module", "main"))
	ctx, cancel := context.WithCancel(context.Background())

	return Main{
		sseSrv: &sse.Server{
			OnSession: func(w http.ResponseWriter, r *http.Request) ([]string, bool) {
				sessionID := sessionIDFromContext(r.Context())
				if sessionID == "" {
					http.Error(w, "Session is required", http.StatusBadRequest)
					return nil, false
				}
				// Send the headers right away, so the browser sees the stream open before the first event.
				if f, ok := w.(interface{ Flush() error }); ok {
					w.Header().Set("Content-Type", "text/event-stream")
					w.Header().Set("Cache-Control", "no-cache")
					if err := f.Flush(); err != nil {
						return nil, false
					}
				}
				return []string{sessionTopic(sessionID)}, true
			},
		},
		templates:     tmpl,
		static:        http.StripPrefix("/static/", http.FileServer(http.FS(staticFS))),
		backend:       backend,
		files:         files,
		conversations: conversations,
		results:       newResultCache(),
		streamOpts:    append([]stream.Option{stream.WithLogger(logger)}, streamOpts...),
		ctx:           ctx,
		cancel:        cancel,
		logger:        logger,
	}, nil
}

// Router returns the HTTP handler serving every route of the UI.
func (m Main) Router() http.Handler {
	r := chi.NewRouter()

	accessLog := slog.NewLogLogger(m.logger.Handler(), slog.LevelInfo)

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{Logger: accessLog, NoColor: true}))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/health"))

	r.Handle("/static/*", m.static)

	r.Group(func(r chi.Router) {
		r.Use(m.withSession)

		r.Get("/", m.HandleHome)
		r.Post("/upload", m.HandleUpload)

		r.Get("/summary", m.HandleSummary)
		r.Get("/summary/download", m.HandleSummaryDownload)

		r.Get("/visualizations", m.HandleVisualizations)
		r.Get("/visualizations/download", m.HandleVisualizationsDownload)

		r.Get("/chat", m.HandleChat)
		r.Post("/chat", m.HandleChatSubmit)
		r.Post("/chat/clear", m.HandleChatClear)

		r.Get("/sse/messages", m.HandleSSE)
	})

	return r
}

// HandleSSE subscribes the browser to the chat updates of its session.
func (m Main) HandleSSE(w http.ResponseWriter, r *http.Request) {
	m.sseSrv.ServeHTTP(w, r)
}

func sessionTopic(sessionID string) string {
	return fmt.Sprintf("session-%s", sessionID)
}

// Shutdown gracefully terminates the Main instance. It cancels the chat streams still running,
// broadcasts a close message to all connected clients and waits up to 5 seconds for connections to
// terminate. After the timeout, any remaining connections are forcefully closed.
func (m Main) Shutdown(ctx context.Context) error {
	m.cancel()

	e := &sse.Message{Type: closeChatSSEType}
	// SSE events must carry data
	e.AppendData("bye")

	// We ignore the error here since we're shutting down anyway
	_ = m.sseSrv.Publish(e)

	ctx, cancel := context.WithTimeout(ctx, time.Second*5)
	defer cancel()

	return m.sseSrv.Shutdown(ctx)
}

type pageData struct {
	Title       string
	Nav         []models.NavItem
	CurrentFile string
}

func newPageData(r *http.Request, title, currentFile string) pageData {
	return pageData{
		Title:       title,
		Nav:         models.NavItems(r.URL.Path),
		CurrentFile: currentFile,
	}
}

type errorPageData struct {
	pageData
	Message string
}

func (m Main) render(w http.ResponseWriter, status int, name string, data any) {
	var buf bytes.Buffer
	if err := m.templates.ExecuteTemplate(&buf, name, data); err != nil {
		m.logger.Error("Failed to execute template",
			slog.String("template", name),
			slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func (m Main) renderError(w http.ResponseWriter, r *http.Request, status int, title, message, currentFile string) {
	m.render(w, status, "error.html", errorPageData{
		pageData: newPageData(r, title, currentFile),
		Message:  message,
	})
}

// currentFile evaluates the entry guard of the views working on the uploaded file. It returns false after
// redirecting the visitor, or after writing an error response.
func (m Main) currentFile(w http.ResponseWriter, r *http.Request) (string, bool) {
	sessionID := sessionIDFromContext(r.Context())
	file, err := m.files.CurrentFile(r.Context(), sessionID)
	if err != nil {
		m.logger.Error("Failed to get current file",
			slog.String("sessionID", sessionID),
			slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return "", false
	}

	nav := models.RequireCurrentFile(file)
	if !nav.Proceed() {
		http.Redirect(w, r, nav.Redirect, http.StatusSeeOther)
		return "", false
	}
	return file, true
}

func isHXRequest(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

// writeJSONAttachment writes raw pretty-printed with a 2-space indent as a download named filename.
func (m Main) writeJSONAttachment(w http.ResponseWriter, filename string, raw json.RawMessage) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		m.logger.Error("Failed to indent JSON",
			slog.String("filename", filename),
			slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	_, _ = buf.WriteTo(w)
}

func markdownFunc(md goldmark.Markdown) func(string) (template.HTML, error) {
	return func(s string) (template.HTML, error) {
		var buf bytes.Buffer
		if err := md.Convert([]byte(s), &buf); err != nil {
			return "", fmt.Errorf("error rendering markdown: %w", err)
		}
		// Raw HTML in the source is omitted by the renderer, so the output is safe to embed.
		return template.HTML(buf.String()), nil
	}
}

func jsonFunc(raw json.RawMessage) string {
	return strings.TrimSpace(string(raw))
}

// resultCache keeps the summary and the charts fetched last for each session, so downloads return what
// the visitor saw without asking the backend to generate them again. Each fetch replaces the session's
// previous entry of the same kind.
type resultCache struct {
	mu      sync.Mutex
	entries map[resultKey]cachedResult
}

type resultKey struct {
	kind      string
	sessionID string
}

type cachedResult struct {
	file string
	raw  json.RawMessage
}

const (
	summaryResult        = "summary"
	visualizationsResult = "visualizations"
)

func newResultCache() *resultCache {
	return &resultCache{entries: make(map[resultKey]cachedResult)}
}

// get returns the cached result of kind for sessionID, if it was fetched for file.
func (c *resultCache) get(kind, sessionID, file string) (json.RawMessage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	res, ok := c.entries[resultKey{kind: kind, sessionID: sessionID}]
	if !ok || res.file != file {
		return nil, false
	}
	return res.raw, true
}

func (c *resultCache) put(kind, sessionID, file string, raw json.RawMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[resultKey{kind: kind, sessionID: sessionID}] = cachedResult{file: file, raw: raw}
}

func (c *resultCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.entries)
}
