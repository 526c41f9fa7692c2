package dashserve

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"net/http"
	"path"
	"strings"
	"time"

	headerrules "github.com/ericselin/dashserve/pkg/header-rules"
	recorder "github.com/ericselin/dashserve/pkg/status-recorder"
	"github.com/ericselin/dashserve/worker"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

type Config struct {
	// Prebuilt single-page application, e.g. os.DirFS("dist").
	Root fs.FS
	// Entry document served for every path that is not a file.
	// Defaults to index.html.
	Entry string
	// Logger to use. A console logger is used if nil.
	Logger *zerolog.Logger
	// Response header rules. headerrules.Defaults is used if nil.
	Rules headerrules.Rules
	// Serve the self-unregistering worker at WorkerPath and the console
	// sweep script next to it, overriding files of the same name in Root.
	KillSwitch bool
	// Defaults to /sw.js, the path the application registers its worker at.
	WorkerPath string
	// Optional request metrics.
	Metrics *Metrics
}

type Server struct {
	root    fs.FS
	entry   string
	rules   headerrules.Rules
	log     zerolog.Logger
	metrics *Metrics
	started time.Time
	router  chi.Router
}

// New creates the static asset server.
func New(config Config) *Server {
	var logger zerolog.Logger
	if config.Logger == nil {
		logger = zerolog.New(zerolog.NewConsoleWriter())
	} else {
		logger = *config.Logger
	}

	s := &Server{
		root:    config.Root,
		entry:   config.Entry,
		rules:   config.Rules,
		log:     logger,
		metrics: config.Metrics,
		started: time.Now(),
	}
	s.entry = entryName(s.entry)
	if s.entry == "" {
		s.entry = "index.html"
	}
	if s.rules == nil {
		s.rules = headerrules.Defaults
	}

	r := chi.NewRouter()
	r.Use(s.logRequests)
	if config.KillSwitch {
		workerPath := config.WorkerPath
		if workerPath == "" {
			workerPath = worker.ScriptWorker
		}
		workerPath = routePath(workerPath)
		clearPath := path.Join(path.Dir(workerPath), worker.ScriptClear)
		for p, name := range map[string]string{workerPath: worker.ScriptWorker, clearPath: worker.ScriptClear} {
			r.Get(p, s.serveScript(name))
			r.Head(p, s.serveScript(name))
		}
	}
	r.Get("/*", s.serveStatic)
	r.Head("/*", s.serveStatic)
	s.router = r
	return s
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// serveStatic sends the file at the request path,
// or the entry document if there is no such file.
func (s *Server) serveStatic(w http.ResponseWriter, r *http.Request) {
	if name, ok := s.lookup(r.URL.Path); ok {
		setTarget(r, headerrules.TargetFile)
		s.serveFile(w, r, name, headerrules.TargetFile)
		return
	}
	setTarget(r, headerrules.TargetEntry)
	s.serveFile(w, r, s.entry, headerrules.TargetEntry)
}

// lookup returns the fs name for a URL path if it is a regular file under the root.
// Directories, including the root itself, are not files.
func (s *Server) lookup(urlPath string) (string, bool) {
	name := strings.TrimPrefix(path.Clean("/"+urlPath), "/")
	if s.root == nil || name == "" || !fs.ValidPath(name) {
		return "", false
	}
	info, err := fs.Stat(s.root, name)
	if err != nil || !info.Mode().IsRegular() {
		return "", false
	}
	return name, true
}

func (s *Server) serveFile(w http.ResponseWriter, r *http.Request, name string, target headerrules.Target) {
	if s.root == nil {
		s.fail(w, r, name, fs.ErrNotExist)
		return
	}
	f, err := s.root.Open(name)
	if err != nil {
		s.fail(w, r, name, err)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		s.fail(w, r, name, err)
		return
	}
	if info.IsDir() {
		s.fail(w, r, name, fs.ErrNotExist)
		return
	}
	content, ok := f.(io.ReadSeeker)
	if !ok {
		b, err := io.ReadAll(f)
		if err != nil {
			s.fail(w, r, name, err)
			return
		}
		content = bytes.NewReader(b)
	}
	s.rules.Apply(r, w.Header(), target)
	http.ServeContent(w, r, name, info.ModTime(), content)
}

func (s *Server) serveScript(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		setTarget(r, headerrules.TargetWorker)
		b, err := worker.Script(name)
		if err != nil {
			s.fail(w, r, name, err)
			return
		}
		w.Header().Set("Content-Type", "text/javascript; charset=utf-8")
		w.Header().Set("Service-Worker-Allowed", "/")
		s.rules.Apply(r, w.Header(), headerrules.TargetWorker)
		if w.Header().Get("Cache-Control") == "" {
			w.Header().Set("Cache-Control", "no-cache")
		}
		http.ServeContent(w, r, name, s.started, bytes.NewReader(b))
	}
}

// fail answers a single request with an error; the server keeps serving.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, name string, err error) {
	setTarget(r, targetError)
	status := http.StatusInternalServerError
	msg := "could not read " + name
	if errors.Is(err, fs.ErrNotExist) {
		status = http.StatusNotFound
		msg = name + " not found"
	}
	s.log.Error().Err(err).Str("file", name).Str("url", r.URL.String()).Msg("Could not serve file")
	http.Error(w, msg, status)
}

const targetError headerrules.Target = "error"

type requestInfo struct {
	target headerrules.Target
}

type requestInfoKey struct{}

func setTarget(r *http.Request, target headerrules.Target) {
	if info, ok := r.Context().Value(requestInfoKey{}).(*requestInfo); ok {
		info.target = target
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info := &requestInfo{}
		r = r.WithContext(context.WithValue(r.Context(), requestInfoKey{}, info))
		rec := recorder.NewStatusRecorder(w)
		next.ServeHTTP(rec, r)

		status := rec.StatusCode()
		if status == 0 {
			status = http.StatusOK
		}
		s.metrics.observe(info.target, status, rec.Duration())
		s.log.Debug().
			Str("method", r.Method).
			Str("url", r.URL.String()).
			Str("sourceIp", getRequestSourceIp(r)).
			Int("status", status).
			Str("target", string(info.target)).
			Int64("bytes", rec.BytesWritten()).
			Dur("took", rec.Duration()).
			Msg("Sending response to client")
	})
}

func getRequestSourceIp(r *http.Request) string {
	// RemoteAddr is in the format:
	// 1.2.3.4:10000 for ipv4
	// [1:2:3]:10000 for ipv6
	ipAndPort := r.RemoteAddr
	portSepIdx := strings.LastIndex(ipAndPort, ":")
	// if not found, return
	if portSepIdx < 0 {
		return ipAndPort
	}
	ip := ipAndPort[:portSepIdx]
	return strings.Trim(ip, "[]")
}
