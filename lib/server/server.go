// Package server exposes the instruments on the bench over HTTP.
//
//	GET  /v1/instruments
//	GET  /v1/instruments/:name/idn
//	POST /v1/instruments/:name/command   {"cmd": "..."}
//	POST /v1/instruments/:name/query     {"cmd": "...", "maxBytes": n}
//	GET  /v1/scopes/:name/trace?ch=1&batch=true&save=true&format=json
//	GET  /v1/traces
//	GET  /v1/traces/:id?format=json
//
// Traces are rendered as json, csv, png or sr (sigrok session). Every
// instrument has its own lock; requests to one instrument are served one
// at a time.
package server

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang/glog"

	"github.com/gotmc/eedlab"
	"github.com/gotmc/eedlab/lib/ds1054"
	"github.com/gotmc/eedlab/lib/plot"
	"github.com/gotmc/eedlab/lib/sigrok"
	"github.com/gotmc/eedlab/lib/store"
)

// Image size of png traces.
const (
	PlotWidth  = 1200
	PlotHeight = 600
)

// MaxQueryBytes bounds the maxBytes of a raw query request.
const MaxQueryBytes = 64 * eedlab.DefaultMaxRead

var formats = []string{"json", "csv", "png", "sr"}

type instrument struct {
	mu    sync.Mutex
	name  string
	model string
	inst  *eedlab.Instrument
	scope *ds1054.Scope
}

// Server routes requests to the instruments it was given.
type Server struct {
	mu          sync.RWMutex
	instruments map[string]*instrument
	store       *store.Store
	router      *gin.Engine
}

// Option configures a Server.
type Option func(*Server)

// WithStore archives traces in st.
func WithStore(st *store.Store) Option { return func(s *Server) { s.store = st } }

// New returns a Server with no instruments.
func New(opts ...Option) *Server {
	s := &Server{instruments: map[string]*instrument{}}
	for _, opt := range opts {
		opt(s)
	}
	r := gin.New()
	r.Use(gin.Recovery(), logRequests)
	v1 := r.Group("/v1")
	v1.GET("/instruments", s.listInstruments)
	v1.GET("/instruments/:name/idn", s.identify)
	v1.POST("/instruments/:name/command", s.command)
	v1.POST("/instruments/:name/query", s.query)
	v1.GET("/scopes/:name/trace", s.trace)
	v1.GET("/traces", s.listTraces)
	v1.GET("/traces/:id", s.loadTrace)
	s.router = r
	return s
}

// Add serves inst under name. A model of ds1054 also enables the trace
// endpoint, with the scope configured by opts.
func (s *Server) Add(name, model string, inst *eedlab.Instrument, opts ...ds1054.Option) {
	in := &instrument{name: name, model: model, inst: inst}
	if model == "ds1054" {
		in.scope = ds1054.New(inst, opts...)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.instruments[name] = in
}

// Handler returns the http.Handler serving the API.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves on addr until the listener fails.
func (s *Server) ListenAndServe(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	glog.Infof("serving lab API on %s", addr)
	return srv.ListenAndServe()
}

func logRequests(c *gin.Context) {
	start := time.Now()
	c.Next()
	glog.V(1).Infof("%s %s %d %s", c.Request.Method, c.Request.URL, c.Writer.Status(), time.Since(start))
}

func (s *Server) lookup(c *gin.Context) (*instrument, bool) {
	s.mu.RLock()
	in, ok := s.instruments[c.Param("name")]
	s.mu.RUnlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("no instrument %q", c.Param("name"))})
	}
	return in, ok
}

// fail replies with the status matching err.
func fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	var te *eedlab.TransportError
	var fe *eedlab.FramingError
	var pe *eedlab.ParseError
	switch {
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.As(err, &te), errors.As(err, &fe), errors.As(err, &pe):
		status = http.StatusBadGateway
	}
	if status >= http.StatusInternalServerError {
		glog.Warningf("%s %s: %s", c.Request.Method, c.Request.URL, err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

type instrumentInfo struct {
	Name    string `json:"name"`
	Model   string `json:"model"`
	Backend string `json:"backend,omitempty"`
}

func (s *Server) listInstruments(c *gin.Context) {
	s.mu.RLock()
	infos := make([]instrumentInfo, 0, len(s.instruments))
	for _, in := range s.instruments {
		infos = append(infos, instrumentInfo{Name: in.name, Model: in.model, Backend: in.inst.Backend()})
	}
	s.mu.RUnlock()
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	c.JSON(http.StatusOK, infos)
}

func (s *Server) identify(c *gin.Context) {
	in, ok := s.lookup(c)
	if !ok {
		return
	}
	in.mu.Lock()
	idn, err := in.inst.Identify()
	in.mu.Unlock()
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"idn": idn})
}

type commandRequest struct {
	Cmd      string `json:"cmd" binding:"required"`
	MaxBytes int    `json:"maxBytes"`
}

func (s *Server) command(c *gin.Context) {
	in, ok := s.lookup(c)
	if !ok {
		return
	}
	var req commandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	in.mu.Lock()
	err := in.inst.Command("%s", req.Cmd)
	in.mu.Unlock()
	if err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) query(c *gin.Context) {
	in, ok := s.lookup(c)
	if !ok {
		return
	}
	var req commandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.MaxBytes < 0 || req.MaxBytes > MaxQueryBytes {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("maxBytes %d out of range [0, %d]", req.MaxBytes, MaxQueryBytes)})
		return
	}
	in.mu.Lock()
	var reply string
	var err error
	if req.MaxBytes > 0 {
		var b []byte
		b, err = in.inst.QueryRaw(req.Cmd, req.MaxBytes)
		reply = string(b)
	} else {
		reply, err = in.inst.Query(req.Cmd)
	}
	in.mu.Unlock()
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reply": reply})
}

func (s *Server) trace(c *gin.Context) {
	in, ok := s.lookup(c)
	if !ok {
		return
	}
	if in.scope == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("%s is not a scope", in.name)})
		return
	}
	ch, err := strconv.Atoi(c.DefaultQuery("ch", "1"))
	if err != nil || ch < 0 || ch > ds1054.NumChannels {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("bad channel %q", c.Query("ch"))})
		return
	}
	batch, err := strconv.ParseBool(c.DefaultQuery("batch", "false"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	save, err := strconv.ParseBool(c.DefaultQuery("save", "false"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if save && s.store == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "no trace store configured"})
		return
	}
	format, ok := traceFormat(c)
	if !ok {
		return
	}

	in.mu.Lock()
	tr, err := in.scope.Trace(ch, batch)
	in.mu.Unlock()
	if err != nil {
		fail(c, err)
		return
	}
	rec := store.Record{
		Instrument:     in.name,
		Channel:        ch,
		Captured:       time.Now(),
		SampleInterval: tr.SampleInterval,
		Count:          len(tr.Samples),
		Samples:        tr.Samples,
	}
	if save {
		if rec.ID, err = s.store.Save(c.Request.Context(), rec); err != nil {
			fail(c, err)
			return
		}
	}
	render(c, rec, format)
}

func (s *Server) listTraces(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "no trace store configured"})
		return
	}
	records, err := s.store.List(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	out := make([]traceJSON, 0, len(records))
	for _, r := range records {
		out = append(out, toJSON(r))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) loadTrace(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "no trace store configured"})
		return
	}
	format, ok := traceFormat(c)
	if !ok {
		return
	}
	rec, err := s.store.Load(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	render(c, rec, format)
}

type traceJSON struct {
	ID             string    `json:"id,omitempty"`
	Instrument     string    `json:"instrument"`
	Channel        int       `json:"channel"`
	Captured       time.Time `json:"captured"`
	SampleInterval float64   `json:"sampleInterval"`
	Count          int       `json:"count"`
	Samples        []float64 `json:"samples,omitempty"`
}

func toJSON(r store.Record) traceJSON {
	return traceJSON{
		ID:             r.ID,
		Instrument:     r.Instrument,
		Channel:        r.Channel,
		Captured:       r.Captured,
		SampleInterval: r.SampleInterval,
		Count:          r.Count,
		Samples:        r.Samples,
	}
}

// traceFormat returns the format query parameter, replying 400 when it
// names no known format.
func traceFormat(c *gin.Context) (string, bool) {
	format := strings.ToLower(c.DefaultQuery("format", "json"))
	if !slices.Contains(formats, format) {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown format %q, pick one of: %s", format, strings.Join(formats, ", "))})
		return "", false
	}
	return format, true
}

// render writes rec in format, one of formats.
func render(c *gin.Context, rec store.Record, format string) {
	name := fmt.Sprintf("%s_ch%d", rec.Instrument, rec.Channel)
	if rec.ID != "" {
		c.Header("X-Trace-Id", rec.ID)
	}
	switch format {
	case "json":
		c.JSON(http.StatusOK, toJSON(rec))
	case "csv":
		var buf bytes.Buffer
		buf.WriteString("time,volts\n")
		for i, v := range rec.Samples {
			fmt.Fprintf(&buf, "%g,%g\n", float64(i)*rec.SampleInterval, v)
		}
		c.Data(http.StatusOK, "text/csv", buf.Bytes())
	case "png":
		p, err := plot.NewPlotter(PlotWidth, PlotHeight)
		if err != nil {
			fail(c, err)
			return
		}
		var buf bytes.Buffer
		if err := p.WritePNG(&buf, rec.Samples, rec.SampleInterval, name); err != nil {
			fail(c, err)
			return
		}
		c.Data(http.StatusOK, "image/png", buf.Bytes())
	case "sr":
		var buf bytes.Buffer
		if err := sigrok.WriteTrace(&buf, fmt.Sprintf("CH%d", rec.Channel), rec.Samples, rec.SampleInterval); err != nil {
			fail(c, err)
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", sigrok.Filename(name, time.Time{})))
		c.Data(http.StatusOK, "application/zip", buf.Bytes())
	default:
		fail(c, fmt.Errorf("unknown format %q", format))
	}
}
