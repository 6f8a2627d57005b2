package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"

	"geeo.io/QuadServer/quad"
	"geeo.io/QuadServer/strategy"
)

// ErrInvalidParameter is returned for a missing or malformed query parameter
var ErrInvalidParameter = errors.New("invalid parameter")

// defaults for the strategy routes
const (
	defaultWindowSize      = 10.0
	defaultWindowStep      = 1.0
	defaultWindowThreshold = 3
	defaultEpsilon         = 30.0
	defaultMinSamples      = 5
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, route string, err error) {
	writeJSON(w, status, JSONError{http.StatusText(status), err.Error()})
	log.Warn(route, ": ", err)
}

// checkBearer guards the admin routes with the webhook bearer token
func checkBearer(req *http.Request) bool {
	auth := req.Header.Get("Authorization")
	return WebhookBearerToken != "" && (auth == WebhookBearerToken || req.URL.Query().Get("bearer") == WebhookBearerToken)
}

type tokenHandler func(http.ResponseWriter, *http.Request, *JWTToken, *PointIndex, *WSRouter)

func withTokenAndIndex(idx *PointIndex, wsh *WSRouter, fn tokenHandler) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, req *http.Request) {
		t := req.Header.Get("X-GEEO-TOKEN")
		if t == "" {
			t = req.URL.Query().Get("token")
		}
		token, err := parseJWTToken(t)
		if err == nil && !token.Capabilities.HTTP {
			err = ErrInvalidCapabilities
		}
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, JSONError{"Can't parse token, or token invalid", err.Error()})
			log.Warn("HTTP route: can't parse token, or token without HTTP cap")
			return
		}
		fn(w, req, token, idx, wsh)
	}
}

// NewHTTPRouter returns the router for the http api
func NewHTTPRouter(router *mux.Router, idx *PointIndex, wsh *WSRouter) *mux.Router {

	router.HandleFunc("/v1/ping", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, struct {
			Tag   string
			Build string
		}{Tag, Build})
	})

	router.HandleFunc("/v1/points", withTokenAndIndex(idx, wsh, addPoints)).Methods(http.MethodPost)
	router.HandleFunc("/v1/query", withTokenAndIndex(idx, wsh, queryPoints)).Methods(http.MethodGet)
	router.HandleFunc("/v1/tree", withTokenAndIndex(idx, wsh, dumpTree)).Methods(http.MethodGet)
	router.HandleFunc("/v1/stats", withTokenAndIndex(idx, wsh, treeStats)).Methods(http.MethodGet)
	router.HandleFunc("/v1/render.pdf", withTokenAndIndex(idx, wsh, renderTree)).Methods(http.MethodGet)
	router.HandleFunc("/v1/strategies/window", withTokenAndIndex(idx, wsh, slidingWindow)).Methods(http.MethodGet)
	router.HandleFunc("/v1/strategies/clusters", withTokenAndIndex(idx, wsh, clusters)).Methods(http.MethodGet)

	router.HandleFunc("/v1/log", setLogLevel) // doesn't need additional security, awaits bearer token

	return router
}

// newHandler assembles every route of the server with its middlewares
func newHandler(cfg *Config, idx *PointIndex, persister Persister, wsh *WSRouter) http.Handler {
	r := mux.NewRouter()

	upgrader.CheckOrigin = func(r *http.Request) bool { return true }
	r.HandleFunc("/ws", wsh.handle(upgrader))

	subrouter := r.PathPrefix("/api").Subrouter()
	r.HandleFunc("/api/private/backup", persister.BackupHandleFunc)
	r.HandleFunc("/api/private/jsondump", persister.JSONDumpHandleFunc)
	if cfg.Dev {
		r.HandleFunc("/api/dev/token", DevHelperGetToken)
	}
	NewHTTPRouter(subrouter, idx, wsh)

	corsOptions := cors.Options{
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"X-GEEO-TOKEN", "Content-Type", "Authorization"},
	}
	if len(cfg.Origins) > 0 {
		corsOptions.AllowedOrigins = cfg.Origins
	}
	withCors := cors.New(corsOptions).Handler(r)

	recovered := handlers.RecoveryHandler(handlers.RecoveryLogger(log), handlers.PrintRecoveryStack(true))(withCors)
	return handlers.CombinedLoggingHandler(log.WriterLevel(logrus.DebugLevel), recovered)
}

func floatParam(values url.Values, name string, def float64) (float64, error) {
	s := values.Get(name)
	if s == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%s=%q: %w", name, s, ErrInvalidParameter)
	}
	return f, nil
}

func intParam(values url.Values, name string, def int) (int, error) {
	s := values.Get(name)
	if s == "" {
		return def, nil
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%s=%q: %w", name, s, ErrInvalidParameter)
	}
	return i, nil
}

// rectParam reads x, y, w and h. It returns nil when none of them is set.
func rectParam(values url.Values) (*quad.Rect[float64], error) {
	if values.Get("x") == "" && values.Get("y") == "" && values.Get("w") == "" && values.Get("h") == "" {
		return nil, nil
	}
	var coords [4]float64
	for i, name := range []string{"x", "y", "w", "h"} {
		if values.Get(name) == "" {
			return nil, fmt.Errorf("%s is missing: %w", name, ErrInvalidParameter)
		}
		f, err := floatParam(values, name, 0)
		if err != nil {
			return nil, err
		}
		coords[i] = f
	}
	r := quad.NewRect(coords[0], coords[1], coords[2], coords[3])
	if !r.Valid() {
		return nil, fmt.Errorf("empty rect %v: %w", r, ErrInvalidParameter)
	}
	return &r, nil
}

func addPoints(w http.ResponseWriter, req *http.Request, token *JWTToken, idx *PointIndex, wsh *WSRouter) {
	if !token.Capabilities.Insert {
		writeError(w, http.StatusForbidden, "POST /v1/points", ErrCantInsert)
		return
	}

	cmd := &JSONInsert{}
	if err := json.NewDecoder(req.Body).Decode(cmd); err != nil {
		writeError(w, http.StatusBadRequest, "POST /v1/points", err)
		return
	}
	points := cmd.points()
	if len(points) == 0 {
		writeError(w, http.StatusBadRequest, "POST /v1/points", fmt.Errorf("no point: %w", ErrInvalidParameter))
		return
	}

	accepted := idx.addPoints(points)
	log.Debugf("POST /v1/points: %d/%d inserted", len(accepted), len(points))
	go wsh.notifyInserted("http", accepted)

	writeJSON(w, http.StatusCreated, JSONInsertResult{Inserted: len(accepted), Rejected: len(points) - len(accepted)})
}

func queryPoints(w http.ResponseWriter, req *http.Request, token *JWTToken, idx *PointIndex, wsh *WSRouter) {
	if !token.Capabilities.Query {
		writeError(w, http.StatusForbidden, "GET /v1/query", ErrCantQuery)
		return
	}
	r, err := rectParam(req.URL.Query())
	if err == nil && r == nil {
		err = fmt.Errorf("x, y, w and h are required: %w", ErrInvalidParameter)
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, "GET /v1/query", err)
		return
	}
	points, trace := idx.query(*r)
	writeJSON(w, http.StatusOK, JSONQueryResult{Query: *r, Points: points, Visited: trace.Visited, Pruned: trace.Pruned})
}

func dumpTree(w http.ResponseWriter, req *http.Request, token *JWTToken, idx *PointIndex, wsh *WSRouter) {
	if !token.Capabilities.Query {
		writeError(w, http.StatusForbidden, "GET /v1/tree", ErrCantQuery)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Nodes []JSONNode `json:"nodes"`
	}{idx.treeDump()})
}

func treeStats(w http.ResponseWriter, req *http.Request, token *JWTToken, idx *PointIndex, wsh *WSRouter) {
	writeJSON(w, http.StatusOK, idx.stats())
}

func renderTree(w http.ResponseWriter, req *http.Request, token *JWTToken, idx *PointIndex, wsh *WSRouter) {
	if !token.Capabilities.Query {
		writeError(w, http.StatusForbidden, "GET /v1/render.pdf", ErrCantQuery)
		return
	}
	r, err := rectParam(req.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, "GET /v1/render.pdf", err)
		return
	}
	var buf bytes.Buffer
	if err := idx.renderPDF(&buf, r); err != nil {
		writeError(w, http.StatusInternalServerError, "GET /v1/render.pdf", err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

func slidingWindow(w http.ResponseWriter, req *http.Request, token *JWTToken, idx *PointIndex, wsh *WSRouter) {
	if !token.Capabilities.Query {
		writeError(w, http.StatusForbidden, "GET /v1/strategies/window", ErrCantQuery)
		return
	}
	values := req.URL.Query()
	var opts strategy.WindowOptions[float64]
	var err error
	if opts.Size, err = floatParam(values, "size", defaultWindowSize); err == nil {
		if opts.Step, err = floatParam(values, "step", defaultWindowStep); err == nil {
			opts.Threshold, err = intParam(values, "threshold", defaultWindowThreshold)
		}
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, "GET /v1/strategies/window", err)
		return
	}

	windows, err := idx.windows(opts)
	if err != nil {
		writeError(w, http.StatusBadRequest, "GET /v1/strategies/window", err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Windows []strategy.Window[float64] `json:"windows"`
	}{windows})
}

func clusters(w http.ResponseWriter, req *http.Request, token *JWTToken, idx *PointIndex, wsh *WSRouter) {
	if !token.Capabilities.Query {
		writeError(w, http.StatusForbidden, "GET /v1/strategies/clusters", ErrCantQuery)
		return
	}
	values := req.URL.Query()
	var opts strategy.ClusterOptions[float64]
	var err error
	if opts.Epsilon, err = floatParam(values, "eps", defaultEpsilon); err == nil {
		opts.MinSamples, err = intParam(values, "min", defaultMinSamples)
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, "GET /v1/strategies/clusters", err)
		return
	}

	res, err := idx.clusters(opts)
	if err != nil {
		writeError(w, http.StatusBadRequest, "GET /v1/strategies/clusters", err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Clusters strategy.Clusters[float64] `json:"clusters"`
	}{res})
}

// parseLogLevel accepts debug, info, warn and error
func parseLogLevel(level string) (logrus.Level, bool) {
	switch level {
	case "debug":
		return logrus.DebugLevel, true
	case "info":
		return logrus.InfoLevel, true
	case "warn":
		return logrus.WarnLevel, true
	case "error":
		return logrus.ErrorLevel, true
	}
	return logrus.InfoLevel, false
}

func setLogLevel(w http.ResponseWriter, req *http.Request) {
	if !checkBearer(req) {
		w.WriteHeader(http.StatusUnauthorized)
		log.Warn("Unauthorized attempt to set log level")
		return
	}

	if req.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		log.Warn("Wrong HTTP method to set log level")
		return
	}

	level := req.URL.Query().Get("level")
	l, ok := parseLogLevel(level)
	if !ok {
		w.WriteHeader(http.StatusBadRequest)
		log.Warn("Invalid log level, ", level)
		return
	}
	log.Info("Setting log level to ", level)
	log.SetLevel(l)
	w.WriteHeader(http.StatusOK)
}
