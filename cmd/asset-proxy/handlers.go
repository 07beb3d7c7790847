package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/Sternrassler/asset-variants/pkg/cache"
	"github.com/Sternrassler/asset-variants/pkg/metrics"
	"github.com/Sternrassler/asset-variants/pkg/pipeline"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

const (
	readyTimeout = 2 * time.Second

	// maxWarmBody bounds the JSON body of a warm request.
	maxWarmBody = 1 << 20
)

// server holds the dependencies of the HTTP handlers.
type server struct {
	pipeline *pipeline.Pipeline
	checks   map[string]cache.Pinger

	// advisory checks are reported by /ready without failing it.
	advisory map[string]cache.Pinger
	maxWarm  int
	logger   zerolog.Logger
}

func newRouter(s *server) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.GetHead,
		s.requestLogger,
	)

	r.Get("/health", healthHandler)
	r.Get("/ready", s.readyHandler)
	r.Handle("/metrics", metrics.Handler())

	r.Get("/assets/*", s.assetHandler)
	r.Post("/warm/*", s.warmHandler)

	return r
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

func (s *server) readyHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	failures := ping(ctx, s.checks)
	degraded := ping(ctx, s.advisory)

	if len(failures) > 0 {
		s.logger.Warn().Strs("failures", failures).Msg("Readiness check failed")
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprintf(w, "NOT READY\n%s", strings.Join(append(failures, degraded...), "\n"))
		return
	}
	if len(degraded) > 0 {
		s.logger.Debug().Strs("degraded", degraded).Msg("Ready with degraded dependencies")
	}

	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
	for _, line := range degraded {
		fmt.Fprintf(w, "\ndegraded %s", line)
	}
}

// ping runs every check in name order and returns the failures.
func ping(ctx context.Context, checks map[string]cache.Pinger) []string {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	var failures []string
	for _, name := range names {
		if err := checks[name].Ping(ctx); err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", name, err))
		}
	}
	return failures
}

// assetHandler serves GET /assets/{id}?w=..&h=..: the variant of one asset.
func (s *server) assetHandler(w http.ResponseWriter, r *http.Request) {
	id := assetID(r)

	res, err := s.pipeline.Resolve(r.Context(), id, r.URL.Query())
	if err != nil {
		s.writeError(w, r, id, err)
		return
	}

	etag := cache.ETag(res.Key)
	if cache.MatchesETag(r, etag) {
		w.Header().Set("ETag", etag)
		w.Header().Set("Cache-Control", cache.ImmutableCacheControl)
		w.WriteHeader(http.StatusNotModified)
		return
	}

	cache.SetVariantHeaders(w.Header(), res.Key, res.ContentType, res.Status == pipeline.StatusHit)
	w.Header().Set("Content-Length", fmt.Sprint(len(res.Data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(res.Data); err != nil {
		s.logger.Debug().Err(err).Str("asset_id", id).Msg("Failed to write response")
	}
}

// warmRequest is the body of POST /warm/{id}.
type warmRequest struct {
	Variants []map[string]string `json:"variants"`
}

type warmVariant struct {
	Index  int    `json:"index"`
	Spec   string `json:"spec,omitempty"`
	Key    string `json:"key,omitempty"`
	Status string `json:"status,omitempty"`
	Bytes  int    `json:"bytes,omitempty"`
	Error  string `json:"error,omitempty"`
	Kind   string `json:"kind,omitempty"`
}

type warmResponse struct {
	AssetID  string        `json:"asset_id"`
	Warmed   int           `json:"warmed"`
	Failed   int           `json:"failed"`
	Variants []warmVariant `json:"variants"`
}

// warmHandler serves POST /warm/{id}: it derives several variants of one
// asset ahead of traffic and reports the outcome of each.
func (s *server) warmHandler(w http.ResponseWriter, r *http.Request) {
	id := assetID(r)

	var req warmRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxWarmBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_request", Message: err.Error()})
		return
	}
	if len(req.Variants) == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_request", Message: "variants must not be empty"})
		return
	}
	if s.maxWarm > 0 && len(req.Variants) > s.maxWarm {
		writeJSON(w, http.StatusBadRequest, errorBody{
			Error:   "invalid_request",
			Message: fmt.Sprintf("at most %d variants per request (got %d)", s.maxWarm, len(req.Variants)),
		})
		return
	}

	variants := make([]map[string][]string, len(req.Variants))
	for i, v := range req.Variants {
		params := make(url.Values, len(v))
		for name, value := range v {
			params.Set(name, value)
		}
		variants[i] = params
	}

	results := s.pipeline.Warm(r.Context(), id, variants)

	resp := warmResponse{AssetID: id, Variants: make([]warmVariant, len(results))}
	for i, res := range results {
		v := warmVariant{
			Index:  res.Index,
			Spec:   res.Spec,
			Key:    string(res.Key),
			Status: string(res.Status),
			Bytes:  res.Bytes,
		}
		if res.Err != nil {
			resp.Failed++
			v.Error = res.Err.Error()
			v.Kind = string(pipeline.KindOf(res.Err))
		} else {
			resp.Warmed++
		}
		resp.Variants[i] = v
	}
	writeJSON(w, http.StatusOK, resp)
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Param   string `json:"param,omitempty"`
}

// statusFor maps a pipeline error kind to an HTTP status.
func statusFor(kind pipeline.Kind) int {
	switch kind {
	case pipeline.KindInvalidTransformSpec:
		return http.StatusBadRequest
	case pipeline.KindOriginNotFound:
		return http.StatusNotFound
	case pipeline.KindOriginUnavailable:
		return http.StatusBadGateway
	case pipeline.KindUnsupportedSourceFormat:
		return http.StatusUnsupportedMediaType
	default:
		return http.StatusInternalServerError
	}
}

func (s *server) writeError(w http.ResponseWriter, r *http.Request, id string, err error) {
	var perr *pipeline.Error
	if !errors.As(err, &perr) {
		if r.Context().Err() != nil {
			// Client went away; nobody reads the response.
			return
		}
		s.logger.Error().Err(err).Str("asset_id", id).Msg("Unclassified resolve error")
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal", Message: "internal error"})
		return
	}

	if perr.Retryable() {
		w.Header().Set("Retry-After", "1")
	}
	writeJSON(w, statusFor(perr.Kind), errorBody{
		Error:   string(perr.Kind),
		Message: perr.Error(),
		Param:   perr.Param,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// assetID returns the wildcard part of the route, unescaped.
func assetID(r *http.Request) string {
	id := chi.URLParam(r, "*")
	if unescaped, err := url.PathUnescape(id); err == nil {
		id = unescaped
	}
	return id
}

// requestLogger logs one line per request.
func (s *server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		event := s.logger.Debug()
		if ww.Status() >= http.StatusInternalServerError {
			event = s.logger.Warn()
		}
		event.
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}
