package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"WagerLedger/internal/ingestion"
	"WagerLedger/internal/observability"
	"WagerLedger/internal/query"
)

// Server exposes the HTTP/JSON API: read queries over projections,
// an ingest surface that feeds the same raw-instruction channel as
// NATS, health probes, and Prometheus metrics.
type Server struct {
	queries    *query.QueryService
	ingestChan chan<- ingestion.RawInstruction
	health     *observability.HealthChecker
	logger     zerolog.Logger
	httpServer *http.Server
}

func New(
	addr string,
	queries *query.QueryService,
	ingestChan chan<- ingestion.RawInstruction,
	health *observability.HealthChecker,
) *Server {
	s := &Server{
		queries:    queries,
		ingestChan: ingestChan,
		health:     health,
		logger:     observability.NewLogger("http"),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", health.LivenessHandler)
	r.Get("/readyz", health.ReadinessHandler)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/markets/{seed}", s.handleGetMarket)
		r.Get("/markets/{seed}/bets", s.handleListMarketBets)
		r.Get("/bets/{owner}/{seed}/{nonce}", s.handleGetBet)
		r.Get("/owners/{owner}/bets", s.handleListOwnerBets)
		r.Get("/balances/{account}", s.handleGetBalance)
		r.Get("/accounts/{account}/transfers", s.handleTransferHistory)
		r.Get("/admin/integrity", s.handleVerifyIntegrity)
		r.Post("/instructions/{type}", s.handleIngest)
	})

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Run starts the HTTP server and blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.httpServer.Addr).Msg("http server listening")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// --- query handlers ---

func (s *Server) handleGetMarket(w http.ResponseWriter, r *http.Request) {
	seed := chi.URLParam(r, "seed")
	market, err := s.queries.GetMarket(r.Context(), seed)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if market == nil {
		s.writeError(w, http.StatusNotFound, "market not found")
		return
	}
	s.writeJSON(w, http.StatusOK, market)
}

func (s *Server) handleListMarketBets(w http.ResponseWriter, r *http.Request) {
	seed := chi.URLParam(r, "seed")
	bets, err := s.queries.ListMarketBets(r.Context(), seed, parseLimit(r, 100))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"bets": bets})
}

func (s *Server) handleGetBet(w http.ResponseWriter, r *http.Request) {
	owner := chi.URLParam(r, "owner")
	seed := chi.URLParam(r, "seed")
	nonce, err := strconv.ParseUint(chi.URLParam(r, "nonce"), 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid nonce")
		return
	}

	bet, err := s.queries.GetBet(r.Context(), owner, seed, nonce)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if bet == nil {
		s.writeError(w, http.StatusNotFound, "bet not found")
		return
	}
	s.writeJSON(w, http.StatusOK, bet)
}

func (s *Server) handleListOwnerBets(w http.ResponseWriter, r *http.Request) {
	owner := chi.URLParam(r, "owner")
	bets, err := s.queries.ListOwnerBets(r.Context(), owner, parseLimit(r, 100))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"bets": bets})
}

func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "account")
	balance, err := s.queries.GetBalance(r.Context(), account)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	s.writeJSON(w, http.StatusOK, balance)
}

func (s *Server) handleTransferHistory(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "account")

	var before *int64
	if v := r.URL.Query().Get("before"); v != "" {
		seq, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid before cursor")
			return
		}
		before = &seq
	}

	entries, err := s.queries.GetTransferHistory(r.Context(), account, parseLimit(r, 100), before)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"transfers": entries})
}

func (s *Server) handleVerifyIntegrity(w http.ResponseWriter, r *http.Request) {
	report, err := s.queries.VerifyIntegrity(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "integrity check failed")
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

// --- ingest handler ---

// handleIngest accepts an instruction over HTTP and feeds it into the same
// raw-instruction channel as the NATS subscriber. Processing is asynchronous:
// 202 means accepted for processing, not applied. Duplicate submissions are
// safe — the core deduplicates on the idempotency key.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	instructionType := chi.URLParam(r, "type")
	subject, ok := ingestion.SubjectForInstructionType(instructionType)
	if !ok {
		s.writeError(w, http.StatusBadRequest, "unknown instruction type")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "read body failed")
		return
	}
	if !json.Valid(body) {
		s.writeError(w, http.StatusBadRequest, "body must be valid JSON")
		return
	}

	raw := ingestion.RawInstruction{
		Subject:   subject,
		Data:      body,
		Timestamp: time.Now(),
		AckFunc:   func() {},
		NakFunc:   func() {},
	}

	select {
	case s.ingestChan <- raw:
		s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
	default:
		s.writeError(w, http.StatusServiceUnavailable, "ingest queue full")
	}
}

// --- helpers ---

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn().Err(err).Msg("response encode failed")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func parseLimit(r *http.Request, def int) int {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return def
	}
	limit, err := strconv.Atoi(v)
	if err != nil || limit <= 0 || limit > 1000 {
		return def
	}
	return limit
}
