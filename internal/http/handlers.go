package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/taxi-dispatch/internal/matcher"
	"github.com/example/taxi-dispatch/internal/models"
	"github.com/example/taxi-dispatch/internal/notify"
	"github.com/example/taxi-dispatch/internal/observability"
	"github.com/example/taxi-dispatch/internal/pricing"
	"github.com/example/taxi-dispatch/internal/storage"
)

// FareHolder places a hold for a quoted fare and returns the provider's
// reference for it.
type FareHolder interface {
	HoldQuote(ctx context.Context, q pricing.Quote, customerID string) (string, error)
}

// Server exposes the quote and dispatch triggers plus the operational
// endpoints (driver locations, zone queues, driver websockets).
type Server struct {
	Pricing   *pricing.Engine
	Matcher   *matcher.Service
	Locations storage.DriverLocations
	Queues    storage.QueueStore
	WSReg     *notify.WSRegistry
	Payments  FareHolder

	logger *slog.Logger
	mux    *mux.Router
}

func NewServer(logger *slog.Logger, p *pricing.Engine, m *matcher.Service, locs storage.DriverLocations, queues storage.QueueStore, wsreg *notify.WSRegistry, holder FareHolder) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		Pricing:   p,
		Matcher:   m,
		Locations: locs,
		Queues:    queues,
		WSReg:     wsreg,
		Payments:  holder,
		logger:    logger,
		mux:       mux.NewRouter(),
	}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/v1/quotes", s.handleQuote).Methods("POST")
	s.mux.HandleFunc("/api/v1/quotes/hold", s.handleQuoteHold).Methods("POST")
	s.mux.HandleFunc("/api/v1/tenants/{tenant_id}/matching/run", s.handleRunPass).Methods("POST")
	s.mux.HandleFunc("/internal/driver/locations", s.handleDriverLocation).Methods("POST")
	s.mux.HandleFunc("/internal/zones/{zone_id}/queue/{driver_id}", s.handleJoinQueue).Methods("POST")
	s.mux.HandleFunc("/internal/zones/{zone_id}/queue/{driver_id}", s.handleLeaveQueue).Methods("DELETE")
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
	s.mux.HandleFunc("/ws/{callsign}", s.handleWS)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	var req pricing.QuoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.TenantID == "" {
		http.Error(w, "tenant_id is required", http.StatusBadRequest)
		return
	}
	start := time.Now()
	q, err := s.Pricing.Quote(r.Context(), req)
	observability.QuoteDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		s.logger.Error("quote failed", "tenant_id", req.TenantID, "error", err)
		http.Error(w, "price unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

// handleQuoteHold prices the request like handleQuote, then places a
// payment hold for the quoted amount. Capture happens after completion,
// through the payment provider directly.
func (s *Server) handleQuoteHold(w http.ResponseWriter, r *http.Request) {
	if s.Payments == nil {
		http.Error(w, "payments not configured", http.StatusServiceUnavailable)
		return
	}
	var body struct {
		pricing.QuoteRequest
		CustomerID string `json:"customer_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if body.TenantID == "" {
		http.Error(w, "tenant_id is required", http.StatusBadRequest)
		return
	}
	q, err := s.Pricing.Quote(r.Context(), body.QuoteRequest)
	if err != nil {
		s.logger.Error("quote failed", "tenant_id", body.TenantID, "error", err)
		http.Error(w, "price unavailable", http.StatusServiceUnavailable)
		return
	}
	holdID, err := s.Payments.HoldQuote(r.Context(), q, body.CustomerID)
	if err != nil {
		s.logger.Error("fare hold failed", "tenant_id", body.TenantID, "error", err)
		http.Error(w, "fare hold failed", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		HoldID string        `json:"hold_id"`
		Quote  pricing.Quote `json:"quote"`
	}{HoldID: holdID, Quote: q})
}

func (s *Server) handleRunPass(w http.ResponseWriter, r *http.Request) {
	tenantID := mux.Vars(r)["tenant_id"]
	report, err := s.Matcher.RunPass(r.Context(), tenantID)
	if err != nil {
		s.logger.Error("matching pass failed", "tenant_id", tenantID, "error", err)
		http.Error(w, "matching pass failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleDriverLocation(w http.ResponseWriter, r *http.Request) {
	var body struct {
		TenantID string       `json:"tenant_id"`
		DriverID string       `json:"driver_id"`
		Loc      models.Coord `json:"loc"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if body.TenantID == "" || body.DriverID == "" {
		http.Error(w, "tenant_id and driver_id are required", http.StatusBadRequest)
		return
	}
	if err := s.Locations.UpsertDriverLocation(r.Context(), body.TenantID, body.DriverID, body.Loc); err != nil {
		s.logger.Error("location upsert failed", "driver_id", body.DriverID, "error", err)
		http.Error(w, "location update failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleJoinQueue(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := s.Queues.JoinQueue(r.Context(), vars["zone_id"], vars["driver_id"], time.Now().UTC()); err != nil {
		s.logger.Error("queue join failed", "zone_id", vars["zone_id"], "driver_id", vars["driver_id"], "error", err)
		http.Error(w, "queue join failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLeaveQueue(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := s.Queues.LeaveQueue(r.Context(), vars["zone_id"], vars["driver_id"]); err != nil {
		s.logger.Error("queue leave failed", "zone_id", vars["zone_id"], "driver_id", vars["driver_id"], "error", err)
		http.Error(w, "queue leave failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

var upgrader = websocket.Upgrader{}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	callsign := mux.Vars(r)["callsign"]
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		http.Error(w, "upgrade failed", http.StatusBadRequest)
		return
	}
	s.WSReg.Add(callsign, conn)
	// The read pump exists to notice the peer going away; inbound frames
	// are discarded. On any read error the session is evicted so future
	// notices fall through to the push path.
	go func() {
		defer func() {
			s.WSReg.Remove(callsign)
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func newID() string { return uuid.NewString() }
