package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/uhyunpark/spotmatch/pkg/app/core/ledger"
	"github.com/uhyunpark/spotmatch/pkg/app/core/market"
	"github.com/uhyunpark/spotmatch/pkg/app/core/orderbook"
	"github.com/uhyunpark/spotmatch/pkg/app/spot"
)

// Engine is what the API reads through. Queries go through Execute so they
// serialize with trading commands.
type Engine interface {
	Execute(ctx context.Context, cmd spot.Command) (spot.Reply, bool)
	Markets() []*market.Market
}

// Server handles REST API and WebSocket connections
type Server struct {
	engine  Engine
	router  *mux.Router
	hub     *Hub
	metrics http.Handler
	log     *zap.SugaredLogger
}

// NewServer creates a new API server. metricsHandler may be nil.
func NewServer(engine Engine, hub *Hub, metricsHandler http.Handler, logger *zap.SugaredLogger) *Server {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	s := &Server{
		engine:  engine,
		router:  mux.NewRouter(),
		hub:     hub,
		metrics: metricsHandler,
		log:     logger,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	// API v1 routes
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Market endpoints
	api.HandleFunc("/markets", s.handleGetMarkets).Methods("GET")
	api.HandleFunc("/markets/{symbol}/depth", s.handleGetDepth).Methods("GET")
	api.HandleFunc("/markets/{symbol}/ticker", s.handleGetTicker).Methods("GET")

	// Account endpoints
	api.HandleFunc("/accounts/{userId}/balances", s.handleGetBalances).Methods("GET")
	api.HandleFunc("/accounts/{userId}/orders", s.handleGetOrders).Methods("GET")

	// WebSocket endpoint
	if s.hub != nil {
		s.router.HandleFunc("/ws", s.handleWebSocket)
	}

	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics).Methods("GET")
	}

	// Health check
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler returns the router wrapped with CORS
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "http://localhost:3001"},
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})
	return c.Handler(s.router)
}

// Start serves on addr until ctx is done, then shuts down gracefully
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Infow("api_started", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// ==============================
// REST Handlers
// ==============================

func (s *Server) handleGetMarkets(w http.ResponseWriter, r *http.Request) {
	markets := s.engine.Markets()

	response := make([]MarketInfo, len(markets))
	for i, m := range markets {
		response[i] = MarketInfo{
			Symbol:     m.Symbol,
			BaseAsset:  m.BaseAsset,
			QuoteAsset: m.QuoteAsset,
		}
	}

	respondJSON(w, response)
}

func (s *Server) handleGetDepth(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	if !s.marketExists(symbol) {
		respondError(w, http.StatusNotFound, "market not found", symbol)
		return
	}

	reply, ok := s.execute(r.Context(), spot.GetDepth, spot.MarketRequest{Market: symbol})
	depth, isDepth := reply.Payload.(orderbook.Depth)
	if !ok || !isDepth {
		respondError(w, http.StatusInternalServerError, "depth unavailable", "")
		return
	}

	respondJSON(w, OrderbookSnapshot{
		Symbol:    symbol,
		Bids:      depth.Bids,
		Asks:      depth.Asks,
		Timestamp: time.Now().UnixMilli(),
	})
}

func (s *Server) handleGetTicker(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	if !s.marketExists(symbol) {
		respondError(w, http.StatusNotFound, "market not found", symbol)
		return
	}

	reply, ok := s.execute(r.Context(), spot.GetTicker, spot.MarketRequest{Market: symbol})
	if !ok {
		respondError(w, http.StatusInternalServerError, "ticker unavailable", "")
		return
	}
	respondJSON(w, reply.Payload)
}

func (s *Server) handleGetBalances(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userId"]

	reply, ok := s.execute(r.Context(), spot.GetBalance, spot.BalanceRequest{UserID: userID})
	payload, isBalance := reply.Payload.(spot.BalancePayload)
	if !ok || !isBalance {
		respondError(w, http.StatusInternalServerError, "balances unavailable", "")
		return
	}

	respondJSON(w, balanceInfos(payload.Balances))
}

// handleGetOrders lists resting orders, optionally for one market (?market=)
func (s *Server) handleGetOrders(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userId"]

	var markets []string
	if m := r.URL.Query().Get("market"); m != "" {
		if !s.marketExists(m) {
			respondError(w, http.StatusNotFound, "market not found", m)
			return
		}
		markets = []string{m}
	} else {
		for _, m := range s.engine.Markets() {
			markets = append(markets, m.Symbol)
		}
	}

	response := []OrderInfo{}
	for _, symbol := range markets {
		reply, _ := s.execute(r.Context(), spot.GetOpenOrders, spot.OpenOrdersRequest{UserID: userID, Market: symbol})
		orders, _ := reply.Payload.([]orderbook.Order)
		for _, o := range orders {
			response = append(response, OrderInfo{
				ID:        o.ID,
				Symbol:    symbol,
				Side:      string(o.Side),
				Price:     o.Price,
				Quantity:  o.Quantity,
				Filled:    o.Filled,
				Remaining: o.Remaining(),
			})
		}
	}

	respondJSON(w, response)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// ==============================
// Helper Functions
// ==============================

func (s *Server) execute(ctx context.Context, typ string, payload interface{}) (spot.Reply, bool) {
	cmd, err := spot.NewCommand(typ, payload)
	if err != nil {
		s.log.Warnw("api_encode_failed", "type", typ, "err", err)
		return spot.Reply{}, false
	}
	return s.engine.Execute(ctx, cmd)
}

func (s *Server) marketExists(symbol string) bool {
	for _, m := range s.engine.Markets() {
		if m.Symbol == symbol {
			return true
		}
	}
	return false
}

func balanceInfos(bals ledger.Balances) []BalanceInfo {
	out := make([]BalanceInfo, 0, len(bals))
	for asset, b := range bals {
		out = append(out, BalanceInfo{Asset: asset, Available: b.Available, Locked: b.Locked})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Asset < out[j].Asset })
	return out
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, error string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Message: message,
	})
}
