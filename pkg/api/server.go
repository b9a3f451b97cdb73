package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/uhyunpark/fillguard/pkg/chain"
	"github.com/uhyunpark/fillguard/pkg/numeric"
	"github.com/uhyunpark/fillguard/pkg/order"
	"github.com/uhyunpark/fillguard/pkg/relay"
	"github.com/uhyunpark/fillguard/pkg/storage"
	"github.com/uhyunpark/fillguard/pkg/util"
	"github.com/uhyunpark/fillguard/pkg/validation"
)

// OrderStateReader reads the exchange's per-order counters. Both the RPC
// exchange binding and the local ledger implement it.
type OrderStateReader interface {
	FilledTakerAmount(ctx context.Context, orderHash common.Hash, block *big.Int) (*big.Int, error)
	CancelledTakerAmount(ctx context.Context, orderHash common.Hash, block *big.Int) (*big.Int, error)
	UnavailableTakerAmount(ctx context.Context, orderHash common.Hash, block *big.Int) (*big.Int, error)
}

// OrderRelay gossips submitted orders to peers.
type OrderRelay interface {
	PublishOrder(ctx context.Context, so *order.SignedOrder) (common.Hash, error)
	Pool() *relay.Pool
}

type Config struct {
	Validator *validation.Validator
	State     OrderStateReader
	// Verifier checks submitted orders when no relay is attached.
	Verifier validation.SignatureVerifier
	Store    *storage.Store  // optional
	Settler  Settler         // optional; enables the /ledger routes
	Journal  storage.Journal // optional
	Origins  []string
	Logger   *zap.SugaredLogger
}

// Server handles REST API and WebSocket connections
type Server struct {
	cfg     Config
	relay   OrderRelay
	router  *mux.Router
	hub     *Hub
	journal storage.Journal
	log     *zap.SugaredLogger
}

// NewServer creates a new API server
func NewServer(cfg Config) *Server {
	if cfg.Journal == nil {
		cfg.Journal = storage.NewNopJournal()
	}
	if len(cfg.Origins) == 0 {
		cfg.Origins = []string{"http://localhost:3000", "http://localhost:3001"}
	}
	log := util.OrNop(cfg.Logger)
	s := &Server{
		cfg:     cfg,
		router:  mux.NewRouter(),
		hub:     NewHub(log),
		journal: cfg.Journal,
		log:     log,
	}
	s.setupRoutes()
	return s
}

// AttachRelay routes order submission through r. Call before Start.
func (s *Server) AttachRelay(r OrderRelay) {
	s.relay = r
}

func (s *Server) setupRoutes() {
	// API v1 routes
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Hashing and validation
	api.HandleFunc("/orders/hash", s.handleHashOrder).Methods("POST")
	api.HandleFunc("/orders/validate/fill", s.handleValidateFill).Methods("POST")
	api.HandleFunc("/orders/validate/fill-or-kill", s.handleValidateFillOrKill).Methods("POST")
	api.HandleFunc("/orders/validate/cancel", s.handleValidateCancel).Methods("POST")
	api.HandleFunc("/orders/validate/batch-fill", s.handleValidateBatchFill).Methods("POST")
	api.HandleFunc("/orders/validate/fill-up-to", s.handleValidateFillUpTo).Methods("POST")
	api.HandleFunc("/orders/validate/batch-cancel", s.handleValidateBatchCancel).Methods("POST")
	api.HandleFunc("/rounding-error", s.handleRoundingError).Methods("GET")

	// Order state and submission
	api.HandleFunc("/orders/{hash}/state", s.handleOrderState).Methods("GET")
	api.HandleFunc("/orders", s.handleSubmitOrder).Methods("POST")
	api.HandleFunc("/orders", s.handleListOrders).Methods("GET")

	// Local ledger settlement
	if s.cfg.Settler != nil {
		s.setupLedgerRoutes(api, s.cfg.Settler)
	}

	// WebSocket endpoint
	s.router.HandleFunc("/ws", s.handleWebSocket)

	// Health check
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler returns the router wrapped with CORS.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   s.cfg.Origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})
	return c.Handler(s.router)
}

// Start serves on addr until ctx is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	go s.hub.Run(ctx)

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	s.log.Infow("api_starting", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ==============================
// REST Handlers
// ==============================

func (s *Server) handleHashOrder(w http.ResponseWriter, r *http.Request) {
	var req order.OrderPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	o, err := req.ToOrder()
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid order", err.Error())
		return
	}
	hash, err := order.HashHex(o)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid order", err.Error())
		return
	}
	respondJSON(w, OrderHashResponse{OrderHash: hash})
}

func (s *Server) handleRoundingError(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	numerator, err := parseAmount("numerator", q.Get("numerator"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid query", err.Error())
		return
	}
	denominator, err := parseAmount("denominator", q.Get("denominator"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid query", err.Error())
		return
	}
	target, err := parseAmount("target", q.Get("target"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid query", err.Error())
		return
	}
	isErr, err := numeric.IsRoundingError(numerator, denominator, target)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid query", err.Error())
		return
	}
	respondJSON(w, RoundingErrorResponse{IsRoundingError: isErr})
}

func (s *Server) handleOrderState(w http.ResponseWriter, r *http.Request) {
	hash, err := order.ParseOrderHash(mux.Vars(r)["hash"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid order hash", err.Error())
		return
	}
	block, err := parseBlock(r.URL.Query().Get("block"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid block", err.Error())
		return
	}

	ctx := r.Context()
	filled, err := s.cfg.State.FilledTakerAmount(ctx, hash, block)
	if err != nil {
		s.respondRejection(w, err)
		return
	}
	cancelled, err := s.cfg.State.CancelledTakerAmount(ctx, hash, block)
	if err != nil {
		s.respondRejection(w, err)
		return
	}
	unavailable, err := s.cfg.State.UnavailableTakerAmount(ctx, hash, block)
	if err != nil {
		s.respondRejection(w, err)
		return
	}

	resp := OrderStateResponse{
		OrderHash:                   hash.Hex(),
		FilledTakerTokenAmount:      filled.String(),
		CancelledTakerTokenAmount:   cancelled.String(),
		UnavailableTakerTokenAmount: unavailable.String(),
	}
	if so := s.lookupOrder(hash); so != nil {
		remaining := new(big.Int).Sub(so.TakerTokenAmount, unavailable)
		if remaining.Sign() < 0 {
			remaining.SetInt64(0)
		}
		resp.RemainingTakerTokenAmount = remaining.String()
	}
	respondJSON(w, resp)
}

func (s *Server) lookupOrder(hash common.Hash) *order.SignedOrder {
	if s.relay != nil {
		if so, ok := s.relay.Pool().Get(hash); ok {
			return so
		}
	}
	if s.cfg.Store == nil {
		return nil
	}
	so, err := s.cfg.Store.LoadOrder(hash)
	if err != nil {
		s.log.Warnw("order_lookup_failed", "order_hash", hash.Hex(), "err", err)
		return nil
	}
	return so
}

func (s *Server) handleSubmitOrder(w http.ResponseWriter, r *http.Request) {
	var req order.SignedOrderPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	so, err := req.ToSignedOrder()
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid order", err.Error())
		return
	}
	hash, err := order.HashOrder(&so.Order)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid order", err.Error())
		return
	}
	if s.lookupOrder(hash) != nil {
		respondJSON(w, SubmitOrderResponse{Status: "duplicate", OrderHash: hash.Hex()})
		return
	}

	ctx := r.Context()
	if s.relay != nil {
		// Admission inside the relay calls back into OrderAdmitted.
		if _, err := s.relay.PublishOrder(ctx, so); err != nil {
			s.respondRejection(w, err)
			return
		}
	} else {
		if s.cfg.Verifier == nil {
			respondError(w, http.StatusServiceUnavailable, "order submission disabled", "")
			return
		}
		ok, err := s.cfg.Verifier.IsValidSignature(ctx, hash, so.ECSignature, so.Maker)
		if err != nil {
			s.respondRejection(w, err)
			return
		}
		if !ok {
			s.respondRejection(w, validation.ErrInvalidSignature)
			return
		}
		s.OrderAdmitted(hash, so)
	}

	s.logTransaction("ORDER_SUBMIT", map[string]interface{}{
		"order_hash": hash.Hex(),
		"maker":      so.Maker.Hex(),
	})
	respondJSON(w, SubmitOrderResponse{Status: "submitted", OrderHash: hash.Hex()})
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "invalid limit", v)
			return
		}
		limit = n
	}

	response := []OrderEntry{}
	if s.relay != nil {
		for _, e := range s.relay.Pool().List(limit) {
			response = append(response, OrderEntry{OrderHash: e.Hash.Hex(), SignedOrder: order.FromSignedOrder(e.Order)})
		}
		respondJSON(w, response)
		return
	}
	if s.cfg.Store != nil {
		orders, err := s.cfg.Store.LoadOrders()
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to load orders", err.Error())
			return
		}
		for _, so := range orders {
			if limit > 0 && len(response) == limit {
				break
			}
			hash, err := order.HashOrder(&so.Order)
			if err != nil {
				continue
			}
			response = append(response, OrderEntry{OrderHash: hash.Hex(), SignedOrder: order.FromSignedOrder(so)})
		}
	}
	respondJSON(w, response)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// ==============================
// Broadcast Methods
// ==============================

// OrderAdmitted stores and broadcasts a newly accepted order. It is the
// relay's admission hook.
func (s *Server) OrderAdmitted(hash common.Hash, so *order.SignedOrder) {
	if s.cfg.Store != nil {
		if _, err := s.cfg.Store.SaveOrder(so); err != nil {
			s.log.Warnw("order_store_failed", "order_hash", hash.Hex(), "err", err)
		}
	}
	update := OrderUpdate{
		Type:        "order",
		OrderHash:   hash.Hex(),
		SignedOrder: order.FromSignedOrder(so),
	}
	s.hub.BroadcastToChannel("orders", update)
	s.hub.BroadcastToChannel("order:"+hash.Hex(), update)
}

// PublishEvent pushes an exchange event to WebSocket subscribers.
func (s *Server) PublishEvent(ev chain.Event) {
	var (
		channel string
		update  interface{}
	)
	switch e := ev.(type) {
	case *chain.LogFill:
		channel = "fills"
		update = FillUpdate{
			Type:                   "fill",
			OrderHash:              e.Hash().Hex(),
			Maker:                  e.Maker.Hex(),
			Taker:                  e.Taker.Hex(),
			FilledMakerTokenAmount: e.FilledMakerTokenAmount.String(),
			FilledTakerTokenAmount: e.FilledTakerTokenAmount.String(),
			PaidMakerFee:           e.PaidMakerFee.String(),
			PaidTakerFee:           e.PaidTakerFee.String(),
		}
	case *chain.LogCancel:
		channel = "cancels"
		update = CancelUpdate{
			Type:                      "cancel",
			OrderHash:                 e.Hash().Hex(),
			Maker:                     e.Maker.Hex(),
			CancelledMakerTokenAmount: e.CancelledMakerTokenAmount.String(),
			CancelledTakerTokenAmount: e.CancelledTakerTokenAmount.String(),
		}
	case *chain.LogError:
		channel = "errors"
		kind, ok := e.Kind()
		msg := string(kind)
		if !ok {
			msg = fmt.Sprintf("UNKNOWN_ERROR_%d", e.ErrorId)
		}
		update = ErrorUpdate{Type: "error", OrderHash: e.Hash().Hex(), Error: msg}
	default:
		return
	}
	s.hub.BroadcastToChannel(channel, update)
	s.hub.BroadcastToChannel("order:"+ev.Hash().Hex(), update)
}

// ==============================
// Helper Functions
// ==============================

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

// respondRejection maps a validation kind to 422 and anything else to a
// failed upstream read.
func (s *Server) respondRejection(w http.ResponseWriter, err error) {
	if kind, ok := validation.AsExchangeContractErr(err); ok {
		respondError(w, http.StatusUnprocessableEntity, string(kind), "")
		return
	}
	s.log.Warnw("state_read_failed", "err", err)
	respondError(w, http.StatusBadGateway, "state read failed", err.Error())
}

// logTransaction writes a submission event to the journal
func (s *Server) logTransaction(eventType string, data map[string]interface{}) {
	entry := map[string]interface{}{
		"timestamp": time.Now().Format(time.RFC3339),
		"event":     eventType,
		"data":      data,
	}
	jsonData, err := json.Marshal(entry)
	if err != nil {
		s.log.Warnw("journal_marshal_failed", "err", err)
		return
	}
	s.journal.Append(string(jsonData))
}

func parseAmount(field, v string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(v, 10)
	if !ok || n.Sign() < 0 || !numeric.FitsUint256(n) {
		return nil, fmt.Errorf("invalid %s: %q", field, v)
	}
	return n, nil
}

func parseAmounts(field string, vs []string) ([]*big.Int, error) {
	out := make([]*big.Int, len(vs))
	for i, v := range vs {
		n, err := parseAmount(fmt.Sprintf("%s[%d]", field, i), v)
		if err != nil {
			return nil, err
		}
		out[i] = n
	}
	return out, nil
}

func parseAddress(field, v string) (common.Address, error) {
	if !common.IsHexAddress(v) {
		return common.Address{}, fmt.Errorf("invalid %s: %q", field, v)
	}
	return common.HexToAddress(v), nil
}

// parseBlock returns nil (latest) for an empty string.
func parseBlock(v string) (*big.Int, error) {
	if v == "" {
		return nil, nil
	}
	return parseAmount("block", v)
}
