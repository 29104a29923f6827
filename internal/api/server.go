// Package api exposes the engine's Gateway over HTTP, per SPEC_FULL §6:
// a JSON REST surface for order submission/cancellation/deposit and account
// queries, plus a WebSocket stream of trade and top-of-book events.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/shopspring/decimal"

	"github.com/atharvParlikar/perpetra/internal/account"
	"github.com/atharvParlikar/perpetra/internal/engine"
	"github.com/atharvParlikar/perpetra/internal/orderbook"
)

// Logger is the narrow logging interface the API needs, satisfied by
// *zap.SugaredLogger.
type Logger interface {
	Infow(msg string, kv ...interface{})
	Errorw(msg string, kv ...interface{})
}

// Server wires an engine.Gateway to a gorilla/mux router and a WebSocket
// hub, in the shape of the teacher's own pkg/api.Server.
type Server struct {
	eng    *engine.Engine
	auth   *Authenticator
	router *mux.Router
	hub    *Hub
	log    Logger
}

// NewServer wraps eng with a router bound to hub — hub must be the same
// instance passed to TradeBroadcaster/TopOfBookBroadcaster when eng was
// constructed, since Engine's trade/top-of-book callbacks are wired at
// construction time, before a Server can exist to own them.
func NewServer(eng *engine.Engine, hub *Hub, auth *Authenticator, log Logger) *Server {
	s := &Server{
		eng:    eng,
		auth:   auth,
		router: mux.NewRouter(),
		hub:    hub,
		log:    log,
	}
	s.setupRoutes()
	return s
}

// TradeBroadcaster and TopOfBookBroadcaster build the two callbacks
// engine.New needs, closing over hub so the engine can be assembled before
// any Server exists.
func TradeBroadcaster(hub *Hub) func(orderbook.Trade) {
	return func(t orderbook.Trade) {
		hub.Broadcast(TradeEventFrame{
			Type:      "trade",
			Price:     t.Price.String(),
			Qty:       t.Qty.String(),
			MakerSide: t.MakerSide.String(),
			TakerSide: t.TakerSide.String(),
			Timestamp: t.Timestamp.UnixMilli(),
		})
	}
}

func TopOfBookBroadcaster(hub *Hub) func(engine.TopOfBookUpdate) {
	return func(u engine.TopOfBookUpdate) {
		frame := TopOfBookFrame{Type: "top_of_book"}
		if u.BestBid != nil {
			v := u.BestBid.String()
			frame.BestBid = &v
		}
		if u.BestAsk != nil {
			v := u.BestAsk.String()
			frame.BestAsk = &v
		}
		hub.Broadcast(frame)
	}
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/order", s.handleSubmitOrder).Methods("POST")
	s.router.HandleFunc("/order/cancel", s.handleCancelOrder).Methods("POST")
	s.router.HandleFunc("/account/deposit", s.handleDeposit).Methods("POST")
	s.router.HandleFunc("/account/{address}", s.handleGetAccount).Methods("GET")
	s.router.HandleFunc("/market", s.handleGetMarket).Methods("GET")
	s.router.HandleFunc("/orderbook", s.handleGetOrderBook).Methods("GET")
	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler returns the CORS-wrapped router, ready to hand to http.Server or
// http.ListenAndServe.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: false,
	})
	return c.Handler(s.router)
}

// ListenAndServe starts the hub and blocks serving HTTP on addr.
func (s *Server) ListenAndServe(addr string) error {
	stop := make(chan struct{})
	go s.hub.Run(stop)
	defer close(stop)

	s.log.Infow("api server starting", "addr", addr)
	return http.ListenAndServe(addr, s.Handler())
}

// ==============================
// REST Handlers
// ==============================

func (s *Server) handleSubmitOrder(w http.ResponseWriter, r *http.Request) {
	var req SubmitOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	owner, err := s.auth.Verify(req.JWT)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "auth error", err.Error())
		return
	}

	side, err := parseSide(req.Side)
	if err != nil {
		respondError(w, http.StatusBadRequest, "validation error", err.Error())
		return
	}
	kind, err := parseKind(req.Type)
	if err != nil {
		respondError(w, http.StatusBadRequest, "validation error", err.Error())
		return
	}

	qty, err := decimal.NewFromString(req.Amount)
	if err != nil {
		respondError(w, http.StatusBadRequest, "validation error", "amount: "+err.Error())
		return
	}

	price := decimal.Zero
	if req.Price != "" {
		price, err = decimal.NewFromString(req.Price)
		if err != nil {
			respondError(w, http.StatusBadRequest, "validation error", "price: "+err.Error())
			return
		}
	}

	outcome, err := s.eng.Gateway.SubmitOrder(engine.OrderRequest{
		Owner: owner, Side: side, Kind: kind, Price: price, Qty: qty, Leverage: req.Leverage,
	})
	if err != nil {
		respondEngineError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, SubmitOrderResponse{
		OrderID: outcome.OrderID.String(),
		Status:  submitStatusString(outcome.Status),
		Fills:   len(outcome.Fills),
	})
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	var req CancelOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	owner, err := s.auth.Verify(req.JWT)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "auth error", err.Error())
		return
	}

	orderID, err := uuid.Parse(req.OrderID)
	if err != nil {
		respondError(w, http.StatusBadRequest, "validation error", "order_id: "+err.Error())
		return
	}

	refunded, err := s.eng.Gateway.CancelOrder(owner, orderID)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, CancelOrderResponse{Refunded: refunded.String()})
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	owner, err := s.auth.Verify(req.JWT)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "auth error", err.Error())
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || !amount.IsPositive() {
		respondError(w, http.StatusBadRequest, "validation error", "amount must be a positive decimal")
		return
	}

	s.eng.Gateway.Deposit(owner, amount)
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	addressStr := mux.Vars(r)["address"]
	if !common.IsHexAddress(addressStr) {
		respondError(w, http.StatusBadRequest, "validation error", "invalid address")
		return
	}
	owner := common.HexToAddress(addressStr)

	l := s.eng.Accounts().SnapshotLedger(owner)
	mark := s.eng.MarkPrice()

	pos := PositionInfo{Size: "0", Margin: "0", MarkPrice: mark.String(), UnrealizedPnL: "0", Equity: "0"}
	if l.Position != nil && l.Position.IsOpen() {
		pos = PositionInfo{
			Size:          l.Position.Size.String(),
			EntryPrice:    l.Position.EntryPrice.String(),
			Margin:        l.Position.Margin.String(),
			MarkPrice:     mark.String(),
			UnrealizedPnL: l.Position.UnrealizedPnL(mark).String(),
			Equity:        l.Position.Equity(mark).String(),
		}
	}

	respondJSON(w, http.StatusOK, AccountInfo{
		Address:        owner.Hex(),
		Free:           l.Free.String(),
		TotalReserved:  l.TotalReserved().String(),
		RealizedPnL:    l.RealizedPnL.String(),
		FundingPaid:    l.FundingPaid.String(),
		FundingRecvd:   l.FundingRecvd.String(),
		InitialDeposit: l.InitialDeposit.String(),
		Position:       pos,
	})
}

func (s *Server) handleGetMarket(w http.ResponseWriter, r *http.Request) {
	p := s.eng.Params()
	respondJSON(w, http.StatusOK, MarketInfo{
		Symbol:                    p.Symbol,
		BaseAsset:                 p.BaseAsset,
		QuoteAsset:                p.QuoteAsset,
		TickSize:                  p.TickSize.String(),
		LotSize:                   p.LotSize.String(),
		MaxLeverage:               p.MaxLeverage,
		MaintenanceMarginFraction: p.MaintenanceMarginFraction.String(),
		MarkPrice:                 s.eng.MarkPrice().String(),
	})
}

// handleGetOrderBook serves top-of-book only; Non-goals exclude depth
// snapshots beyond that.
func (s *Server) handleGetOrderBook(w http.ResponseWriter, r *http.Request) {
	top := s.eng.Book().TopOfBook()
	frame := TopOfBookFrame{Type: "top_of_book"}
	if top.BestBid != nil {
		v := top.BestBid.String()
		frame.BestBid = &v
	}
	if top.BestAsk != nil {
		v := top.BestAsk.String()
		frame.BestAsk = &v
	}
	respondJSON(w, http.StatusOK, frame)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ==============================
// Helpers
// ==============================

func parseSide(s string) (orderbook.Side, error) {
	switch s {
	case "bid", "buy":
		return orderbook.Bid, nil
	case "ask", "sell":
		return orderbook.Ask, nil
	default:
		return 0, errors.New("side must be \"bid\" or \"ask\"")
	}
}

func parseKind(k string) (orderbook.Kind, error) {
	switch k {
	case "limit":
		return orderbook.Limit, nil
	case "market":
		return orderbook.Market, nil
	default:
		return 0, errors.New("type must be \"limit\" or \"market\"")
	}
}

func submitStatusString(s orderbook.SubmitStatus) string {
	switch s {
	case orderbook.Resting:
		return "resting"
	case orderbook.Filled:
		return "filled"
	default:
		return "rejected"
	}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, kind, message string) {
	respondJSON(w, status, ErrorResponse{Error: kind, Message: message})
}

// respondEngineError maps a Gateway error to spec §7's error-kind
// taxonomy and the matching HTTP status.
func respondEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, account.ErrInsufficientCollateral):
		respondError(w, http.StatusUnprocessableEntity, "insufficient_collateral", err.Error())
	case errors.Is(err, engine.ErrUnknownOrder):
		respondError(w, http.StatusNotFound, "unknown_order", err.Error())
	case errors.Is(err, engine.ErrNotOwner):
		respondError(w, http.StatusForbidden, "not_owner", err.Error())
	case errors.Is(err, engine.ErrValidation):
		respondError(w, http.StatusBadRequest, "validation", err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "internal", err.Error())
	}
}
