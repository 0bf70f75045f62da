package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/smkim/dexledger/pkg/ledger"
	"github.com/smkim/dexledger/pkg/token"
)

// Server exposes the exchange ledger over REST and streams its events over
// WebSocket. Caller addresses travel in request bodies; signature
// authentication is the wallet layer's concern, not the ledger's.
type Server struct {
	ledger *ledger.Ledger
	tokens *token.Registry
	router *mux.Router
	hub    *Hub
	log    *zap.SugaredLogger
}

func NewServer(l *ledger.Ledger, tokens *token.Registry, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		ledger: l,
		tokens: tokens,
		router: mux.NewRouter(),
		hub:    NewHub(logger.Sugar().Named("ws")),
		log:    logger.Sugar().Named("api"),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// State-changing calls
	api.HandleFunc("/deposits", s.handleDeposit).Methods("POST")
	api.HandleFunc("/withdrawals", s.handleWithdraw).Methods("POST")
	api.HandleFunc("/orders", s.handleMakeOrder).Methods("POST")
	api.HandleFunc("/orders/{id}/cancel", s.handleCancelOrder).Methods("POST")
	api.HandleFunc("/orders/{id}/fill", s.handleFillOrder).Methods("POST")

	// Dev-token helper (approve the exchange before depositing)
	api.HandleFunc("/approvals", s.handleApprove).Methods("POST")

	// Read-only queries
	api.HandleFunc("/exchange", s.handleExchangeInfo).Methods("GET")
	api.HandleFunc("/balances/{token}/{user}", s.handleGetBalance).Methods("GET")
	api.HandleFunc("/orders", s.handleListOrders).Methods("GET")
	api.HandleFunc("/orders/{id}", s.handleGetOrder).Methods("GET")
	api.HandleFunc("/events", s.handleListEvents).Methods("GET")
	api.HandleFunc("/tokens", s.handleListTokens).Methods("GET")

	// WebSocket event stream
	s.router.HandleFunc("/ws", s.handleWebSocket)

	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Start runs the hub, bridges the ledger's event feed into it, and serves
// HTTP until the listener fails.
func (s *Server) Start(addr string) error {
	go s.hub.Run()

	events := make(chan ledger.Event, 256)
	sub := s.ledger.SubscribeEvents(events)
	go func() {
		defer sub.Unsubscribe()
		for ev := range events {
			data, err := json.Marshal(ev)
			if err != nil {
				s.log.Errorw("event_marshal_failed", "err", err)
				continue
			}
			s.hub.Broadcast(data)
		}
	}()

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "http://localhost:3001"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})

	s.log.Infow("server_starting", "addr", addr)
	return http.ListenAndServe(addr, c.Handler(s.router))
}

// ==============================
// State-changing handlers
// ==============================

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid amount", err.Error())
		return
	}
	tok := common.HexToAddress(req.Token)
	user := common.HexToAddress(req.User)

	if err := s.ledger.Deposit(tok, amount, user); err != nil {
		respondLedgerError(w, err)
		return
	}
	respondJSON(w, BalanceInfo{
		Token:   tok.Hex(),
		User:    user.Hex(),
		Balance: s.ledger.BalanceOf(tok, user).String(),
	})
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid amount", err.Error())
		return
	}
	tok := common.HexToAddress(req.Token)
	user := common.HexToAddress(req.User)

	if err := s.ledger.Withdraw(tok, amount, user); err != nil {
		respondLedgerError(w, err)
		return
	}
	respondJSON(w, BalanceInfo{
		Token:   tok.Hex(),
		User:    user.Hex(),
		Balance: s.ledger.BalanceOf(tok, user).String(),
	})
}

func (s *Server) handleMakeOrder(w http.ResponseWriter, r *http.Request) {
	var req MakeOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	amountGet, err := parseAmount(req.AmountGet)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid amountGet", err.Error())
		return
	}
	amountGive, err := parseAmount(req.AmountGive)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid amountGive", err.Error())
		return
	}

	id, err := s.ledger.MakeOrder(
		common.HexToAddress(req.TokenGet), amountGet,
		common.HexToAddress(req.TokenGive), amountGive,
		common.HexToAddress(req.User),
	)
	if err != nil {
		respondLedgerError(w, err)
		return
	}
	respondJSON(w, MakeOrderResponse{ID: id})
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}
	var req OrderActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if err := s.ledger.CancelOrder(id, common.HexToAddress(req.User)); err != nil {
		respondLedgerError(w, err)
		return
	}
	s.respondOrder(w, id)
}

func (s *Server) handleFillOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}
	var req OrderActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if err := s.ledger.FillOrder(id, common.HexToAddress(req.User)); err != nil {
		respondLedgerError(w, err)
		return
	}
	s.respondOrder(w, id)
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	var req ApproveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid amount", err.Error())
		return
	}
	if err := s.tokens.Approve(common.HexToAddress(req.Token), common.HexToAddress(req.Owner), amount); err != nil {
		respondError(w, http.StatusUnprocessableEntity, "approve failed", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ==============================
// Read-only handlers
// ==============================

func (s *Server) handleExchangeInfo(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, ExchangeInfo{
		FeeAccount: s.ledger.FeeAccount().Hex(),
		FeePercent: s.ledger.FeePercent(),
		OrderCount: s.ledger.OrderCount(),
	})
}

func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	tok := common.HexToAddress(vars["token"])
	user := common.HexToAddress(vars["user"])
	respondJSON(w, BalanceInfo{
		Token:   tok.Hex(),
		User:    user.Hex(),
		Balance: s.ledger.BalanceOf(tok, user).String(),
	})
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	orders := s.ledger.Orders()
	out := make([]OrderInfo, len(orders))
	for i, o := range orders {
		out[i] = s.orderInfo(o)
	}
	respondJSON(w, out)
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}
	s.respondOrder(w, id)
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	var from uint64
	limit := 1000
	if v := r.URL.Query().Get("from"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid from", err.Error())
			return
		}
		from = n
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "invalid limit", "")
			return
		}
		limit = n
	}
	events, err := s.ledger.Events(from, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "event replay failed", err.Error())
		return
	}
	if events == nil {
		events = []ledger.Event{}
	}
	respondJSON(w, events)
}

func (s *Server) handleListTokens(w http.ResponseWriter, r *http.Request) {
	tokens := s.tokens.List()
	out := make([]TokenInfo, len(tokens))
	for i, t := range tokens {
		out[i] = TokenInfo{
			Address:     t.Address.Hex(),
			Name:        t.Name,
			Symbol:      t.Symbol,
			Decimals:    t.Decimals,
			TotalSupply: t.TotalSupply.String(),
		}
	}
	respondJSON(w, out)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warnw("ws_upgrade_failed", "err", err)
		return
	}
	client := &Client{
		hub:    s.hub,
		conn:   conn,
		send:   make(chan []byte, 256),
		remote: r.RemoteAddr,
	}
	s.hub.register <- client
	go client.writePump()
	go client.readPump()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// ==============================
// Helpers
// ==============================

func (s *Server) respondOrder(w http.ResponseWriter, id uint64) {
	o, err := s.ledger.Order(id)
	if err != nil {
		respondLedgerError(w, err)
		return
	}
	respondJSON(w, s.orderInfo(o))
}

func (s *Server) orderInfo(o *ledger.Order) OrderInfo {
	status := "open"
	switch {
	case s.ledger.OrderFilled(o.ID):
		status = "filled"
	case s.ledger.OrderCancelled(o.ID):
		status = "cancelled"
	}
	return OrderInfo{
		ID:         o.ID,
		Creator:    o.Creator.Hex(),
		TokenGet:   o.TokenGet.Hex(),
		AmountGet:  o.AmountGet.String(),
		TokenGive:  o.TokenGive.Hex(),
		AmountGive: o.AmountGive.String(),
		Timestamp:  o.Timestamp,
		Status:     status,
	}
}

func orderID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid order id", err.Error())
		return 0, false
	}
	return id, true
}

func respondJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg, details string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: msg, Details: details})
}

// respondLedgerError maps the ledger's error taxonomy onto HTTP statuses.
func respondLedgerError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ledger.ErrOrderNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ledger.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, ledger.ErrAlreadyFilled), errors.Is(err, ledger.ErrAlreadyCancelled):
		status = http.StatusConflict
	case errors.Is(err, ledger.ErrInsufficientBalance), errors.Is(err, ledger.ErrTransferFailed):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, ledger.ErrInvalidArgument):
		status = http.StatusBadRequest
	}
	respondError(w, status, "operation rejected", err.Error())
}
