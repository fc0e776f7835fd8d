package main

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rishav/order-matching-engine/internal/disruptor"
	"github.com/rishav/order-matching-engine/internal/orders"
)

// APIServer exposes order entry and book queries over REST, backed by the
// venue's per-symbol disruptor pipelines.
type APIServer struct {
	venue  *Venue
	router *mux.Router
	logger *zap.Logger
}

// NewAPIServer wires the REST routes against venue.
func NewAPIServer(venue *Venue, logger *zap.Logger) *APIServer {
	s := &APIServer{venue: venue, router: mux.NewRouter(), logger: logger}

	s.router.HandleFunc("/api/trading/orders", s.handlePlaceOrder).Methods(http.MethodPost)
	s.router.HandleFunc("/api/trading/orders/{id}", s.handleCancelOrder).Methods(http.MethodDelete)
	s.router.HandleFunc("/api/trading/orders/{id}", s.handleGetOrder).Methods(http.MethodGet)
	s.router.HandleFunc("/api/trading/orderbook/{symbol}", s.handleOrderBook).Methods(http.MethodGet)
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	return s
}

// ListenAndServe starts the REST listener. Blocks until the listener
// returns.
func (s *APIServer) ListenAndServe(addr string) error {
	s.logger.Info("REST API listening", zap.String("addr", addr))
	return http.ListenAndServe(addr, s.router)
}

// envelope is the uniform response shape for every REST endpoint.
type envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, envelope{Success: false, Error: msg})
}

// placeOrderRequest is the wire shape for POST /api/trading/orders.
type placeOrderRequest struct {
	Symbol        string `json:"symbol"`
	UserID        string `json:"user_id"`
	Side          string `json:"side"`
	Type          string `json:"type"`
	Price         string `json:"price,omitempty"`
	Qty           string `json:"qty"`
	ClientOrderID string `json:"client_order_id,omitempty"`
}

func parseSide(s string) (orders.Side, bool) {
	switch s {
	case "BUY", "buy":
		return orders.SideBuy, true
	case "SELL", "sell":
		return orders.SideSell, true
	default:
		return 0, false
	}
}

func parseOrderType(s string) (orders.OrderType, bool) {
	switch s {
	case "LIMIT", "limit", "":
		return orders.OrderTypeLimit, true
	case "MARKET", "market":
		return orders.OrderTypeMarket, true
	case "IOC", "ioc":
		return orders.OrderTypeIOC, true
	case "FOK", "fok":
		return orders.OrderTypeFOK, true
	default:
		return 0, false
	}
}

func (s *APIServer) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	side, ok := parseSide(req.Side)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid side: "+req.Side)
		return
	}
	orderType, ok := parseOrderType(req.Type)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid order type: "+req.Type)
		return
	}

	qty, err := decimal.NewFromString(req.Qty)
	if err != nil || qty.IsZero() {
		writeError(w, http.StatusBadRequest, "invalid qty: "+req.Qty)
		return
	}

	var price decimal.Decimal
	if orderType == orders.OrderTypeLimit || orderType == orders.OrderTypeIOC || orderType == orders.OrderTypeFOK {
		price, err = decimal.NewFromString(req.Price)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid price: "+req.Price)
			return
		}
	}

	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	order := &orders.Order{
		Symbol:        req.Symbol,
		UserID:        req.UserID,
		ClientOrderID: req.ClientOrderID,
		Side:          side,
		Type:          orderType,
		Price:         price,
		Qty:           qty,
		Timestamp:     orders.Now(),
		Status:        orders.OrderStatusPending,
	}

	if check := s.venue.riskChecker.Check(order); !check.Passed {
		writeJSON(w, http.StatusOK, envelope{
			Success: false,
			Error:   "risk check failed: " + check.Reason,
		})
		return
	}

	resp, err := s.venue.submit(req.Symbol, &disruptor.OrderRequest{
		Type:  disruptor.RequestTypeNewOrder,
		Order: order,
	})
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	if resp.Error != nil {
		writeError(w, http.StatusBadRequest, resp.Error.Error())
		return
	}

	s.venue.riskChecker.UpdatePosition(order.UserID, order.Symbol, order.Side, resp.Result.Order.FilledQty)

	writeJSON(w, http.StatusOK, envelope{Success: resp.Success, Data: resp.Result})
}

func (s *APIServer) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	idStr := mux.Vars(r)["id"]
	orderID, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid order id: "+idStr)
		return
	}

	symbol := r.URL.Query().Get("symbol")
	userID := r.URL.Query().Get("user_id")
	if symbol == "" || userID == "" {
		writeError(w, http.StatusBadRequest, "symbol and user_id query parameters are required")
		return
	}

	resp, err := s.venue.submit(symbol, &disruptor.OrderRequest{
		Type:    disruptor.RequestTypeCancelOrder,
		Symbol:  symbol,
		UserID:  userID,
		OrderID: orderID,
	})
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	if resp.Error != nil {
		writeError(w, http.StatusNotFound, resp.Error.Error())
		return
	}

	writeJSON(w, http.StatusOK, envelope{Success: true, Data: resp.Order})
}

func (s *APIServer) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	idStr := mux.Vars(r)["id"]
	orderID, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid order id: "+idStr)
		return
	}
	symbol := r.URL.Query().Get("symbol")
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol query parameter is required")
		return
	}

	order := s.venue.engine.GetOrder(symbol, orderID)
	if order == nil {
		writeError(w, http.StatusNotFound, "order not found")
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: order})
}

type bookLevelView struct {
	Price string `json:"price"`
	Qty   string `json:"qty"`
}

type orderBookView struct {
	Symbol string          `json:"symbol"`
	Bids   []bookLevelView `json:"bids"`
	Asks   []bookLevelView `json:"asks"`
}

func (s *APIServer) handleOrderBook(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]

	depth := 20
	if d := r.URL.Query().Get("depth"); d != "" {
		if parsed, err := strconv.Atoi(d); err == nil && parsed > 0 {
			depth = parsed
		}
	}

	book := s.venue.engine.GetOrderBook(symbol)
	if book == nil {
		writeError(w, http.StatusNotFound, "unknown symbol: "+symbol)
		return
	}

	view := orderBookView{Symbol: symbol}
	for _, lvl := range book.GetBidDepth(depth) {
		view.Bids = append(view.Bids, bookLevelView{Price: lvl.Price.String(), Qty: lvl.TotalQty.String()})
	}
	for _, lvl := range book.GetAskDepth(depth) {
		view.Asks = append(view.Asks, bookLevelView{Price: lvl.Price.String(), Qty: lvl.TotalQty.String()})
	}

	writeJSON(w, http.StatusOK, envelope{Success: true, Data: view})
}

func (s *APIServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: map[string]string{"status": "ok"}})
}
