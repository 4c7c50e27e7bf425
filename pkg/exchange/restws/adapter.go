// Package restws is a generic REST+WebSocket Exchange Adapter
// implementation. Per spec.md §1, per-venue wire format details are
// assumed abstracted away by the Exchange Adapter contract; this package
// is the illustrative concrete adapter that contract implies, built the
// way the teacher's coinbase/binance/bitget adapter fragments are built
// (a thin REST client plus a stream goroutine translating venue messages
// into the canonical types.* model), but kept venue-agnostic: the JSON
// shapes below are this adapter's own wire schema, configured per venue
// instance rather than hard-coded to one real exchange.
package restws

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/quantcore/permaker/pkg/exchange"
	"github.com/quantcore/permaker/pkg/fixedpoint"
	"github.com/quantcore/permaker/pkg/types"
)

// SymbolMap is the adapter's explicit canonical<->venue symbol table
// (spec.md §4.1 normalize_symbol/denormalize_symbol).
type SymbolMap map[types.Symbol]string

// Config configures one venue instance of the generic adapter.
type Config struct {
	VenueID    string
	BaseURL    string
	StreamURL  string
	APIKey     string
	APISecret  string
	Symbols    SymbolMap
	HTTPTimeout time.Duration
}

// Adapter is a REST+WebSocket implementation of exchange.Adapter.
type Adapter struct {
	cfg    Config
	client *resty.Client
	log    *logrus.Entry

	mu           sync.RWMutex
	venueToLocal map[string]types.Symbol

	stream     *Stream
	streamOnce sync.Once
}

var _ exchange.Adapter = (*Adapter)(nil)

func New(cfg Config, log *logrus.Entry) *Adapter {
	if cfg.HTTPTimeout == 0 {
		cfg.HTTPTimeout = 5 * time.Second
	}

	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.HTTPTimeout).
		SetRetryCount(3).
		SetRetryWaitTime(100 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		SetHeader("X-API-KEY", cfg.APIKey)

	venueToLocal := make(map[string]types.Symbol, len(cfg.Symbols))
	for local, venue := range cfg.Symbols {
		venueToLocal[venue] = local
	}

	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	return &Adapter{
		cfg:          cfg,
		client:       client,
		log:          log.WithField("venue", cfg.VenueID),
		venueToLocal: venueToLocal,
	}
}

func (a *Adapter) VenueID() string { return a.cfg.VenueID }

func (a *Adapter) Connect(ctx context.Context) error {
	_, err := a.client.R().SetContext(ctx).Get("/ping")
	if err != nil {
		return exchange.NewAdapterError(exchange.ErrNetwork, "connect", err)
	}
	return nil
}

func (a *Adapter) Disconnect(ctx context.Context) error {
	return a.StopStream(ctx)
}

func (a *Adapter) HealthCheck(ctx context.Context) exchange.HealthStatus {
	start := time.Now()
	resp, err := a.client.R().SetContext(ctx).Get("/ping")
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return exchange.HealthStatus{Healthy: false, LatencyMs: latency, Err: err}
	}
	if resp.IsError() {
		return exchange.HealthStatus{Healthy: false, LatencyMs: latency, Err: fmt.Errorf("ping status %d", resp.StatusCode())}
	}
	return exchange.HealthStatus{Healthy: true, LatencyMs: latency}
}

type orderbookLevelDTO struct {
	Price  string `json:"price"`
	Volume string `json:"volume"`
}

type orderbookDTO struct {
	Symbol string              `json:"symbol"`
	Bids   []orderbookLevelDTO `json:"bids"`
	Asks   []orderbookLevelDTO `json:"asks"`
}

func toPriceVolumeSlice(levels []orderbookLevelDTO) types.PriceVolumeSlice {
	out := make(types.PriceVolumeSlice, 0, len(levels))
	for _, l := range levels {
		price, err := fixedpoint.NewFromString(l.Price)
		if err != nil {
			continue
		}
		vol, err := fixedpoint.NewFromString(l.Volume)
		if err != nil {
			continue
		}
		out = append(out, types.PriceVolume{Price: price, Volume: vol})
	}
	return out
}

func (a *Adapter) GetOrderbook(ctx context.Context, symbol types.Symbol, depth int) (*types.Orderbook, error) {
	var dto orderbookDTO
	resp, err := a.client.R().
		SetContext(ctx).
		SetQueryParam("symbol", a.DenormalizeSymbol(symbol)).
		SetQueryParam("depth", fmt.Sprintf("%d", depth)).
		SetResult(&dto).
		Get("/orderbook")
	if err != nil {
		return nil, exchange.NewAdapterError(exchange.ErrNetwork, "get_orderbook", err)
	}
	if resp.IsError() {
		return nil, classifyHTTPError("get_orderbook", resp.StatusCode())
	}

	return &types.Orderbook{
		Symbol:    symbol,
		Bids:      toPriceVolumeSlice(dto.Bids),
		Asks:      toPriceVolumeSlice(dto.Asks),
		Timestamp: time.Now(),
	}, nil
}

type balanceDTO struct {
	Currency  string `json:"currency"`
	Available string `json:"available"`
	Locked    string `json:"locked"`
}

func (a *Adapter) GetBalance(ctx context.Context) (map[string]types.Balance, error) {
	var dtos []balanceDTO
	resp, err := a.client.R().SetContext(ctx).SetResult(&dtos).Get("/balances")
	if err != nil {
		return nil, exchange.NewAdapterError(exchange.ErrNetwork, "get_balance", err)
	}
	if resp.IsError() {
		return nil, classifyHTTPError("get_balance", resp.StatusCode())
	}

	out := make(map[string]types.Balance, len(dtos))
	for _, d := range dtos {
		avail, _ := fixedpoint.NewFromString(d.Available)
		locked, _ := fixedpoint.NewFromString(d.Locked)
		out[d.Currency] = types.Balance{Currency: d.Currency, Available: avail, Locked: locked}
	}
	return out, nil
}

type positionDTO struct {
	Symbol string `json:"symbol"`
	Qty    string `json:"qty"`
}

func (a *Adapter) GetPositions(ctx context.Context, symbol types.Symbol) ([]types.Position, error) {
	var dtos []positionDTO
	req := a.client.R().SetContext(ctx).SetResult(&dtos)
	if symbol != "" {
		req = req.SetQueryParam("symbol", a.DenormalizeSymbol(symbol))
	}
	resp, err := req.Get("/positions")
	if err != nil {
		return nil, exchange.NewAdapterError(exchange.ErrNetwork, "get_positions", err)
	}
	if resp.IsError() {
		return nil, classifyHTTPError("get_positions", resp.StatusCode())
	}

	out := make([]types.Position, 0, len(dtos))
	for _, d := range dtos {
		qty, _ := fixedpoint.NewFromString(d.Qty)
		out = append(out, types.Position{VenueID: a.cfg.VenueID, Symbol: a.NormalizeSymbol(d.Symbol), Qty: qty})
	}
	return out, nil
}

type placeOrderRequestDTO struct {
	Symbol        string `json:"symbol"`
	Side          string `json:"side"`
	Type          string `json:"type"`
	Quantity      string `json:"quantity"`
	Price         string `json:"price,omitempty"`
	TimeInForce   string `json:"timeInForce,omitempty"`
	ReduceOnly    bool   `json:"reduceOnly,omitempty"`
	PostOnly      bool   `json:"postOnly,omitempty"`
	ClientOrderID string `json:"clientOrderId"`
}

type orderDTO struct {
	ExchangeOrderID  string `json:"orderId"`
	ClientOrderID    string `json:"clientOrderId"`
	Symbol           string `json:"symbol"`
	Side             string `json:"side"`
	Type             string `json:"type"`
	Price            string `json:"price"`
	Quantity         string `json:"quantity"`
	CumulativeFilled string `json:"cumulativeFilled"`
	Status           string `json:"status"`
	ReduceOnly       bool   `json:"reduceOnly"`
	PostOnly         bool   `json:"postOnly"`
}

func (a *Adapter) toGlobalOrder(d orderDTO) types.Order {
	price, _ := fixedpoint.NewFromString(d.Price)
	qty, _ := fixedpoint.NewFromString(d.Quantity)
	filled, _ := fixedpoint.NewFromString(d.CumulativeFilled)
	return types.Order{
		ExchangeOrderID:  d.ExchangeOrderID,
		ClientOrderID:    d.ClientOrderID,
		Symbol:           a.NormalizeSymbol(d.Symbol),
		Side:             types.Side(strings.ToUpper(d.Side)),
		Type:             types.OrderType(strings.ToUpper(d.Type)),
		Price:            price,
		Quantity:         qty,
		CumulativeFilled: filled,
		Status:           mapVenueStatus(d.Status),
		ReduceOnly:       d.ReduceOnly,
		PostOnly:         d.PostOnly,
	}
}

func mapVenueStatus(s string) types.OrderStatus {
	switch strings.ToLower(s) {
	case "new", "pending":
		return types.OrderStatusPending
	case "open", "live", "accepted":
		return types.OrderStatusOpen
	case "partially_filled", "partial":
		return types.OrderStatusPartiallyFilled
	case "filled", "done":
		return types.OrderStatusFilled
	case "cancelled", "canceled":
		return types.OrderStatusCancelled
	default:
		return types.OrderStatusUnknownDisappeared
	}
}

func (a *Adapter) PlaceOrder(ctx context.Context, params exchange.PlaceOrderParams) (*types.Order, error) {
	clientOrderID := params.ClientOrderID
	if clientOrderID == "" {
		clientOrderID = uuid.NewString()
	}

	req := placeOrderRequestDTO{
		Symbol:        a.DenormalizeSymbol(params.Symbol),
		Side:          string(params.Side),
		Type:          string(params.Type),
		Quantity:      params.Quantity.String(),
		TimeInForce:   string(params.TimeInForce),
		ReduceOnly:    params.ReduceOnly,
		PostOnly:      params.PostOnly,
		ClientOrderID: clientOrderID,
	}
	if !params.Price.IsZero() {
		req.Price = params.Price.String()
	}

	var dto orderDTO
	resp, err := a.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&dto).
		Post("/orders")
	if err != nil {
		return nil, exchange.NewAdapterError(exchange.ErrNetwork, "place_order", err)
	}
	if resp.IsError() {
		if resp.StatusCode() == 409 && params.PostOnly {
			return nil, exchange.NewAdapterError(exchange.ErrPostOnlyWouldCross, "place_order", fmt.Errorf("status %d", resp.StatusCode()))
		}
		return nil, classifyHTTPError("place_order", resp.StatusCode())
	}

	order := a.toGlobalOrder(dto)
	return &order, nil
}

func (a *Adapter) CancelOrder(ctx context.Context, symbol types.Symbol, exchangeOrderID, clientOrderID string) (bool, error) {
	req := a.client.R().SetContext(ctx).SetQueryParam("symbol", a.DenormalizeSymbol(symbol))
	if exchangeOrderID != "" {
		req = req.SetQueryParam("orderId", exchangeOrderID)
	}
	if clientOrderID != "" {
		req = req.SetQueryParam("clientOrderId", clientOrderID)
	}

	resp, err := req.Delete("/orders")
	if err != nil {
		return false, exchange.NewAdapterError(exchange.ErrNetwork, "cancel_order", err)
	}

	switch resp.StatusCode() {
	case 200, 204:
		return true, nil
	case 404:
		// order already gone: treat as success per spec.md §7
		return true, nil
	case 409:
		// ambiguous: could be already-filled; surface it distinctly so the
		// caller can run the synthetic-fill path of spec.md §7
		return false, exchange.NewAdapterError(exchange.ErrAlreadyFilled, "cancel_order", nil)
	default:
		return false, classifyHTTPError("cancel_order", resp.StatusCode())
	}
}

func (a *Adapter) GetOpenOrders(ctx context.Context, symbol types.Symbol) ([]types.Order, error) {
	var dtos []orderDTO
	resp, err := a.client.R().
		SetContext(ctx).
		SetQueryParam("symbol", a.DenormalizeSymbol(symbol)).
		SetResult(&dtos).
		Get("/orders/open")
	if err != nil {
		return nil, exchange.NewAdapterError(exchange.ErrNetwork, "get_open_orders", err)
	}
	if resp.IsError() {
		return nil, classifyHTTPError("get_open_orders", resp.StatusCode())
	}

	out := make([]types.Order, 0, len(dtos))
	for _, d := range dtos {
		out = append(out, a.toGlobalOrder(d))
	}
	return out, nil
}

func (a *Adapter) GetOrder(ctx context.Context, symbol types.Symbol, exchangeOrderID string) (*types.Order, error) {
	var dto orderDTO
	resp, err := a.client.R().
		SetContext(ctx).
		SetQueryParam("symbol", a.DenormalizeSymbol(symbol)).
		SetQueryParam("orderId", exchangeOrderID).
		SetResult(&dto).
		Get("/orders/one")
	if err != nil {
		return nil, exchange.NewAdapterError(exchange.ErrNetwork, "get_order", err)
	}
	if resp.StatusCode() == 404 {
		return nil, nil
	}
	if resp.IsError() {
		return nil, classifyHTTPError("get_order", resp.StatusCode())
	}

	order := a.toGlobalOrder(dto)
	return &order, nil
}

type marketDTO struct {
	Symbol      string `json:"symbol"`
	TickSize    string `json:"tickSize"`
	StepSize    string `json:"stepSize"`
	MinQuantity string `json:"minQuantity"`
	MinNotional string `json:"minNotional"`
	Base        string `json:"base"`
	Quote       string `json:"quote"`
}

func (a *Adapter) GetMarket(ctx context.Context, symbol types.Symbol) (types.Market, error) {
	var dto marketDTO
	resp, err := a.client.R().
		SetContext(ctx).
		SetQueryParam("symbol", a.DenormalizeSymbol(symbol)).
		SetResult(&dto).
		Get("/market")
	if err != nil {
		return types.Market{}, exchange.NewAdapterError(exchange.ErrNetwork, "get_market", err)
	}
	if resp.IsError() {
		return types.Market{}, classifyHTTPError("get_market", resp.StatusCode())
	}

	tick, _ := fixedpoint.NewFromString(dto.TickSize)
	step, _ := fixedpoint.NewFromString(dto.StepSize)
	minQty, _ := fixedpoint.NewFromString(dto.MinQuantity)
	minNotional, _ := fixedpoint.NewFromString(dto.MinNotional)

	return types.Market{
		Symbol:        symbol,
		BaseCurrency:  dto.Base,
		QuoteCurrency: dto.Quote,
		TickSize:      tick,
		StepSize:      step,
		MinQuantity:   minQty,
		MinNotional:   minNotional,
	}, nil
}

func (a *Adapter) NormalizeSymbol(venueSymbol string) types.Symbol {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if local, ok := a.venueToLocal[venueSymbol]; ok {
		return local
	}
	// fallback construction rule: venue already uses canonical form
	return types.Symbol(venueSymbol)
}

func (a *Adapter) DenormalizeSymbol(symbol types.Symbol) string {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if venue, ok := a.cfg.Symbols[symbol]; ok {
		return venue
	}
	return string(symbol)
}

func (a *Adapter) SupportsPushStream() bool { return a.cfg.StreamURL != "" }

func (a *Adapter) StartStream(ctx context.Context, symbols []types.Symbol, onFill exchange.FillCallback, onOrderState exchange.OrderStateCallback) error {
	if !a.SupportsPushStream() {
		return fmt.Errorf("restws: venue %s has no stream URL configured", a.cfg.VenueID)
	}

	var startErr error
	a.streamOnce.Do(func() {
		a.stream = NewStream(a.cfg.StreamURL, a.cfg.VenueID, a, a.log)
		startErr = a.stream.Start(ctx, symbols, onFill, onOrderState)
	})
	return startErr
}

func (a *Adapter) StopStream(ctx context.Context) error {
	if a.stream == nil {
		return nil
	}
	return a.stream.Stop()
}

func classifyHTTPError(op string, status int) error {
	switch status {
	case 401, 403:
		return exchange.NewAdapterError(exchange.ErrAuth, op, fmt.Errorf("status %d", status))
	case 404:
		return exchange.NewAdapterError(exchange.ErrOrderNotFound, op, fmt.Errorf("status %d", status))
	case 429:
		return exchange.NewAdapterError(exchange.ErrRateLimited, op, fmt.Errorf("status %d", status))
	default:
		return exchange.NewAdapterError(exchange.ErrOther, op, fmt.Errorf("status %d", status))
	}
}
