package restws

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/quantcore/permaker/pkg/exchange"
	"github.com/quantcore/permaker/pkg/fixedpoint"
	"github.com/quantcore/permaker/pkg/types"
)

// Stream manages the push half of the Exchange Adapter contract over a
// gorilla/websocket connection, grounded on the teacher's
// coinbase/stream_handlers.go subscribe/dispatch shape (channelType,
// subscribeMsgType1/2) but collapsed to a single generic fill/order-state
// event envelope since per-venue wire format is out of scope (spec.md §1).
type Stream struct {
	url     string
	venueID string
	adapter *Adapter
	log     *logrus.Entry

	mu     sync.Mutex
	conn   *websocket.Conn
	cancel context.CancelFunc
	done   chan struct{}
}

func NewStream(url, venueID string, adapter *Adapter, log *logrus.Entry) *Stream {
	return &Stream{url: url, venueID: venueID, adapter: adapter, log: log}
}

type subscribeMsg struct {
	Type    string   `json:"type"`
	Symbols []string `json:"symbols"`
}

// eventEnvelope is this adapter's own push wire schema: a fill event or an
// order-state event, discriminated by Type.
type eventEnvelope struct {
	Type string `json:"type"` // "fill" | "order_state"

	OrderID       string `json:"orderId"`
	ClientOrderID string `json:"clientOrderId"`
	Symbol        string `json:"symbol"`
	Side          string `json:"side"`
	FillQty       string `json:"fillQty"`
	FillPrice     string `json:"fillPrice"`
	RemainingQty  string `json:"remainingQty"`
	IsFullyFilled bool   `json:"isFullyFilled"`
	IsMaker       *bool  `json:"isMaker"`

	Order *orderDTO `json:"order"`
}

func (s *Stream) Start(ctx context.Context, symbols []types.Symbol, onFill exchange.FillCallback, onOrderState exchange.OrderStateCallback) error {
	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, s.url, nil)
	if err != nil {
		return exchange.NewAdapterError(exchange.ErrNetwork, "start_stream", err)
	}

	s.mu.Lock()
	s.conn = conn
	streamCtx, streamCancel := context.WithCancel(ctx)
	s.cancel = streamCancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	venueSymbols := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		venueSymbols = append(venueSymbols, s.adapter.DenormalizeSymbol(sym))
	}

	if err := conn.WriteJSON(subscribeMsg{Type: "subscribe", Symbols: venueSymbols}); err != nil {
		conn.Close()
		return exchange.NewAdapterError(exchange.ErrNetwork, "start_stream", err)
	}

	go s.readLoop(streamCtx, onFill, onOrderState)
	return nil
}

func (s *Stream) readLoop(ctx context.Context, onFill exchange.FillCallback, onOrderState exchange.OrderStateCallback) {
	defer close(s.done)

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		if s.conn != nil {
			s.conn.Close()
		}
		s.mu.Unlock()
	}()

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				s.log.WithError(err).Warn("restws: stream read error, connection closed")
			}
			return
		}

		var env eventEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			s.log.WithError(err).Warn("restws: malformed stream message")
			continue
		}

		switch env.Type {
		case "fill":
			if onFill == nil {
				continue
			}
			onFill(s.toFillEvent(env))
		case "order_state":
			if onOrderState == nil || env.Order == nil {
				continue
			}
			onOrderState(s.adapter.toGlobalOrder(*env.Order))
		default:
			s.log.Warnf("restws: unknown stream event type %q", env.Type)
		}
	}
}

func (s *Stream) toFillEvent(env eventEnvelope) types.FillEvent {
	qty, _ := fixedpoint.NewFromString(env.FillQty)
	price, _ := fixedpoint.NewFromString(env.FillPrice)
	remaining, _ := fixedpoint.NewFromString(env.RemainingQty)

	maker := types.MakerUnknown
	if env.IsMaker != nil {
		if *env.IsMaker {
			maker = types.MakerTrue
		} else {
			maker = types.MakerFalse
		}
	}

	return types.FillEvent{
		OrderID:       env.OrderID,
		ClientOrderID: env.ClientOrderID,
		Symbol:        s.adapter.NormalizeSymbol(env.Symbol),
		Side:          types.Side(env.Side),
		FillQty:       qty,
		FillPrice:     price,
		RemainingQty:  remaining,
		IsFullyFilled: env.IsFullyFilled,
		Timestamp:     time.Now(),
		IsMaker:       maker,
	}
}

func (s *Stream) Stop() error {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	if done != nil {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			return fmt.Errorf("restws: timed out waiting for stream shutdown")
		}
	}
	return nil
}
