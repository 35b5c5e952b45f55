package connectors

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	logger "github.com/sirupsen/logrus"
)

// TickerStream keeps a live mark-price cache fed by the futures websocket.
// It is an optional freshness layer: when the stream is down or a contract has
// not ticked yet, callers fall back to the REST ticker.
type TickerStream struct {
	wsURL     string
	contracts []string

	mu     sync.RWMutex
	marks  map[string]float64
	seenAt map[string]time.Time
}

type wsTickerEvent struct {
	Channel string `json:"channel"`
	Event   string `json:"event"`
	Result  []struct {
		Contract  string `json:"contract"`
		MarkPrice string `json:"mark_price"`
	} `json:"result"`
}

func NewTickerStream(contracts []string) *TickerStream {
	config := GetConfig()
	return &TickerStream{
		wsURL:     config.GateWSURL,
		contracts: contracts,
		marks:     make(map[string]float64),
		seenAt:    make(map[string]time.Time),
	}
}

// Run connects, subscribes and consumes until ctx is cancelled, reconnecting
// with a fixed delay on any failure.
func (s *TickerStream) Run(ctx context.Context) {
	for {
		if err := s.consume(ctx); err != nil {
			logger.WithError(err).Warn("ticker stream disconnected")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(5 * time.Second):
		}
	}
}

func (s *TickerStream) consume(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.wsURL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	sub := map[string]interface{}{
		"time":    time.Now().Unix(),
		"channel": "futures.tickers",
		"event":   "subscribe",
		"payload": s.contracts,
	}
	if err := conn.WriteJSON(sub); err != nil {
		return err
	}

	logger.WithField("contracts", s.contracts).Info("ticker stream subscribed")

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		var event wsTickerEvent
		if err := json.Unmarshal(msg, &event); err != nil {
			continue
		}
		if event.Channel != "futures.tickers" || event.Event != "update" {
			continue
		}

		s.mu.Lock()
		for _, t := range event.Result {
			price := ParsePrice(t.MarkPrice)
			if price > 0 {
				s.marks[t.Contract] = price
				s.seenAt[t.Contract] = time.Now()
			}
		}
		s.mu.Unlock()
	}
}

// MarkPrice returns the last streamed mark price for a contract. Entries older
// than a minute are treated as missing.
func (s *TickerStream) MarkPrice(contract string) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	price, ok := s.marks[contract]
	if !ok {
		return 0, false
	}
	if time.Since(s.seenAt[contract]) > time.Minute {
		return 0, false
	}
	return price, true
}
