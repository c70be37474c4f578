package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"gamma-trading-bot/internal/logging"
)

// TickHandler receives every spot tick read from the stream
type TickHandler func(Tick)

// PriceStream maintains a websocket subscription for spot price ticks with
// automatic reconnect. When no stream URL is configured it falls back to
// polling quotes through the REST client so the touch monitor still runs.
type PriceStream struct {
	mu         sync.RWMutex
	streamURL  string
	symbols    []string
	handler    TickHandler
	client     Interface // polling fallback
	pollEvery  time.Duration
	wsConn     *websocket.Conn
	running    bool
	reconnects int
	logger     *logging.Logger

	// OnReconnect, when set, fires on every reconnect attempt
	OnReconnect func()
}

func NewPriceStream(streamURL string, symbols []string, client Interface, handler TickHandler) *PriceStream {
	return &PriceStream{
		streamURL: streamURL,
		symbols:   symbols,
		handler:   handler,
		client:    client,
		pollEvery: 2 * time.Second,
		logger:    logging.Default().WithComponent("price_stream"),
	}
}

// Start runs the stream until ctx is cancelled
func (s *PriceStream) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	if s.streamURL == "" {
		s.logger.Info("no stream URL configured, polling quotes instead", "interval", s.pollEvery.String())
		s.pollLoop(ctx)
		return
	}
	s.connectLoop(ctx)
}

// Stop closes the active connection, which unblocks the read loop
func (s *PriceStream) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	if s.wsConn != nil {
		s.wsConn.Close()
	}
}

// Reconnects reports how many reconnect attempts have happened since the
// last healthy connection
func (s *PriceStream) Reconnects() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reconnects
}

func (s *PriceStream) connectLoop(ctx context.Context) {
	wsURL := s.streamURL + "/stream?symbols=" + strings.Join(s.symbols, ",")

	for {
		if ctx.Err() != nil || !s.isRunning() {
			return
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
		if err != nil {
			s.mu.Lock()
			s.reconnects++
			n := s.reconnects
			s.mu.Unlock()
			if s.OnReconnect != nil {
				s.OnReconnect()
			}
			s.logger.Warn("stream connection failed, retrying in 5s", "error", err.Error(), "attempts", n)
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
			}
			continue
		}

		s.mu.Lock()
		s.wsConn = conn
		s.reconnects = 0
		s.mu.Unlock()
		s.logger.Info("stream connected", "symbols", strings.Join(s.symbols, ","))

		s.readLoop(conn)

		if ctx.Err() != nil || !s.isRunning() {
			return
		}
		s.logger.Warn("stream connection lost, reconnecting in 3s")
		select {
		case <-ctx.Done():
			return
		case <-time.After(3 * time.Second):
		}
	}
}

func (s *PriceStream) readLoop(conn *websocket.Conn) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn("stream read error", "error", err.Error())
			}
			return
		}
		s.handleMessage(message)
	}
}

func (s *PriceStream) handleMessage(message []byte) {
	var wire struct {
		Symbol    string  `json:"symbol"`
		Price     float64 `json:"price"`
		Volume    float64 `json:"volume"`
		Timestamp int64   `json:"timestamp"`
	}
	if err := json.Unmarshal(message, &wire); err != nil {
		s.logger.Warn("unparseable stream message", "error", err.Error())
		return
	}
	if wire.Symbol == "" || wire.Price <= 0 {
		return
	}

	tick := Tick{
		Symbol:    wire.Symbol,
		Price:     wire.Price,
		Volume:    wire.Volume,
		Timestamp: time.UnixMilli(wire.Timestamp).UTC(),
	}
	if wire.Timestamp == 0 {
		tick.Timestamp = time.Now().UTC()
	}
	s.handler(tick)
}

func (s *PriceStream) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(s.pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !s.isRunning() {
				return
			}
			for _, symbol := range s.symbols {
				quote, err := s.client.FetchQuote(ctx, symbol)
				if err != nil {
					s.logger.Warn(fmt.Sprintf("quote poll failed for %s", symbol), "error", err.Error())
					continue
				}
				s.handler(Tick{
					Symbol:    quote.Symbol,
					Price:     quote.Price,
					Volume:    quote.Volume,
					Timestamp: quote.Timestamp,
				})
			}
		}
	}
}

func (s *PriceStream) isRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}
