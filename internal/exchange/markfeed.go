package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// markMessage is the wire shape of a mark-price update.
type markMessage struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
	TS     int64  `json:"ts"`
}

// MarkFeedConfig configures the websocket mark-price feed.
type MarkFeedConfig struct {
	URL            string
	Symbol         string
	DeviationBps   uint32
	ReconnectDelay time.Duration
	MaxReconnects  int
}

// MarkFeed subscribes to a venue's mark-price stream and emits a trigger
// whenever the mark deviates from the last anchored price by more than the
// configured band. The control loop uses triggers to evaluate early instead
// of waiting for the next interval; the feed never feeds prices into the
// decision math itself.
type MarkFeed struct {
	cfg      MarkFeedConfig
	logger   *zap.Logger
	triggers chan decimal.Decimal

	mu     sync.Mutex
	anchor decimal.Decimal
}

func NewMarkFeed(cfg MarkFeedConfig, logger *zap.Logger) *MarkFeed {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 5 * time.Second
	}
	return &MarkFeed{
		cfg:      cfg,
		logger:   logger,
		triggers: make(chan decimal.Decimal, 1),
	}
}

// Triggers returns the channel deviation alerts are delivered on.
func (f *MarkFeed) Triggers() <-chan decimal.Decimal {
	return f.triggers
}

// Anchor resets the deviation reference, called after every decision cycle.
func (f *MarkFeed) Anchor(price decimal.Decimal) {
	f.mu.Lock()
	f.anchor = price
	f.mu.Unlock()
}

// Run reads the stream until the context is canceled, reconnecting with a
// fixed delay up to MaxReconnects consecutive failures.
func (f *MarkFeed) Run(ctx context.Context) error {
	failures := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := f.readLoop(ctx)
		if err == nil || ctx.Err() != nil {
			return ctx.Err()
		}

		failures++
		if f.cfg.MaxReconnects > 0 && failures > f.cfg.MaxReconnects {
			return fmt.Errorf("mark feed: %d consecutive failures: %w", failures, err)
		}
		f.logger.Warn("mark feed disconnected", zap.Error(err), zap.Int("failures", failures))

		timer := time.NewTimer(f.cfg.ReconnectDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (f *MarkFeed) readLoop(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, f.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", f.cfg.URL, err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	sub := map[string]interface{}{"op": "subscribe", "channel": "mark", "symbol": f.cfg.Symbol}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	f.logger.Info("mark feed connected", zap.String("url", f.cfg.URL), zap.String("symbol", f.cfg.Symbol))

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		var msg markMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			f.logger.Debug("skip malformed mark message", zap.Error(err))
			continue
		}
		if msg.Symbol != f.cfg.Symbol || msg.Price == "" {
			continue
		}
		price, err := decimal.NewFromString(msg.Price)
		if err != nil || price.Sign() <= 0 {
			continue
		}

		if f.deviates(price) {
			select {
			case f.triggers <- price:
			default:
				// A trigger is already pending; the next cycle covers it.
			}
		}
	}
}

func (f *MarkFeed) deviates(price decimal.Decimal) bool {
	f.mu.Lock()
	anchor := f.anchor
	f.mu.Unlock()

	if f.cfg.DeviationBps == 0 || anchor.Sign() <= 0 {
		return false
	}
	band := anchor.Mul(decimal.New(int64(f.cfg.DeviationBps), -4))
	return price.Sub(anchor).Abs().GreaterThan(band)
}
