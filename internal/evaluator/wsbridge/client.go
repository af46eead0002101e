// Package wsbridge talks JSON-RPC 2.0 over a websocket to an agent running
// inside the charting application's page. The agent owns the DOM work; this
// client only sequences requests.
package wsbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"strategy-sweep-lab/internal/domain"
	"strategy-sweep-lab/internal/evaluator"
)

var _ evaluator.Evaluator = (*Client)(nil)

// Config configures the bridge client.
type Config struct {
	URL string
	// ReadTimeout bounds how long the agent waits for metrics to render.
	ReadTimeout time.Duration
	// CallTimeout bounds one request/response round trip.
	CallTimeout      time.Duration
	WriteTimeout     time.Duration
	HandshakeTimeout time.Duration
	Baseline         domain.Combination
	Logger           zerolog.Logger
}

// DefaultConfig returns the default bridge configuration for url.
func DefaultConfig(url string) Config {
	return Config{
		URL:              url,
		ReadTimeout:      10 * time.Second,
		CallTimeout:      15 * time.Second,
		WriteTimeout:     10 * time.Second,
		HandshakeTimeout: 10 * time.Second,
		Baseline:         domain.DefaultBaseline,
		Logger:           zerolog.Nop(),
	}
}

// Client implements evaluator.Evaluator. A broken connection is redialed on
// the next call.
type Client struct {
	cfg Config
	log zerolog.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	closed    atomic.Bool
	requestID atomic.Uint64
}

// Dial connects to the agent and checks it answers a ping. A failure here
// means the evaluation environment is unusable.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	def := DefaultConfig(cfg.URL)
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = def.ReadTimeout
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = cfg.ReadTimeout + 5*time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = def.HandshakeTimeout
	}
	if cfg.Baseline == (domain.Combination{}) {
		cfg.Baseline = def.Baseline
	}

	c := &Client{cfg: cfg, log: cfg.Logger.With().Str("component", "wsbridge").Str("url", cfg.URL).Logger()}
	if err := c.Ping(ctx); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

// Ping checks the agent is reachable.
func (c *Client) Ping(ctx context.Context) error {
	var pong string
	return c.call(ctx, "ping", nil, &pong)
}

func (c *Client) SelectInstrument(ctx context.Context, instrument string) error {
	var ok bool
	if err := c.call(ctx, "selectInstrument", selectParams{Symbol: instrument}, &ok); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: instrument %s not selectable", evaluator.ErrEvaluation, instrument)
	}
	return nil
}

func (c *Client) ApplyParameters(ctx context.Context, combo domain.Combination) (bool, error) {
	var res applyResult
	if err := c.call(ctx, "applyParameters", toParams(combo), &res); err != nil {
		return false, err
	}
	if !res.Applied {
		c.log.Debug().Str("combination", combo.String()).Str("reason", res.Reason).Msg("parameters rejected")
	}
	return res.Applied, nil
}

func (c *Client) ReadMetrics(ctx context.Context) (domain.RawMetrics, error) {
	var res metricsResult
	params := readParams{TimeoutMs: c.cfg.ReadTimeout.Milliseconds()}
	if err := c.call(ctx, "readMetrics", params, &res); err != nil {
		return domain.RawMetrics{}, err
	}
	return domain.RawMetrics{
		NetProfit:    res.NetProfit,
		WinRate:      res.WinRate,
		Drawdown:     res.Drawdown,
		TotalTrades:  res.TotalTrades,
		ProfitFactor: res.ProfitFactor,
	}, nil
}

func (c *Client) ResetToBaseline(ctx context.Context) error {
	var ok bool
	if err := c.call(ctx, "resetToBaseline", toParams(c.cfg.Baseline), &ok); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: baseline not restored", evaluator.ErrEvaluation)
	}
	return nil
}

// Close closes the connection.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dropLocked()
	return nil
}

// call sends one request and waits for the response with the same id.
// Responses to earlier, abandoned requests are discarded.
func (c *Client) call(ctx context.Context, method string, params, result any) error {
	if c.closed.Load() {
		return fmt.Errorf("%w: client closed", evaluator.ErrEvaluation)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.connectLocked(ctx); err != nil {
		return err
	}

	conn := c.conn
	id := c.requestID.Add(1)
	req := rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params}

	conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	if err := conn.WriteJSON(req); err != nil {
		c.dropLocked()
		return fmt.Errorf("%w: write %s: %v", evaluator.ErrEvaluation, method, err)
	}

	deadline := time.Now().Add(c.cfg.CallTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	conn.SetReadDeadline(deadline)

	// Unblock the read when ctx is cancelled.
	stop := context.AfterFunc(ctx, func() {
		conn.SetReadDeadline(time.Now())
	})
	defer stop()

	for {
		var resp rpcResponse
		if err := conn.ReadJSON(&resp); err != nil {
			c.dropLocked()
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return fmt.Errorf("%w: read %s: %v", evaluator.ErrEvaluation, method, err)
		}
		if resp.ID != id {
			c.log.Debug().Uint64("id", resp.ID).Msg("discarding stale response")
			continue
		}
		if resp.Error != nil {
			return fmt.Errorf("%w: %s: %s (code %d)", evaluator.ErrEvaluation, method, resp.Error.Message, resp.Error.Code)
		}
		if result == nil {
			return nil
		}
		if err := json.Unmarshal(resp.Result, result); err != nil {
			return fmt.Errorf("%w: decode %s result: %v", evaluator.ErrEvaluation, method, err)
		}
		return nil
	}
}

func (c *Client) connectLocked(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}
	dialer := websocket.Dialer{
		HandshakeTimeout: c.cfg.HandshakeTimeout,
	}
	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("%w: websocket dial: %v", evaluator.ErrEvaluation, err)
	}
	c.conn = conn
	return nil
}

// dropLocked closes a connection that can no longer be read from.
func (c *Client) dropLocked() {
	if c.conn == nil {
		return
	}
	c.conn.SetWriteDeadline(time.Now().Add(time.Second))
	c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.conn.Close()
	c.conn = nil
}

func toParams(c domain.Combination) applyParams {
	return applyParams{ATRMultiplier: c.ATRMultiplier, RiskReward: c.RiskReward, VolMultiplier: c.VolMultiplier}
}
