package regbus

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/gwillem/mearm/pkg/obs"
)

const (
	DefaultSettle    = 100 * time.Millisecond
	DefaultTxTimeout = 2 * time.Second
)

// Config configures a Client. Zero values get defaults.
type Config struct {
	Address   uint16
	Settle    time.Duration
	TxTimeout time.Duration
	Clock     clock.Clock
	Logger    *zap.SugaredLogger
	Metrics   *obs.Metrics
}

// Client runs register transactions against the arm controller. One
// transaction is on the bus at a time.
type Client struct {
	bus     Bus
	addr    uint16
	settle  time.Duration
	timeout time.Duration
	clock   clock.Clock
	sem     *semaphore.Weighted
	logger  *zap.SugaredLogger
	metrics *obs.Metrics
}

func NewClient(bus Bus, cfg Config) *Client {
	if cfg.Address == 0 {
		cfg.Address = DefaultAddress
	}
	if cfg.Settle <= 0 {
		cfg.Settle = DefaultSettle
	}
	if cfg.TxTimeout <= 0 {
		cfg.TxTimeout = DefaultTxTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	return &Client{
		bus:     bus,
		addr:    cfg.Address,
		settle:  cfg.Settle,
		timeout: cfg.TxTimeout,
		clock:   cfg.Clock,
		sem:     semaphore.NewWeighted(1),
		logger:  obs.OrNop(cfg.Logger),
		metrics: cfg.Metrics,
	}
}

// Close closes the bus if it holds resources.
func (c *Client) Close() error {
	if cl, ok := c.bus.(interface{ Close() error }); ok {
		return cl.Close()
	}
	return nil
}

// ReadRegister returns the value of reg.
func (c *Client) ReadRegister(ctx context.Context, reg Register) (byte, error) {
	return c.do(ctx, "read_register", reg, func() (byte, error) {
		err := c.bus.Send(c.addr, byte(reg))
		c.pause()
		if err != nil {
			return 0, err
		}
		return c.bus.Receive(c.addr)
	})
}

// ReadSubValue returns the sub value of reg.
func (c *Client) ReadSubValue(ctx context.Context, reg Register, sub SubValue) (byte, error) {
	return c.do(ctx, "read_sub_value", reg, func() (byte, error) {
		err := c.bus.SendFramed(c.addr, byte(reg), byte(sub))
		c.pause()
		if err != nil {
			return 0, err
		}
		return c.bus.Receive(c.addr)
	})
}

// WriteRegister sets reg to v.
func (c *Client) WriteRegister(ctx context.Context, reg Register, v byte) error {
	_, err := c.do(ctx, "write_register", reg, func() (byte, error) {
		err := c.bus.SendFramed(c.addr, byte(reg), v)
		c.pause()
		return v, err
	})
	return err
}

// WriteSubValue sets the sub value of reg to v.
func (c *Client) WriteSubValue(ctx context.Context, reg Register, sub SubValue, v byte) error {
	_, err := c.do(ctx, "write_sub_value", reg, func() (byte, error) {
		err := c.bus.SendFramed(c.addr, byte(reg), byte(sub), v)
		c.pause()
		return v, err
	})
	return err
}

// Position returns the position of the joint at reg.
func (c *Client) Position(ctx context.Context, reg Register) (byte, error) {
	return c.ReadRegister(ctx, reg)
}

// SetPosition moves the joint at reg and returns the requested position.
// The position is not read back.
func (c *Client) SetPosition(ctx context.Context, reg Register, pos byte) (byte, error) {
	if err := c.WriteRegister(ctx, reg, pos); err != nil {
		return 0, err
	}
	return pos, nil
}

// Limit returns the "min" or "max" limit of the joint at reg.
func (c *Client) Limit(ctx context.Context, reg Register, which string) (byte, error) {
	sub, err := ParseSubValue(which)
	if err != nil {
		return 0, err
	}
	return c.ReadSubValue(ctx, reg, sub)
}

// SetLimit sets the "min" or "max" limit of the joint at reg and returns the
// requested value.
func (c *Client) SetLimit(ctx context.Context, reg Register, which string, v byte) (byte, error) {
	sub, err := ParseSubValue(which)
	if err != nil {
		return 0, err
	}
	if err := c.WriteSubValue(ctx, reg, sub, v); err != nil {
		return 0, err
	}
	return v, nil
}

type txResult struct {
	val byte
	err error
}

// do runs body followed by the error register check as one transaction.
// ctx only bounds the wait for the bus: once started, a transaction runs to
// completion in its own goroutine and keeps the bus until then, even when the
// caller has stopped waiting.
func (c *Client) do(ctx context.Context, op string, reg Register, body func() (byte, error)) (byte, error) {
	start := c.clock.Now()

	qctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := c.sem.Acquire(qctx, 1); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			c.metrics.BusTx(op, "canceled", c.clock.Since(start))
			return 0, ctxErr
		}
		c.metrics.BusTx(op, "timeout", c.clock.Since(start))
		c.logger.Warnf("%s %s: bus busy for %s", op, reg, c.timeout)
		return 0, &TransportTimeoutError{Op: op, Register: reg, After: c.timeout}
	}

	done := make(chan txResult, 1)
	go func() {
		defer c.sem.Release(1)
		val, err := c.transact(op, reg, body)
		done <- txResult{val: val, err: err}
	}()

	timer := c.clock.Timer(c.timeout - c.clock.Since(start))
	defer timer.Stop()

	select {
	case res := <-done:
		c.record(op, reg, res.err, start)
		return res.val, res.err
	case <-timer.C:
		c.metrics.BusTx(op, "timeout", c.clock.Since(start))
		c.logger.Warnf("%s %s: no answer within %s", op, reg, c.timeout)
		return 0, &TransportTimeoutError{Op: op, Register: reg, After: c.timeout}
	}
}

func (c *Client) transact(op string, reg Register, body func() (byte, error)) (byte, error) {
	val, err := body()
	if err != nil {
		return 0, &TransportError{Op: op, Register: reg, Err: err}
	}

	status, err := c.readStatus()
	if err != nil {
		return 0, &TransportError{Op: op, Register: reg, Err: errors.Wrap(err, "read error register")}
	}
	if err := status.Err(); err != nil {
		return 0, &TransportError{Op: op, Register: reg, Err: err}
	}
	return val, nil
}

func (c *Client) readStatus() (Status, error) {
	err := c.bus.Send(c.addr, byte(RegError))
	c.pause()
	if err != nil {
		return Status{}, err
	}
	raw, err := c.bus.Receive(c.addr)
	if err != nil {
		return Status{}, err
	}
	return Status{Raw: raw}, nil
}

func (c *Client) pause() {
	c.clock.Sleep(c.settle)
}

func (c *Client) record(op string, reg Register, err error, start time.Time) {
	var de *DeviceError
	switch {
	case err == nil:
		c.metrics.BusTx(op, "ok", c.clock.Since(start))
		c.logger.Debugf("%s %s ok", op, reg)
	case errors.As(err, &de):
		c.metrics.BusTx(op, "device_error", c.clock.Since(start))
		c.logger.Infof("%s %s: %v", op, reg, err)
	default:
		c.metrics.BusTx(op, "io_error", c.clock.Since(start))
		c.logger.Warnf("%s %s: %v", op, reg, err)
	}
}
