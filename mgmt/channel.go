package mgmt

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"

	"github.com/srg/blip/internal/groutine"
	"github.com/srg/blip/internal/mgmtsock"
)

// DefaultCommandTimeout bounds how long SendCommand waits for a correlated
// response before reporting ErrTimeout.
const DefaultCommandTimeout = 2 * time.Second

// EventObserver receives unsolicited management events for a registered
// event code. Observers run on the channel's read loop and must not block.
type EventObserver func(Frame)

// ChannelOptions configures Open.
type ChannelOptions struct {
	// CommandTimeout bounds each SendCommand call. Zero means
	// DefaultCommandTimeout.
	CommandTimeout time.Duration

	// Transport overrides the management socket, mainly for tests. When
	// nil, Open dials the kernel control channel.
	Transport io.ReadWriteCloser

	Logger *logrus.Logger
}

type cmdResult struct {
	status uint8
	params []byte
}

type pendingCmd struct {
	code  uint16
	index uint16
	done  chan cmdResult
}

// Channel owns the management control socket for one controller index. It
// serializes command traffic: SendCommand holds an exclusive guard, so a
// second caller blocks until the first command completes or times out.
// Only one channel should be open per controller index at a time; the
// kernel interface is a single shared resource.
type Channel struct {
	xport   io.ReadWriteCloser
	logger  *logrus.Logger
	index   uint16
	timeout time.Duration

	sendMu sync.Mutex // single outstanding command

	mu      sync.Mutex
	pending *pendingCmd
	info    ControllerInfo

	observers *hashmap.Map[uint16, EventObserver]
	discarded atomic.Uint64

	closeOnce  sync.Once
	closed     chan struct{}
	readerDone chan struct{}
}

// Open connects to the management interface for the given controller index
// and performs the initial synchronization handshake: it reads the
// management version and the controller's state snapshot. A handshake
// failure is fatal to construction and reported as ErrSyncFailed.
func Open(index uint16, opts *ChannelOptions) (*Channel, error) {
	if opts == nil {
		opts = &ChannelOptions{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.New()
	}
	timeout := opts.CommandTimeout
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}

	xport := opts.Transport
	if xport == nil {
		var err error
		if xport, err = mgmtsock.Dial(); err != nil {
			return nil, fmt.Errorf("open management socket: %w", err)
		}
	}

	c := &Channel{
		xport:      xport,
		logger:     logger,
		index:      index,
		timeout:    timeout,
		observers:  hashmap.New[uint16, EventObserver](),
		closed:     make(chan struct{}),
		readerDone: make(chan struct{}),
	}
	groutine.Go(nil, "mgmt-reader", c.readLoop)

	if err := c.sync(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("%w: %v", ErrSyncFailed, err)
	}
	return c, nil
}

// Index returns the controller index this channel is bound to.
func (c *Channel) Index() uint16 { return c.index }

// Info returns the controller state snapshot captured during the open
// handshake.
func (c *Channel) Info() ControllerInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.info
}

// Discarded reports how many events were received without a matching
// pending command.
func (c *Channel) Discarded() uint64 { return c.discarded.Load() }

// OnEvent registers an observer for unsolicited events with the given
// event code. Passing nil removes the observer.
func (c *Channel) OnEvent(code uint16, fn EventObserver) {
	if fn == nil {
		c.observers.Del(code)
		return
	}
	c.observers.Set(code, fn)
}

// SendCommand writes the frame and blocks until a correlated Command
// Complete or Command Status event arrives, the channel is closed, or the
// command timeout elapses. A non-success controller status is returned as
// a *StatusError; the response parameters are returned on success.
//
// A failed send does not close the channel: the caller decides whether to
// retry, and a subsequent command may be issued on the same channel.
func (c *Channel) SendCommand(f Frame) ([]byte, error) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	select {
	case <-c.closed:
		return nil, ErrChannelClosed
	default:
	}

	p := &pendingCmd{code: f.Code, index: f.Index, done: make(chan cmdResult, 1)}
	c.mu.Lock()
	c.pending = p
	c.mu.Unlock()
	// Clearing the pending slot on every exit path makes the read loop
	// discard a correlated event that arrives after a timeout instead of
	// delivering it to a caller that already gave up.
	defer func() {
		c.mu.Lock()
		if c.pending == p {
			c.pending = nil
		}
		c.mu.Unlock()
	}()

	if _, err := c.xport.Write(f.Encode()); err != nil {
		return nil, fmt.Errorf("write %s: %w", OpcodeName(f.Code), err)
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case res := <-p.done:
		if res.status != StatusSuccess {
			return nil, &StatusError{Opcode: f.Code, Status: res.status}
		}
		return res.params, nil
	case <-timer.C:
		c.logger.WithFields(logrus.Fields{
			"command": OpcodeName(f.Code),
			"index":   f.Index,
			"timeout": c.timeout,
		}).Warn("management command timed out")
		return nil, fmt.Errorf("%s: %w", OpcodeName(f.Code), ErrTimeout)
	case <-c.closed:
		return nil, ErrChannelClosed
	}
}

// Close shuts down the channel and unblocks any pending sender.
func (c *Channel) Close() error {
	c.markClosed()
	err := c.xport.Close()
	<-c.readerDone
	return err
}

func (c *Channel) markClosed() {
	c.closeOnce.Do(func() { close(c.closed) })
}

// sync reads the management version and the controller information
// snapshot. The read loop must already be running.
func (c *Channel) sync() error {
	if _, err := c.SendCommand(NewCommand(OpReadVersionInfo, IndexNone, nil)); err != nil {
		return fmt.Errorf("read version: %w", err)
	}

	params, err := c.SendCommand(NewCommand(OpReadControllerInfo, c.index, nil))
	if err != nil {
		return fmt.Errorf("read controller info: %w", err)
	}
	ci, err := ParseControllerInfo(params)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.info = ci
	c.mu.Unlock()

	c.logger.WithFields(logrus.Fields{
		"index":    c.index,
		"name":     ci.Name,
		"settings": fmt.Sprintf("0x%08x", ci.CurrentSettings),
	}).Info("controller synchronized")
	return nil
}

func (c *Channel) readLoop(context.Context) {
	defer close(c.readerDone)

	buf := make([]byte, 4096)
	for {
		n, err := c.xport.Read(buf)
		if err != nil {
			select {
			case <-c.closed:
			default:
				c.logger.WithError(err).Debug("management socket read failed")
			}
			c.markClosed()
			return
		}
		evt, err := DecodeFrame(buf[:n])
		if err != nil {
			c.logger.WithError(err).Warn("discarding malformed management event")
			continue
		}
		c.dispatch(evt)
	}
}

func (c *Channel) dispatch(evt Frame) {
	switch evt.Code {
	case EvtCommandComplete:
		if len(evt.Payload) < 3 {
			c.logger.Warn("discarding truncated command complete event")
			return
		}
		op := binary.LittleEndian.Uint16(evt.Payload)
		c.deliver(op, evt.Index, evt.Payload[2], evt.Payload[3:])
	case EvtCommandStatus:
		if len(evt.Payload) < 3 {
			c.logger.Warn("discarding truncated command status event")
			return
		}
		op := binary.LittleEndian.Uint16(evt.Payload)
		c.deliver(op, evt.Index, evt.Payload[2], nil)
	default:
		// The controller emits unsolicited and historical events on this
		// channel; they are observable but never correlated to commands.
		if obs, ok := c.observers.Get(evt.Code); ok {
			obs(evt)
		}
		c.discarded.Add(1)
		c.logger.WithFields(logrus.Fields{
			"event": EventName(evt.Code),
			"index": evt.Index,
		}).Debug("unsolicited management event")
	}
}

func (c *Channel) deliver(op, index uint16, status uint8, params []byte) {
	c.mu.Lock()
	p := c.pending
	if p != nil && p.code == op && p.index == index {
		c.pending = nil
	} else {
		p = nil
	}
	c.mu.Unlock()

	if p == nil {
		c.discarded.Add(1)
		c.logger.WithFields(logrus.Fields{
			"command": OpcodeName(op),
			"index":   index,
			"status":  StatusName(status),
		}).Debug("discarding uncorrelated response")
		return
	}
	p.done <- cmdResult{status: status, params: params}
}
