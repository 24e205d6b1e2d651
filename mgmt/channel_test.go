package mgmt

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"
)

// fakeTransport is an in-memory management socket. Frames written by the
// channel surface on out; frames queued on in are delivered to the
// channel's read loop.
type fakeTransport struct {
	in     chan []byte
	out    chan Frame
	closed chan struct{}
	once   sync.Once
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		in:     make(chan []byte, 16),
		out:    make(chan Frame, 16),
		closed: make(chan struct{}),
	}
}

func (t *fakeTransport) Read(b []byte) (int, error) {
	select {
	case raw := <-t.in:
		return copy(b, raw), nil
	case <-t.closed:
		return 0, io.EOF
	}
}

func (t *fakeTransport) Write(b []byte) (int, error) {
	select {
	case <-t.closed:
		return 0, io.ErrClosedPipe
	default:
	}
	f, err := DecodeFrame(b)
	if err != nil {
		return 0, err
	}
	t.out <- f
	return len(b), nil
}

func (t *fakeTransport) Close() error {
	t.once.Do(func() { close(t.closed) })
	return nil
}

// complete queues a Command Complete event correlated to op/index.
func (t *fakeTransport) complete(op, index uint16, status uint8, params []byte) {
	payload := make([]byte, 3+len(params))
	binary.LittleEndian.PutUint16(payload, op)
	payload[2] = status
	copy(payload[3:], params)
	t.in <- Frame{Code: EvtCommandComplete, Index: index, Payload: payload}.Encode()
}

// event queues an arbitrary event frame.
func (t *fakeTransport) event(code, index uint16, payload []byte) {
	t.in <- Frame{Code: code, Index: index, Payload: payload}.Encode()
}

// serve answers written commands with fn; fn returning ok=false leaves
// the command unanswered.
func (t *fakeTransport) serve(fn func(f Frame) (status uint8, params []byte, ok bool)) {
	go func() {
		for {
			select {
			case f := <-t.out:
				status, params, ok := fn(f)
				if ok {
					t.complete(f.Code, f.Index, status, params)
				}
			case <-t.closed:
				return
			}
		}
	}()
}

func controllerInfoParams(name string) []byte {
	b := make([]byte, 280)
	copy(b[0:6], []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06})
	b[6] = 0x09
	binary.LittleEndian.PutUint32(b[13:], SettingPowered|SettingLowEnergy)
	copy(b[20:], name)
	copy(b[20+249:], TruncateShortName(name))
	return b
}

// handshakeOnly answers the open handshake and nothing else.
func handshakeOnly(f Frame) (uint8, []byte, bool) {
	switch f.Code {
	case OpReadVersionInfo:
		return StatusSuccess, []byte{0x01, 0x16, 0x00}, true
	case OpReadControllerInfo:
		return StatusSuccess, controllerInfoParams("periph"), true
	}
	return 0, nil, false
}

type ChannelTestSuite struct {
	suite.Suite

	xport  *fakeTransport
	logger *logrus.Logger
}

func (suite *ChannelTestSuite) SetupTest() {
	suite.xport = newFakeTransport()
	suite.logger = logrus.New()
	suite.logger.SetLevel(logrus.PanicLevel)
}

func (suite *ChannelTestSuite) open(timeout time.Duration) *Channel {
	ch, err := Open(0, &ChannelOptions{
		CommandTimeout: timeout,
		Transport:      suite.xport,
		Logger:         suite.logger,
	})
	suite.Require().NoError(err)
	return ch
}

func (suite *ChannelTestSuite) TestOpenSynchronizes() {
	suite.xport.serve(handshakeOnly)

	ch := suite.open(time.Second)
	defer ch.Close()

	info := ch.Info()
	suite.Equal("periph", info.Name)
	suite.Equal(SettingPowered|SettingLowEnergy, info.CurrentSettings)
	suite.EqualValues(0, ch.Index())
}

func (suite *ChannelTestSuite) TestOpenSyncFailed() {
	// No responder at all: the handshake must time out.
	_, err := Open(0, &ChannelOptions{
		CommandTimeout: 50 * time.Millisecond,
		Transport:      suite.xport,
		Logger:         suite.logger,
	})
	suite.ErrorIs(err, ErrSyncFailed)
}

func (suite *ChannelTestSuite) TestSendCommandSuccess() {
	suite.xport.serve(func(f Frame) (uint8, []byte, bool) {
		if f.Code == OpSetPowered {
			suite.Equal([]byte{0x01}, f.Payload)
			return StatusSuccess, []byte{0x01, 0x00, 0x00, 0x00}, true
		}
		return handshakeOnly(f)
	})

	ch := suite.open(time.Second)
	defer ch.Close()

	params, err := ch.SendCommand(NewCommand(OpSetPowered, 0, SetStatePayload(1)))
	suite.NoError(err)
	suite.Equal([]byte{0x01, 0x00, 0x00, 0x00}, params)
}

func (suite *ChannelTestSuite) TestControllerRejected() {
	suite.xport.serve(func(f Frame) (uint8, []byte, bool) {
		if f.Code == OpSetBredr {
			return StatusNotSupported, nil, true
		}
		return handshakeOnly(f)
	})

	ch := suite.open(time.Second)
	defer ch.Close()

	_, err := ch.SendCommand(NewCommand(OpSetBredr, 0, SetStatePayload(0)))
	suite.ErrorIs(err, &StatusError{Opcode: OpSetBredr, Status: StatusNotSupported})

	var se *StatusError
	suite.Require().True(errors.As(err, &se))
	suite.Equal(StatusNotSupported, se.Status)
}

func (suite *ChannelTestSuite) TestCommandTimeoutThenReuse() {
	var mu sync.Mutex
	ignoring := true
	suite.xport.serve(func(f Frame) (uint8, []byte, bool) {
		if f.Code == OpSetPowered {
			mu.Lock()
			defer mu.Unlock()
			if ignoring {
				return 0, nil, false
			}
			return StatusSuccess, nil, true
		}
		return handshakeOnly(f)
	})

	ch := suite.open(100 * time.Millisecond)
	defer ch.Close()

	_, err := ch.SendCommand(NewCommand(OpSetPowered, 0, SetStatePayload(1)))
	suite.ErrorIs(err, ErrTimeout)

	// The channel stays usable after a timeout.
	mu.Lock()
	ignoring = false
	mu.Unlock()

	_, err = ch.SendCommand(NewCommand(OpSetPowered, 0, SetStatePayload(1)))
	suite.NoError(err)
}

func (suite *ChannelTestSuite) TestUnsolicitedEventObserved() {
	suite.xport.serve(handshakeOnly)

	ch := suite.open(time.Second)
	defer ch.Close()

	seen := make(chan Frame, 1)
	ch.OnEvent(EvtNewSettings, func(f Frame) { seen <- f })

	settings := make([]byte, 4)
	binary.LittleEndian.PutUint32(settings, SettingPowered)
	suite.xport.event(EvtNewSettings, 0, settings)

	select {
	case f := <-seen:
		suite.Equal(EvtNewSettings, f.Code)
		suite.Equal(settings, f.Payload)
	case <-time.After(time.Second):
		suite.Fail("observer was not invoked")
	}
	suite.Eventually(func() bool { return ch.Discarded() > 0 }, time.Second, 10*time.Millisecond)
}

func (suite *ChannelTestSuite) TestConcurrentSendersSerialized() {
	suite.xport.serve(func(f Frame) (uint8, []byte, bool) {
		switch f.Code {
		case OpSetPowered, OpSetBondable:
			return StatusSuccess, nil, true
		}
		return handshakeOnly(f)
	})

	ch := suite.open(time.Second)
	defer ch.Close()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, code := range []uint16{OpSetPowered, OpSetBondable} {
		i, code := i, code
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = ch.SendCommand(NewCommand(code, 0, SetStatePayload(1)))
		}()
	}
	wg.Wait()

	suite.NoError(errs[0])
	suite.NoError(errs[1])
}

func (suite *ChannelTestSuite) TestSendOnClosedChannel() {
	suite.xport.serve(handshakeOnly)

	ch := suite.open(time.Second)
	suite.Require().NoError(ch.Close())

	_, err := ch.SendCommand(NewCommand(OpSetPowered, 0, SetStatePayload(1)))
	suite.ErrorIs(err, ErrChannelClosed)
}

func (suite *ChannelTestSuite) TestLargeEventDelivered() {
	suite.xport.serve(handshakeOnly)

	ch := suite.open(time.Second)
	defer ch.Close()

	const code = uint16(0x0012)
	seen := make(chan Frame, 1)
	ch.OnEvent(code, func(f Frame) { seen <- f })

	// Larger than any single command response; the read buffer must hold
	// the whole datagram or the frame decodes as malformed and is dropped.
	payload := bytes.Repeat([]byte{0x5A}, 2048)
	suite.xport.event(code, 0, payload)

	select {
	case f := <-seen:
		suite.Equal(payload, f.Payload)
	case <-time.After(time.Second):
		suite.Fail("large event was not delivered")
	}
}

// pipeTransport reads from a real pipe, so the read loop blocks in an
// actual file read the way it does on the management socket.
type pipeTransport struct {
	r *os.File
	w *os.File
}

func (t *pipeTransport) Read(b []byte) (int, error) { return t.r.Read(b) }

func (t *pipeTransport) Write(b []byte) (int, error) { return len(b), nil }

func (t *pipeTransport) Close() error {
	_ = t.w.Close()
	return t.r.Close()
}

// Closing the transport must wake a read loop blocked in a file read with
// no data pending; otherwise Close waits on the reader forever.
func (suite *ChannelTestSuite) TestCloseUnblocksBlockedReader() {
	r, w, err := os.Pipe()
	suite.Require().NoError(err)

	done := make(chan error, 1)
	go func() {
		// The handshake gets no response: Open times out and tears the
		// channel down while the reader is parked in pipeTransport.Read.
		_, err := Open(0, &ChannelOptions{
			CommandTimeout: 50 * time.Millisecond,
			Transport:      &pipeTransport{r: r, w: w},
			Logger:         suite.logger,
		})
		done <- err
	}()

	select {
	case err := <-done:
		suite.ErrorIs(err, ErrSyncFailed)
	case <-time.After(5 * time.Second):
		suite.Fail("Open did not return; Close left the read loop blocked")
	}
}

func TestChannelTestSuite(t *testing.T) {
	suite.Run(t, new(ChannelTestSuite))
}
