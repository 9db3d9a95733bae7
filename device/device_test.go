package device_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/harp-tech/go-harp/device"
	"github.com/harp-tech/go-harp/harp"
	"github.com/harp-tech/go-harp/internal/devicesim"
	"github.com/harp-tech/go-harp/logger"
	"github.com/harp-tech/go-harp/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	sim *devicesim.Simulator
	tr  *transport.Transport
	dev *device.Device
}

func newFixture(t *testing.T, opts ...device.Option) *fixture {
	t.Helper()

	l := logger.NewMockLogger().AllowAll()
	host, far := transport.Pipe()
	sim := devicesim.New(far, devicesim.DefaultConfig, l)

	tr, err := transport.New(context.Background(), host, transport.WithLogger(l))
	require.NoError(t, err)

	opts = append([]device.Option{device.WithLogger(l)}, opts...)
	dev, err := device.New(tr, opts...)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = tr.Close()
		_ = sim.Close()
	})

	return &fixture{sim: sim, tr: tr, dev: dev}
}

func TestCommand_ReadReply(t *testing.T) {
	f := newFixture(t)

	cmd, err := harp.ReadCommand(device.RegWhoAmI, harp.U16)
	require.NoError(t, err)

	reply, err := f.dev.Command(context.Background(), cmd)
	require.NoError(t, err)
	assert.Equal(t, harp.Read, reply.MessageType())
	assert.Equal(t, device.RegWhoAmI, reply.Address())

	whoAmI, err := reply.PayloadUint16()
	require.NoError(t, err)
	assert.Equal(t, uint16(1216), whoAmI)

	assert.Equal(t, 0, f.dev.Pending())
	assert.Equal(t, 0, f.tr.Subscribers())
	assert.Equal(t, uint64(1), f.dev.Metrics().ReplyCount.Load())
}

func TestCommand_ErrorReplyIsDeviceError(t *testing.T) {
	f := newFixture(t)
	f.sim.SetRegister(11, harp.U8, []byte{0})
	f.sim.FailRegister(11)

	cmd, err := harp.WriteCommand[uint8](11, 1)
	require.NoError(t, err)

	_, err = f.dev.Command(context.Background(), cmd)
	require.Error(t, err)

	var devErr *device.DeviceError
	require.ErrorAs(t, err, &devErr)
	assert.Equal(t, byte(11), devErr.Address())
	assert.True(t, devErr.Reply.IsError())
	assert.Equal(t, harp.Write, devErr.Reply.Kind())
	assert.Same(t, cmd, devErr.Command)
	assert.Contains(t, err.Error(), "address 11")
	assert.Equal(t, uint64(1), f.dev.Metrics().DeviceErrCount.Load())
}

func TestCommand_Timeout(t *testing.T) {
	f := newFixture(t, device.WithCommandTimeout(50*time.Millisecond))
	f.sim.MuteRegister(30)

	cmd, err := harp.ReadCommand(30, harp.U8)
	require.NoError(t, err)

	start := time.Now()
	_, err = f.dev.Command(context.Background(), cmd)
	require.Error(t, err)
	assert.ErrorIs(t, err, device.ErrCommandTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	assert.Equal(t, 0, f.dev.Pending())
	assert.Equal(t, uint64(1), f.dev.Metrics().TimeoutCount.Load())
}

func TestCommand_ContextCancel(t *testing.T) {
	f := newFixture(t, device.WithCommandTimeout(0))
	f.sim.MuteRegister(31)

	cmd, err := harp.ReadCommand(31, harp.U8)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := f.dev.Command(ctx, cmd)
		errCh <- err
	}()

	require.Eventually(t, func() bool { return f.dev.Pending() == 1 }, time.Second, time.Millisecond)
	pending := f.dev.PendingCommands()
	require.Len(t, pending, 1)
	assert.Same(t, cmd, pending[0].Command)
	assert.False(t, pending[0].Started.IsZero())
	assert.GreaterOrEqual(t, pending[0].Age(), time.Duration(0))

	cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
		assert.False(t, errors.Is(err, device.ErrCommandTimeout))
	case <-time.After(time.Second):
		t.Fatal("command did not observe cancellation")
	}
	assert.Equal(t, 0, f.dev.Pending())
}

func TestCommand_TransportTermination(t *testing.T) {
	f := newFixture(t, device.WithCommandTimeout(0))
	f.sim.MuteRegister(32)

	cmd, err := harp.ReadCommand(32, harp.U8)
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		_, err := f.dev.Command(context.Background(), cmd)
		errCh <- err
	}()

	require.Eventually(t, func() bool { return f.dev.Pending() == 1 }, time.Second, time.Millisecond)
	// the far end disappears
	require.NoError(t, f.sim.Close())

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, device.ErrTransportClosed)
		assert.ErrorIs(t, err, transport.ErrStreamFailed)
	case <-time.After(time.Second):
		t.Fatal("command did not observe transport termination")
	}

	_, err = f.dev.Command(context.Background(), cmd)
	assert.ErrorIs(t, err, device.ErrTransportClosed)
}

func TestCommand_FirstReplyWins(t *testing.T) {
	f := newFixture(t, device.WithCommandTimeout(0))
	f.sim.MuteRegister(50)

	cmd, err := harp.ReadCommand(50, harp.U8)
	require.NoError(t, err)
	first, err := harp.FromValues[uint8](harp.Read, 50, 1)
	require.NoError(t, err)
	second, err := harp.FromValues[uint8](harp.Read, 50, 2)
	require.NoError(t, err)

	type result struct {
		reply *harp.Message
		err   error
	}
	resCh := make(chan result, 1)
	go func() {
		reply, err := f.dev.Command(context.Background(), cmd)
		resCh <- result{reply, err}
	}()

	require.Eventually(t, func() bool { return f.dev.Pending() == 1 }, time.Second, time.Millisecond)
	// both replies arrive in a single read
	require.NoError(t, f.sim.WriteRaw(append(first.Bytes(), second.Bytes()...)))

	select {
	case res := <-resCh:
		require.NoError(t, res.err)
		v, err := res.reply.PayloadUint8()
		require.NoError(t, err)
		assert.Equal(t, uint8(1), v)
	case <-time.After(time.Second):
		t.Fatal("command did not complete")
	}

	assert.Equal(t, 0, f.dev.Pending())
	require.Eventually(t, func() bool { return f.tr.Subscribers() == 0 }, time.Second, time.Millisecond)
	assert.Equal(t, transport.OpenState, f.tr.State())
}

func TestCommand_InvalidCommands(t *testing.T) {
	f := newFixture(t)

	_, err := f.dev.Command(context.Background(), nil)
	assert.ErrorIs(t, err, device.ErrInvalidCommand)

	evt, err := harp.FromValues[uint8](harp.Event, 1, 1)
	require.NoError(t, err)
	_, err = f.dev.Command(context.Background(), evt)
	assert.ErrorIs(t, err, device.ErrInvalidCommand)

	_, err = f.dev.Command(context.Background(), harp.Decode([]byte{1, 2}))
	assert.ErrorIs(t, err, device.ErrInvalidCommand)
}

func TestCommand_ConcurrentDistinctRegisters(t *testing.T) {
	f := newFixture(t)
	for addr := byte(32); addr < 48; addr++ {
		f.sim.SetRegister(addr, harp.U16, harp.AppendElements(nil, uint16(addr)*10))
	}

	var wg sync.WaitGroup
	for addr := byte(32); addr < 48; addr++ {
		wg.Add(1)
		go func(addr byte) {
			defer wg.Done()
			v, err := device.Read[uint16](context.Background(), f.dev, addr)
			if assert.NoError(t, err) {
				assert.Equal(t, uint16(addr)*10, v)
			}
		}(addr)
	}
	wg.Wait()

	assert.Equal(t, 0, f.dev.Pending())
}

func TestReadWrite_Generic(t *testing.T) {
	f := newFixture(t)
	f.sim.SetRegister(40, harp.Float, harp.AppendElements(nil, float32(0), float32(0)))

	ack, err := device.Write(context.Background(), f.dev, 40, float32(1.5), float32(-2.25))
	require.NoError(t, err)
	assert.Equal(t, harp.Write, ack.MessageType())

	values, err := device.ReadArray[float32](context.Background(), f.dev, 40)
	require.NoError(t, err)
	assert.Equal(t, []float32{1.5, -2.25}, values)

	// scalar read of a two element register
	_, err = device.Read[float32](context.Background(), f.dev, 40)
	assert.ErrorIs(t, err, harp.ErrPayloadTypeMismatch)
}

func TestNew_Errors(t *testing.T) {
	_, err := device.New(nil)
	assert.Error(t, err)

	host, far := transport.Pipe()
	defer far.Close()
	tr, err := transport.New(context.Background(), host, transport.WithLogger(logger.NewMockLogger().AllowAll()))
	require.NoError(t, err)
	defer tr.Close()

	_, err = device.New(tr, device.WithCommandTimeout(-time.Second))
	assert.Error(t, err)
	_, err = device.New(tr, device.WithLogger(nil))
	assert.Error(t, err)
}
