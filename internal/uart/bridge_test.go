package uart

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bleuart/internal/central"
)

func contains(ops []string, op string) bool {
	for _, o := range ops {
		if o == op {
			return true
		}
	}
	return false
}

func TestREPLQuitTokenDisconnectsWithoutWriting(t *testing.T) {
	p := uartPeripheral("AA:BB:CC:DD:EE:FF", "dev", -40)
	adapter := central.NewMockAdapter("hci0", p)
	in := make(chan string, 1)
	in <- "quit()"
	out := &syncBuffer{}
	c := testClient(central.NewMockCentral(adapter), out, in)

	end, err := c.REPL(context.Background(), "hci0", "AA:BB:CC:DD:EE:FF")
	require.NoError(t, err)
	assert.Equal(t, EndQuit, end.Reason)
	assert.Equal(t, 1, p.DisconnectCalls)
	assert.Empty(t, p.Writes)
}

func TestREPLWritesOperatorLinesWithoutAck(t *testing.T) {
	p := uartPeripheral("AA:BB:CC:DD:EE:FF", "dev", -40)
	adapter := central.NewMockAdapter("hci0", p)
	in := make(chan string, 4)
	in <- "  hello  "
	in <- ""
	in <- "quit()"
	out := &syncBuffer{}
	c := testClient(central.NewMockCentral(adapter), out, in)

	end, err := c.REPL(context.Background(), "hci0", "AA:BB:CC:DD:EE:FF")
	require.NoError(t, err)
	assert.Equal(t, EndQuit, end.Reason)

	// One trimmed write; the blank line and the quit token never reach
	// the peripheral.
	require.Len(t, p.Writes, 1)
	assert.Equal(t, []byte("hello"), p.Writes[0])
	assert.Equal(t, central.WriteWithoutResponse, p.WriteModes[0])
}

func TestREPLPrintsNotificationsUntilStreamCloses(t *testing.T) {
	p := uartPeripheral("AA:BB:CC:DD:EE:FF", "dev", -40)
	adapter := central.NewMockAdapter("hci0", p)
	in := make(chan string)
	out := &syncBuffer{}
	c := testClient(central.NewMockCentral(adapter), out, in)

	done := make(chan struct{})
	var end SessionEnd
	var replErr error
	go func() {
		defer close(done)
		end, replErr = c.REPL(context.Background(), "hci0", "AA:BB:CC:DD:EE:FF")
	}()

	require.Eventually(t, func() bool {
		return contains(p.CallLog(), "subscribe")
	}, time.Second, time.Millisecond)

	require.NoError(t, p.PushNotification([]byte("temp: 21C\r\n")))
	require.NoError(t, p.PushNotification([]byte("temp: 22C\n")))
	p.CloseStream()
	<-done

	require.NoError(t, replErr)
	assert.Equal(t, EndStreamClosed, end.Reason)
	assert.Contains(t, out.String(), "temp: 21C\n")
	assert.Contains(t, out.String(), "temp: 22C\n")
	// The link is already gone; no disconnect is attempted.
	assert.Equal(t, 0, p.DisconnectCalls)
}

func TestREPLDecodeErrorEndsSession(t *testing.T) {
	p := uartPeripheral("AA:BB:CC:DD:EE:FF", "dev", -40)
	adapter := central.NewMockAdapter("hci0", p)
	in := make(chan string)
	c := testClient(central.NewMockCentral(adapter), &syncBuffer{}, in)

	done := make(chan struct{})
	var replErr error
	go func() {
		defer close(done)
		_, replErr = c.REPL(context.Background(), "hci0", "AA:BB:CC:DD:EE:FF")
	}()

	require.Eventually(t, func() bool {
		return contains(p.CallLog(), "subscribe")
	}, time.Second, time.Millisecond)

	require.NoError(t, p.PushNotification([]byte{0xff, 0xfe}))
	<-done

	assert.ErrorIs(t, replErr, ErrDecode)
	assert.Equal(t, 0, p.DisconnectCalls)
}

func TestLinesDeliversInputAndClosesOnEOF(t *testing.T) {
	ch := Lines(strings.NewReader("first\nsecond\n"))

	assert.Equal(t, "first", <-ch)
	assert.Equal(t, "second", <-ch)
	_, ok := <-ch
	assert.False(t, ok)
}

func TestBridgeSurfacesWriteFailure(t *testing.T) {
	p := uartPeripheral("AA:BB:CC:DD:EE:FF", "dev", -40)
	notes, err := p.Subscribe(context.Background(), p.Chars[1])
	require.NoError(t, err)

	in := make(chan string, 1)
	in <- "hello"
	b := &bridge{
		dev:   &failingWriter{MockPeripheral: p},
		tx:    p.Chars[0],
		notes: notes,
		lines: in,
		out:   &syncBuffer{},
		poll:  2 * time.Millisecond,
	}

	_, err = b.run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "write")
}

// failingWriter wraps a mock peripheral and fails every write.
type failingWriter struct {
	*central.MockPeripheral
}

func (f *failingWriter) Write(context.Context, central.Characteristic, []byte, central.WriteMode) error {
	return assert.AnError
}
