package uart

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bleuart/internal/central"
)

func TestSendCommandWaitsForSingleReply(t *testing.T) {
	p := uartPeripheral("AA:BB:CC:DD:EE:FF", "dev", -40)
	p.Reply = [][]byte{[]byte("OK\n")}
	adapter := central.NewMockAdapter("hci0", p)
	out := &syncBuffer{}
	c := testClient(central.NewMockCentral(adapter), out, nil)

	err := c.Send(context.Background(), "hci0", "AA:BB:CC:DD:EE:FF", "!status")
	require.NoError(t, err)

	// Trailing terminator stripped before display.
	assert.Equal(t, "OK\n", out.String())

	// Exactly one subscribe, established before the write.
	assert.Equal(t, 1, p.SubscribeCalls)
	assert.Equal(t, []string{"subscribe", "write-ack", "unsubscribe", "disconnect"}, relevantOps(p.CallLog()))

	require.Len(t, p.Writes, 1)
	assert.Equal(t, []byte("!status"), p.Writes[0])
	assert.Equal(t, central.WriteWithResponse, p.WriteModes[0])
	assert.Equal(t, 1, p.DisconnectCalls)
}

func TestSendPlainMessageIsFireAndForget(t *testing.T) {
	p := uartPeripheral("AA:BB:CC:DD:EE:FF", "dev", -40)
	p.Reply = [][]byte{[]byte("should never arrive\n")}
	adapter := central.NewMockAdapter("hci0", p)
	out := &syncBuffer{}
	c := testClient(central.NewMockCentral(adapter), out, nil)

	err := c.Send(context.Background(), "hci0", "AA:BB:CC:DD:EE:FF", "hello")
	require.NoError(t, err)

	assert.Empty(t, out.String())
	assert.Equal(t, 0, p.SubscribeCalls)
	assert.Equal(t, []string{"write-noack", "disconnect"}, relevantOps(p.CallLog()))
	require.Len(t, p.Writes, 1)
	assert.Equal(t, []byte("hello"), p.Writes[0])
	assert.Equal(t, central.WriteWithoutResponse, p.WriteModes[0])
}

func TestSendRejectsEmptyMessage(t *testing.T) {
	p := uartPeripheral("AA:BB:CC:DD:EE:FF", "dev", -40)
	c := testClient(central.NewMockCentral(central.NewMockAdapter("hci0", p)), io.Discard, nil)

	err := c.Send(context.Background(), "hci0", "AA:BB:CC:DD:EE:FF", "")
	require.Error(t, err)
	assert.Empty(t, p.CallLog())
}

func TestSendDisconnectsOnceWhenServiceDiscoveryFails(t *testing.T) {
	p := uartPeripheral("AA:BB:CC:DD:EE:FF", "dev", -40)
	p.CharsErr = errors.New("gatt browse failed")
	c := testClient(central.NewMockCentral(central.NewMockAdapter("hci0", p)), io.Discard, nil)

	err := c.Send(context.Background(), "hci0", "AA:BB:CC:DD:EE:FF", "!status")
	require.Error(t, err)
	assert.Equal(t, 1, p.DisconnectCalls)
}

func TestSendMissingCharacteristicIsFatal(t *testing.T) {
	p := uartPeripheral("AA:BB:CC:DD:EE:FF", "dev", -40)
	p.Chars = []central.Characteristic{{UUID: TXCharUUID, Handle: "/fixture/char0002"}}
	c := testClient(central.NewMockCentral(central.NewMockAdapter("hci0", p)), io.Discard, nil)

	err := c.Send(context.Background(), "hci0", "AA:BB:CC:DD:EE:FF", "hello")
	assert.ErrorIs(t, err, ErrCharacteristicNotFound)
	assert.Equal(t, 1, p.DisconnectCalls)
}

func TestSendDecodeErrorIsFatal(t *testing.T) {
	p := uartPeripheral("AA:BB:CC:DD:EE:FF", "dev", -40)
	p.Reply = [][]byte{{0xff, 0xfe, 0xfd}}
	c := testClient(central.NewMockCentral(central.NewMockAdapter("hci0", p)), io.Discard, nil)

	err := c.Send(context.Background(), "hci0", "AA:BB:CC:DD:EE:FF", "!status")
	assert.ErrorIs(t, err, ErrDecode)
	assert.Equal(t, 1, p.DisconnectCalls)
}

func TestSendDeviceNeverDiscovered(t *testing.T) {
	adapter := central.NewMockAdapter("hci0", uartPeripheral("11:11:11:11:11:11", "other", -50))
	c := testClient(central.NewMockCentral(adapter), io.Discard, nil)

	err := c.Send(context.Background(), "hci0", "AA:BB:CC:DD:EE:FF", "hello")
	assert.ErrorIs(t, err, ErrDeviceNotFound)
}
