// Package uart talks to Bluetooth Low Energy peripherals exposing the
// Nordic UART service, a serial-over-GATT transport with one write
// characteristic and one notify characteristic. It covers discovery
// (adapter resolution, device lookup by address, timed scans) and data
// exchange (one-shot sends, command/response exchanges, and an
// interactive duplex session).
package uart

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Protocol constants fixed by the peripheral firmware.
var (
	// ServiceUUID identifies the Nordic UART service.
	ServiceUUID = uuid.MustParse("6e400001-b5a3-f393-e0a9-e50e24dcca9e")
	// TXCharUUID is the write characteristic (central to peripheral).
	TXCharUUID = uuid.MustParse("6e400002-b5a3-f393-e0a9-e50e24dcca9e")
	// RXCharUUID is the notify characteristic (peripheral to central).
	RXCharUUID = uuid.MustParse("6e400003-b5a3-f393-e0a9-e50e24dcca9e")
)

// commandPrefix marks an outbound line as a command expecting exactly
// one reply.
const commandPrefix = "!"

// MessageKind classifies an outbound message.
type MessageKind int

const (
	// PlainMessage is fire-and-forget; it is written without
	// acknowledgement and no reply is awaited.
	PlainMessage MessageKind = iota
	// CommandMessage is written with acknowledgement and the caller
	// waits for exactly one notification in reply.
	CommandMessage
)

// Classify derives the message kind from the first character of text.
// The classification is computed once at submission time and never
// revisited. The empty string must be rejected before submission.
func Classify(text string) MessageKind {
	if strings.HasPrefix(text, commandPrefix) {
		return CommandMessage
	}
	return PlainMessage
}

// decodeNotification converts a raw notification payload to display
// text. The link is assumed to carry only text; a non-UTF-8 payload is
// a hard error. Trailing line terminators are stripped.
func decodeNotification(data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", fmt.Errorf("uart: %w", ErrDecode)
	}
	return strings.TrimRight(string(data), "\r\n"), nil
}
