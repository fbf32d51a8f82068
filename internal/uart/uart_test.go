package uart

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		text string
		want MessageKind
	}{
		{"!status", CommandMessage},
		{"!", CommandMessage},
		{"!led on", CommandMessage},
		{"hello", PlainMessage},
		{"status!", PlainMessage},
		{" !status", PlainMessage},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.text), "Classify(%q)", tt.text)
	}
}

func TestDecodeNotificationTrimsTerminators(t *testing.T) {
	tests := []struct {
		in   []byte
		want string
	}{
		{[]byte("OK\n"), "OK"},
		{[]byte("OK\r\n"), "OK"},
		{[]byte("OK"), "OK"},
		{[]byte("multi\nline\n"), "multi\nline"},
		{[]byte(""), ""},
	}
	for _, tt := range tests {
		got, err := decodeNotification(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestDecodeNotificationRejectsInvalidUTF8(t *testing.T) {
	_, err := decodeNotification([]byte{0xff, 0xfe})
	assert.ErrorIs(t, err, ErrDecode)
}
