package uart

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"bleuart/internal/central"
)

// Lines reads operator input line by line on a dedicated goroutine and
// hands completed lines over a channel, so a human who has not pressed
// enter yet never stalls radio I/O. The channel is closed when the
// reader reaches end of input.
func Lines(r io.Reader) <-chan string {
	ch := make(chan string, 8)
	go func() {
		defer close(ch)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			ch <- sc.Text()
		}
	}()
	return ch
}

// bridge pumps two independent sources that must not block each other:
// peripheral notifications onto the display, and operator lines onto
// the write characteristic.
type bridge struct {
	dev   central.Peripheral
	tx    central.Characteristic
	notes <-chan []byte
	lines <-chan string
	out   io.Writer
	poll  time.Duration
}

// run blocks until the session ends. The inbound loop owns the calling
// goroutine; the outbound loop runs beside it on a ticker cadence and
// reports either the quit token or a write failure.
func (b *bridge) run(ctx context.Context) (SessionEnd, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	quit := make(chan struct{})
	errc := make(chan error, 1)
	go b.pumpOutbound(ctx, quit, errc)

	for {
		select {
		case <-ctx.Done():
			return SessionEnd{}, ctx.Err()
		case err := <-errc:
			return SessionEnd{}, err
		case <-quit:
			return SessionEnd{Reason: EndQuit}, nil
		case data, ok := <-b.notes:
			if !ok {
				return SessionEnd{Reason: EndStreamClosed}, nil
			}
			line, err := decodeNotification(data)
			if err != nil {
				return SessionEnd{}, err
			}
			fmt.Fprintln(b.out, line)
			// Flush immediately so interleaving with prompt redraws is
			// not visibly delayed.
			if f, ok := b.out.(interface{ Flush() error }); ok {
				if err := f.Flush(); err != nil {
					return SessionEnd{}, fmt.Errorf("uart: flush output: %w", err)
				}
			}
		}
	}
}

// pumpOutbound polls the operator line channel without blocking: each
// tick it either observes a line or observes emptiness and yields
// until the next tick. The tick interval bounds input latency.
func (b *bridge) pumpOutbound(ctx context.Context, quit chan<- struct{}, errc chan<- error) {
	ticker := time.NewTicker(b.poll)
	defer ticker.Stop()

	lines := b.lines
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			select {
			case line, ok := <-lines:
				if !ok {
					// Input source exhausted; keep the session alive
					// for inbound traffic.
					lines = nil
					continue
				}
				line = strings.TrimSpace(line)
				if line == "" {
					continue
				}
				if line == QuitToken {
					close(quit)
					return
				}
				if err := b.dev.Write(ctx, b.tx, []byte(line), central.WriteWithoutResponse); err != nil {
					errc <- fmt.Errorf("uart: write: %w", err)
					return
				}
			default:
			}
		}
	}
}
