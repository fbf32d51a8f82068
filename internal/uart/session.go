package uart

import (
	"context"
	"errors"
	"fmt"
	"os"

	"bleuart/internal/central"
)

// Send transmits one line of text to the peripheral at address. A line
// starting with the command prefix is written with acknowledgement
// after subscribing to the notify characteristic, and exactly one
// reply is awaited, decoded, and printed; any other line is written
// without acknowledgement and nothing is awaited. The connection is
// released exactly once on every path out of the call.
func (c *Client) Send(ctx context.Context, adapterName, address, text string) error {
	if text == "" {
		return errors.New("uart: refusing to send an empty message")
	}
	kind := Classify(text)

	adapter, err := c.resolveAdapter(ctx, adapterName)
	if err != nil {
		return err
	}
	dev, err := c.findDevice(ctx, adapter, address)
	if err != nil {
		return err
	}
	if err := c.connect(ctx, dev, address); err != nil {
		return err
	}
	defer func() {
		if err := dev.Disconnect(context.WithoutCancel(ctx)); err != nil {
			c.log.Warn("disconnect failed", "address", address, "err", err)
		}
	}()

	tx, rx, err := c.resolveChars(ctx, dev)
	if err != nil {
		return err
	}

	// A command's reply can arrive immediately after the write, so the
	// subscription must be live before the write goes out.
	var notes <-chan []byte
	if kind == CommandMessage {
		notes, err = dev.Subscribe(ctx, rx)
		if err != nil {
			return fmt.Errorf("uart: subscribe: %w", err)
		}
	}

	mode := central.WriteWithoutResponse
	if kind == CommandMessage {
		mode = central.WriteWithResponse
	}
	if err := dev.Write(ctx, tx, []byte(text), mode); err != nil {
		return fmt.Errorf("uart: write: %w", err)
	}

	if kind == CommandMessage {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data, ok := <-notes:
			if !ok {
				return fmt.Errorf("uart: notification stream closed before the reply arrived")
			}
			line, err := decodeNotification(data)
			if err != nil {
				return err
			}
			fmt.Fprintln(c.out, line)
		}
		// Single-shot: stop listening after the one reply.
		if err := dev.Unsubscribe(ctx, rx); err != nil {
			c.log.Warn("unsubscribe failed", "err", err)
		}
	}
	return nil
}

// EndReason says why a duplex session ended.
type EndReason int

const (
	// EndQuit means the operator entered the quit token; the link was
	// released in an orderly disconnect.
	EndQuit EndReason = iota
	// EndStreamClosed means the notification stream yielded no further
	// items: the peripheral disconnected or the link failed.
	EndStreamClosed
)

// SessionEnd is the outcome of a completed duplex session, so callers
// can embed the session in a larger program instead of having it tear
// the process down.
type SessionEnd struct {
	Reason EndReason
}

// QuitToken ends an interactive session when entered on its own line.
const QuitToken = "quit()"

// REPL runs an interactive duplex session with the peripheral at
// address: notifications print to the output as they arrive while
// operator lines are written to the peripheral without
// acknowledgement. The session runs until the operator enters
// QuitToken (orderly disconnect, EndQuit) or the notification stream
// terminates (EndStreamClosed). A decode or transport failure ends the
// session with an error and no final disconnect attempt.
func (c *Client) REPL(ctx context.Context, adapterName, address string) (SessionEnd, error) {
	adapter, err := c.resolveAdapter(ctx, adapterName)
	if err != nil {
		return SessionEnd{}, err
	}
	dev, err := c.findDevice(ctx, adapter, address)
	if err != nil {
		return SessionEnd{}, err
	}
	if err := c.connect(ctx, dev, address); err != nil {
		return SessionEnd{}, err
	}

	tx, rx, err := c.resolveChars(ctx, dev)
	if err != nil {
		return SessionEnd{}, err
	}
	notes, err := dev.Subscribe(ctx, rx)
	if err != nil {
		return SessionEnd{}, fmt.Errorf("uart: subscribe: %w", err)
	}

	fmt.Fprintf(c.out, "Connected. Type %s to exit.\n", QuitToken)

	lines := c.lines
	if lines == nil {
		lines = Lines(os.Stdin)
	}
	b := &bridge{
		dev:   dev,
		tx:    tx,
		notes: notes,
		lines: lines,
		out:   c.out,
		poll:  c.poll,
	}
	end, err := b.run(ctx)
	if err != nil {
		return SessionEnd{}, err
	}
	if end.Reason == EndQuit {
		if err := dev.Disconnect(context.WithoutCancel(ctx)); err != nil {
			return end, fmt.Errorf("uart: disconnect: %w", err)
		}
	}
	return end, nil
}
