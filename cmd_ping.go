package miniredis

import "github.com/pkg/errors"

// PingCommand checks connectivity, optionally echoing a message back.
// Format: PING [<message>]
type PingCommand struct {
	Msg    []byte
	HasMsg bool
}

func parsePing(p *Parse) (*PingCommand, error) {
	msg, err := p.NextBytes()
	if err == nil {
		return &PingCommand{Msg: msg, HasMsg: true}, nil
	}
	if errors.Is(err, ErrEndOfStream) {
		return &PingCommand{}, nil
	}
	return nil, err
}

func (c *PingCommand) Name() string { return "ping" }

func (c *PingCommand) apply(ctx *applyContext) error {
	if c.HasMsg {
		return ctx.conn.WriteFrame(BulkFrame(c.Msg))
	}
	return ctx.conn.WriteFrame(Simple("PONG"))
}

func (c *PingCommand) toFrame() Frame {
	if c.HasMsg {
		return ArrayFrame(BulkFrame([]byte("ping")), BulkFrame(c.Msg))
	}
	return ArrayFrame(BulkFrame([]byte("ping")))
}
