package miniredis

import (
	"time"

	"github.com/pkg/errors"
)

// SetCommand stores a value at a key, with an optional expiration. Format:
// SET <key> <value> [<marker> <expire_ms>]
//
// The token before the expiration count is read and discarded without
// being checked against any particular spelling (e.g. "px"). Any frame
// NextString can decode there is accepted as "yes, a TTL follows."
type SetCommand struct {
	Key   string
	Value []byte
	TTL   *time.Duration
}

func parseSet(p *Parse) (*SetCommand, error) {
	key, err := p.NextString()
	if err != nil {
		return nil, err
	}
	value, err := p.NextBytes()
	if err != nil {
		return nil, err
	}

	var ttl *time.Duration
	if _, err := p.NextString(); err == nil {
		ms, err := p.NextInt()
		if err != nil {
			return nil, err
		}
		d := time.Duration(ms) * time.Millisecond
		ttl = &d
	} else if !errors.Is(err, ErrEndOfStream) {
		return nil, err
	}

	return &SetCommand{Key: key, Value: value, TTL: ttl}, nil
}

func (c *SetCommand) Name() string { return "set" }

func (c *SetCommand) apply(ctx *applyContext) error {
	ctx.db.Set(c.Key, c.Value, c.TTL)
	return ctx.conn.WriteFrame(Simple("OK"))
}

func (c *SetCommand) toFrame() Frame {
	items := []Frame{BulkFrame([]byte("set")), BulkFrame([]byte(c.Key)), BulkFrame(c.Value)}
	if c.TTL != nil {
		items = append(items, BulkFrame([]byte("px")), Integer(uint64(c.TTL.Milliseconds())))
	}
	return ArrayFrame(items...)
}
