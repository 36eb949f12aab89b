package miniredis

// GetCommand fetches the value stored at a key. Format: GET <key>
type GetCommand struct {
	Key string
}

// NewGetCommand builds a GetCommand directly, for use by the client.
func NewGetCommand(key string) *GetCommand {
	return &GetCommand{Key: key}
}

func parseGet(p *Parse) (*GetCommand, error) {
	key, err := p.NextString()
	if err != nil {
		return nil, err
	}
	return &GetCommand{Key: key}, nil
}

func (c *GetCommand) Name() string { return "get" }

func (c *GetCommand) apply(ctx *applyContext) error {
	value, ok := ctx.db.Get(c.Key)
	var resp Frame
	if ok {
		resp = BulkFrame(value)
	} else {
		resp = NullFrame()
	}
	return ctx.conn.WriteFrame(resp)
}

func (c *GetCommand) toFrame() Frame {
	return ArrayFrame(BulkFrame([]byte("get")), BulkFrame([]byte(c.Key)))
}
