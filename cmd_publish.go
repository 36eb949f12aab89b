package miniredis

// PublishCommand sends a message to every current subscriber of a channel.
// Format: PUBLISH <channel> <message>
type PublishCommand struct {
	Channel string
	Message []byte
}

func parsePublish(p *Parse) (*PublishCommand, error) {
	channel, err := p.NextString()
	if err != nil {
		return nil, err
	}
	message, err := p.NextBytes()
	if err != nil {
		return nil, err
	}
	return &PublishCommand{Channel: channel, Message: message}, nil
}

func (c *PublishCommand) Name() string { return "publish" }

func (c *PublishCommand) apply(ctx *applyContext) error {
	n := ctx.db.Publish(c.Channel, c.Message)
	return ctx.conn.WriteFrame(Integer(uint64(n)))
}

func (c *PublishCommand) toFrame() Frame {
	return ArrayFrame(BulkFrame([]byte("publish")), BulkFrame([]byte(c.Channel)), BulkFrame(c.Message))
}
