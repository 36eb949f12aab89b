package miniredis

import "fmt"

// UnknownCommand represents any command name ParseCommand doesn't
// recognize. It still answers the client (with an Error frame) rather
// than dropping the connection.
type UnknownCommand struct {
	command string
}

func (c *UnknownCommand) Name() string { return c.command }

func (c *UnknownCommand) apply(ctx *applyContext) error {
	return ctx.conn.WriteFrame(ErrorFrame(fmt.Sprintf("unknown command %q", c.command)))
}
