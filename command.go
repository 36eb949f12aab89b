package miniredis

import "strings"

// applyContext carries everything a Command needs to run: the shared
// store, the connection to answer on, and the handler's shutdown observer
// (only Subscribe uses the latter directly).
type applyContext struct {
	db       Db
	conn     *Connection
	shutdown *Shutdown
}

// Command is one parsed client request, ready to run against a store and
// write its reply.
type Command interface {
	Name() string
	apply(ctx *applyContext) error
}

// ParseCommand decodes frame (which must be an Array whose first element
// names the command) into a Command. Unrecognized names produce an
// UnknownCommand rather than an error, since the server still needs to
// answer with a proper error frame instead of dropping the connection.
func ParseCommand(frame Frame) (Command, error) {
	parse, err := NewParse(frame)
	if err != nil {
		return nil, err
	}
	name, err := parse.NextString()
	if err != nil {
		return nil, err
	}
	name = strings.ToLower(name)

	var cmd Command
	switch name {
	case "get":
		cmd, err = parseGet(parse)
	case "set":
		cmd, err = parseSet(parse)
	case "publish":
		cmd, err = parsePublish(parse)
	case "subscribe":
		cmd, err = parseSubscribe(parse)
	case "ping":
		cmd, err = parsePing(parse)
	default:
		return &UnknownCommand{command: name}, nil
	}
	if err != nil {
		return nil, err
	}
	if err := parse.Finish(); err != nil {
		return nil, err
	}
	return cmd, nil
}
