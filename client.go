package miniredis

import (
	"io"
	"net"
	"time"

	"github.com/pkg/errors"
)

// Client issues commands to a miniredis server over one TCP connection and
// decodes the replies.
type Client struct {
	conn *Connection
}

// Dial connects to a server listening at addr (host:port).
func Dial(addr string) (*Client, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, errors.Wrap(err, "dial")
	}
	return &Client{conn: NewConnection(conn)}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error { return c.conn.Close() }

// Get fetches the value stored at key. ok is false if the key is absent,
// which includes an expired key once the server has purged it.
func (c *Client) Get(key string) (value []byte, ok bool, err error) {
	cmd := NewGetCommand(key)
	if err := c.conn.WriteFrame(cmd.toFrame()); err != nil {
		return nil, false, err
	}
	resp, err := c.readResponse()
	if err != nil {
		return nil, false, err
	}
	switch resp.Kind {
	case KindBulk:
		return resp.Bulk, true, nil
	case KindSimple:
		return []byte(resp.Str), true, nil
	case KindNull:
		return nil, false, nil
	default:
		return nil, false, unexpectedFrameError(resp)
	}
}

// Set stores value at key with no expiration.
func (c *Client) Set(key string, value []byte) error {
	return c.set(&SetCommand{Key: key, Value: value})
}

// SetExpires stores value at key, to be purged after ttl elapses.
func (c *Client) SetExpires(key string, value []byte, ttl time.Duration) error {
	return c.set(&SetCommand{Key: key, Value: value, TTL: &ttl})
}

func (c *Client) set(cmd *SetCommand) error {
	if err := c.conn.WriteFrame(cmd.toFrame()); err != nil {
		return err
	}
	resp, err := c.readResponse()
	if err != nil {
		return err
	}
	if resp.Kind == KindSimple && resp.Str == "OK" {
		return nil
	}
	return unexpectedFrameError(resp)
}

// Publish sends message to channel, returning how many subscribers
// received it.
func (c *Client) Publish(channel string, message []byte) (uint64, error) {
	cmd := &PublishCommand{Channel: channel, Message: message}
	if err := c.conn.WriteFrame(cmd.toFrame()); err != nil {
		return 0, err
	}
	resp, err := c.readResponse()
	if err != nil {
		return 0, err
	}
	if resp.Kind == KindInteger {
		return resp.Int, nil
	}
	return 0, unexpectedFrameError(resp)
}

// Ping checks connectivity. If msg is non-nil, the server echoes it back;
// otherwise it replies "PONG".
func (c *Client) Ping(msg []byte) ([]byte, error) {
	cmd := &PingCommand{Msg: msg, HasMsg: msg != nil}
	if err := c.conn.WriteFrame(cmd.toFrame()); err != nil {
		return nil, err
	}
	resp, err := c.readResponse()
	if err != nil {
		return nil, err
	}
	switch resp.Kind {
	case KindSimple:
		return []byte(resp.Str), nil
	case KindBulk:
		return resp.Bulk, nil
	default:
		return nil, unexpectedFrameError(resp)
	}
}

// Subscribe sends a SUBSCRIBE for the given channels and waits for every
// ack before returning a Subscriber. After this call, c must not be used
// for any other command: all further I/O on the connection belongs to the
// returned Subscriber.
func (c *Client) Subscribe(channels ...string) (*Subscriber, error) {
	if len(channels) == 0 {
		return nil, errors.New("subscribe requires at least one channel")
	}
	cmd := &SubscribeCommand{Channels: channels}
	if err := c.conn.WriteFrame(cmd.toFrame()); err != nil {
		return nil, err
	}

	for _, channel := range channels {
		resp, err := c.readResponse()
		if err != nil {
			return nil, err
		}
		if resp.Kind != KindArray || len(resp.Array) < 2 {
			return nil, unexpectedFrameError(resp)
		}
		if frameText(resp.Array[0]) != "subscribe" || frameText(resp.Array[1]) != channel {
			return nil, unexpectedFrameError(resp)
		}
	}

	return &Subscriber{client: c, channels: channels}, nil
}

func (c *Client) readResponse() (Frame, error) {
	f, err := c.conn.ReadFrame()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Frame{}, errors.Wrap(ErrConnectionReset, "server closed the connection")
		}
		return Frame{}, err
	}
	if f.Kind == KindError {
		return Frame{}, errors.New(f.Str)
	}
	return f, nil
}

func frameText(f Frame) string {
	switch f.Kind {
	case KindSimple:
		return f.Str
	case KindBulk:
		return string(f.Bulk)
	default:
		return ""
	}
}

func unexpectedFrameError(f Frame) error {
	return errors.Errorf("unexpected response frame: %v", f)
}

// Message is one pub/sub delivery: the channel it arrived on and its
// payload.
type Message struct {
	Channel string
	Payload []byte
}

// Subscriber reads pub/sub messages off a connection that has completed a
// SUBSCRIBE handshake.
type Subscriber struct {
	client   *Client
	channels []string
}

// Channels reports the channels this Subscriber was subscribed to.
func (s *Subscriber) Channels() []string { return s.channels }

// NextMessage blocks for the next published message. A nil Message with a
// nil error means the server closed the connection cleanly.
func (s *Subscriber) NextMessage() (*Message, error) {
	f, err := s.client.conn.ReadFrame()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, err
	}
	if f.Kind != KindArray || len(f.Array) != 3 || frameText(f.Array[0]) != "message" {
		return nil, unexpectedFrameError(f)
	}
	return &Message{Channel: frameText(f.Array[1]), Payload: f.Array[2].Bulk}, nil
}

// SendShutdown tells the server to end this subscribe session cleanly.
func (s *Subscriber) SendShutdown() error {
	return s.client.conn.WriteFrame(Simple("shutdown"))
}

// Close closes the underlying connection.
func (s *Subscriber) Close() error { return s.client.Close() }
