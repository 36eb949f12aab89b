package miniredis

import (
	"io"
	"sync"

	"github.com/pkg/errors"
)

// SubscribeCommand switches the connection into subscriber mode for one or
// more channels. Format: SUBSCRIBE <channel> [<channel> ...]
//
// Once applied, the client can no longer issue other commands: the only
// frame it may usefully send is Simple("shutdown"), which ends the
// subscription cleanly. Any other frame received while subscribed is
// ignored and the session continues.
type SubscribeCommand struct {
	Channels []string
}

func parseSubscribe(p *Parse) (*SubscribeCommand, error) {
	first, err := p.NextString()
	if err != nil {
		return nil, err
	}
	channels := []string{first}
	for {
		ch, err := p.NextString()
		if err == nil {
			channels = append(channels, ch)
			continue
		}
		if errors.Is(err, ErrEndOfStream) {
			break
		}
		return nil, err
	}
	return &SubscribeCommand{Channels: channels}, nil
}

func (c *SubscribeCommand) Name() string { return "subscribe" }

// namedMessage tags a pub/sub payload with the channel it arrived on, the
// shape a merged stream of several channels' messages needs.
type namedMessage struct {
	channel string
	payload []byte
}

func (c *SubscribeCommand) apply(ctx *applyContext) error {
	type link struct {
		channel string
		cancel  func()
	}

	merged := make(chan namedMessage)
	done := make(chan struct{})
	var forwarders sync.WaitGroup

	var links []link
	defer func() {
		close(done)
		for _, l := range links {
			l.cancel()
		}
		forwarders.Wait()
	}()

	for _, channel := range c.Channels {
		msgs, cancel := ctx.db.Subscribe(channel)
		links = append(links, link{channel: channel, cancel: cancel})

		forwarders.Add(1)
		go forwardChannel(channel, msgs, merged, done, &forwarders)

		ack := ArrayFrame(BulkFrame([]byte("subscribe")), BulkFrame([]byte(channel)), Integer(uint64(len(links))))
		if err := ctx.conn.WriteFrame(ack); err != nil {
			return err
		}
	}

	clientFrames := ctx.conn.readLoop(done)

	for {
		select {
		case msg := <-merged:
			frame := ArrayFrame(BulkFrame([]byte("message")), BulkFrame([]byte(msg.channel)), BulkFrame(msg.payload))
			if err := ctx.conn.WriteFrame(frame); err != nil {
				return err
			}

		case res := <-clientFrames:
			if res.err != nil {
				if errors.Is(res.err, io.EOF) {
					return nil
				}
				return res.err
			}
			if res.frame.Kind == KindSimple && res.frame.Str == "shutdown" {
				return nil
			}
			// Any other frame is ignored; the loop continues and the
			// background reader is already waiting on the next one.

		case <-ctx.shutdown.Done():
			return nil
		}
	}
}

// forwardChannel relays messages from one subscription into the shared
// merged stream until the subscription closes (the channel was cancelled)
// or the session ends.
func forwardChannel(channel string, msgs <-chan []byte, merged chan<- namedMessage, done <-chan struct{}, wg *sync.WaitGroup) {
	defer wg.Done()
	for {
		select {
		case payload, ok := <-msgs:
			if !ok {
				return
			}
			select {
			case merged <- namedMessage{channel: channel, payload: payload}:
			case <-done:
				return
			}
		case <-done:
			return
		}
	}
}

func (c *SubscribeCommand) toFrame() Frame {
	items := make([]Frame, 0, len(c.Channels)+1)
	items = append(items, BulkFrame([]byte("subscribe")))
	for _, channel := range c.Channels {
		items = append(items, BulkFrame([]byte(channel)))
	}
	return ArrayFrame(items...)
}
