package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/pkg/errors"
	"github.com/urfave/cli"

	"github.com/kvengine/miniredis"
)

// VERSION is injected by build flags when packaging official binaries.
var VERSION = "SELFBUILD"

func main() {
	if VERSION == "SELFBUILD" {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	}

	app := cli.NewApp()
	app.Name = "miniredis-client"
	app.Usage = "client for the miniature RESP-compatible key/value server"
	app.Version = VERSION
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "hostname", Value: "127.0.0.1", Usage: "server hostname"},
		cli.IntFlag{Name: "port, p", Value: miniredis.DefaultPort, Usage: "server port"},
	}
	app.Commands = []cli.Command{
		getCommand,
		setCommand,
		publishCommand,
		subscribeCommand,
		pingCommand,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func dial(c *cli.Context) (*miniredis.Client, error) {
	addr := fmt.Sprintf("%s:%d", c.GlobalString("hostname"), c.GlobalInt("port"))
	return miniredis.Dial(addr)
}

var getCommand = cli.Command{
	Name:      "get",
	Usage:     "fetch the value stored at a key",
	ArgsUsage: "<key>",
	Action: func(c *cli.Context) error {
		if c.NArg() != 1 {
			return errors.New("get requires exactly one key")
		}
		client, err := dial(c)
		if err != nil {
			return err
		}
		defer client.Close()

		value, ok, err := client.Get(c.Args().Get(0))
		if err != nil {
			return err
		}
		printValue(value, ok)
		return nil
	},
}

var setCommand = cli.Command{
	Name:      "set",
	Usage:     "store a value, with an optional expiration in milliseconds",
	ArgsUsage: "<key> <value> [expire_ms]",
	Action: func(c *cli.Context) error {
		if c.NArg() < 2 || c.NArg() > 3 {
			return errors.New("set requires a key, a value, and an optional expiration in ms")
		}
		client, err := dial(c)
		if err != nil {
			return err
		}
		defer client.Close()

		key, value := c.Args().Get(0), []byte(c.Args().Get(1))
		if c.NArg() == 3 {
			ms, err := strconv.ParseUint(c.Args().Get(2), 10, 64)
			if err != nil {
				return errors.Wrap(err, "invalid expiration")
			}
			err = client.SetExpires(key, value, time.Duration(ms)*time.Millisecond)
			if err != nil {
				return err
			}
		} else if err := client.Set(key, value); err != nil {
			return err
		}
		fmt.Println("OK")
		return nil
	},
}

var publishCommand = cli.Command{
	Name:      "publish",
	Usage:     "publish a message to a channel",
	ArgsUsage: "<channel> <message>",
	Action: func(c *cli.Context) error {
		if c.NArg() != 2 {
			return errors.New("publish requires a channel and a message")
		}
		client, err := dial(c)
		if err != nil {
			return err
		}
		defer client.Close()

		n, err := client.Publish(c.Args().Get(0), []byte(c.Args().Get(1)))
		if err != nil {
			return err
		}
		fmt.Printf("delivered to %d subscriber(s)\n", n)
		return nil
	},
}

var subscribeCommand = cli.Command{
	Name:      "subscribe",
	Usage:     "subscribe to one or more channels until interrupted",
	ArgsUsage: "<channel> [<channel> ...]",
	Action: func(c *cli.Context) error {
		channels := []string(c.Args())
		if len(channels) == 0 {
			return errors.New("subscribe requires at least one channel")
		}
		client, err := dial(c)
		if err != nil {
			return err
		}
		defer client.Close()

		sub, err := client.Subscribe(channels...)
		if err != nil {
			return err
		}
		return runSubscriber(sub)
	},
}

var pingCommand = cli.Command{
	Name:      "ping",
	Usage:     "check connectivity to the server",
	ArgsUsage: "[msg]",
	Action: func(c *cli.Context) error {
		client, err := dial(c)
		if err != nil {
			return err
		}
		defer client.Close()

		var msg []byte
		if c.NArg() > 0 {
			msg = []byte(c.Args().Get(0))
		}
		reply, err := client.Ping(msg)
		if err != nil {
			return err
		}
		fmt.Printf("%q\n", string(reply))
		return nil
	},
}

// runSubscriber prints messages as they arrive and sends the server a
// shutdown frame on SIGINT so the session ends cleanly instead of just
// dropping the socket.
func runSubscriber(sub *miniredis.Subscriber) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)

	type received struct {
		msg *miniredis.Message
		err error
	}
	msgCh := make(chan received, 1)
	go func() {
		for {
			msg, err := sub.NextMessage()
			msgCh <- received{msg: msg, err: err}
			if err != nil || msg == nil {
				return
			}
		}
	}()

	for {
		select {
		case <-sigCh:
			return sub.SendShutdown()
		case r := <-msgCh:
			if r.err != nil {
				return r.err
			}
			if r.msg == nil {
				fmt.Println("server closed the connection")
				return nil
			}
			fmt.Printf("message from %q: %q\n", r.msg.Channel, string(r.msg.Payload))
		}
	}
}

func printValue(value []byte, ok bool) {
	if !ok {
		fmt.Println("(nil)")
		return
	}
	if utf8.Valid(value) {
		fmt.Printf("%q\n", string(value))
		return
	}
	fmt.Printf("%v\n", value)
}
