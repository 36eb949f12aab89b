package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/urfave/cli"

	"github.com/kvengine/miniredis"
)

// VERSION is stamped by the release build; SELFBUILD means a local,
// non-release build.
var VERSION = "SELFBUILD"

func main() {
	if VERSION == "SELFBUILD" {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	}

	app := cli.NewApp()
	app.Name = "miniredis-server"
	app.Usage = "a miniature RESP-compatible key/value server"
	app.Version = VERSION
	app.Flags = []cli.Flag{
		cli.IntFlag{
			Name:  "port, p",
			Value: miniredis.DefaultPort,
			Usage: "listen port",
		},
		cli.StringFlag{
			Name:  "log",
			Value: "",
			Usage: "redirect log output to this file instead of stderr",
		},
		cli.BoolFlag{
			Name:  "quiet",
			Usage: "suppress per-connection open/close logging",
		},
	}
	app.Action = runServer

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func runServer(c *cli.Context) error {
	if path := c.String("log"); path != "" {
		f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
		if err != nil {
			return errors.Wrap(err, "open log file")
		}
		defer f.Close()
		log.SetOutput(f)
	}

	addr := fmt.Sprintf("127.0.0.1:%d", c.Int("port"))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrap(err, "listen")
	}
	log.Println("listening on:", addr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := miniredis.Run(ctx, ln, c.Bool("quiet")); err != nil {
		color.Red("server exited with error: %v", err)
		return err
	}
	log.Println("server shut down cleanly")
	return nil
}
