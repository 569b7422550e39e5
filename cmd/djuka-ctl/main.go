package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	cli "github.com/spf13/pflag"

	"djuka/internal/ipc"
)

func usage() {
	fmt.Fprintln(os.Stderr, `usage: djuka-ctl [-s socket] <command> [arg]

commands:
  say <text>        handle a typed turn
  choose <channel>  resolve the pending action (telefon, whatsapp, viber)
  cancel            drop the pending action
  toggle            flip the active state
  listen            start voice capture
  stop              end voice capture
  file <path>       transcribe a voice note
  log               print the conversation
  status            active, listening, typing and pending state`)
	cli.PrintDefaults()
}

func main() {
	socket := cli.StringP("socket", "s", ipc.SocketPath, "Control socket path")
	timeout := cli.DurationP("timeout", "t", time.Minute, "Reply timeout")
	cli.Usage = usage
	cli.Parse()

	args := cli.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	msg := ipc.ControlMessage{Cmd: args[0], Arg: strings.Join(args[1:], " ")}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	reply, err := ipc.Send(ctx, *socket, msg)
	if err != nil {
		if reply.Error != "" {
			fmt.Fprintln(os.Stderr, "djuka:", err)
		} else {
			fmt.Fprintln(os.Stderr, "djuka not running:", err)
		}
		os.Exit(1)
	}
	for _, l := range reply.Lines {
		fmt.Println(l)
	}
}
