package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	log "log/slog"
	"strings"
	"time"

	"djuka/internal/assistant"
	"djuka/internal/capture"
	"djuka/internal/config"
	"djuka/internal/convo"
	"djuka/internal/ipc"
	"djuka/pkg/bus"
)

// answerWait bounds how long a "say" request waits for its oracle answer
// before replying without it.
const answerWait = 30 * time.Second

type daemon struct {
	cfg      config.Config
	asst     *assistant.Assistant
	listener *capture.Listener
}

func (d *daemon) control(ctx context.Context, msg ipc.ControlMessage) ipc.Reply {
	switch msg.Cmd {
	case ipc.CmdSay:
		lines, err := d.say(ctx, msg.Arg)
		if err != nil {
			return ipc.Fail(err)
		}
		return ipc.Ok(lines...)

	case ipc.CmdToggle:
		on, err := d.asst.Toggle(ctx)
		if err != nil {
			return ipc.Fail(err)
		}
		return ipc.Ok(fmt.Sprintf("active: %t", on))

	case ipc.CmdChoose:
		replies, err := d.asst.ChooseReply(ctx, msg.Arg)
		if err != nil {
			return ipc.Fail(err)
		}
		return ipc.Ok(texts(replies)...)

	case ipc.CmdCancel:
		if !d.asst.Cancel() {
			return ipc.Ok("nothing pending")
		}
		return ipc.Ok("cancelled")

	case ipc.CmdListen:
		if err := d.listener.Start(d.cfg.Voice.Locale); err != nil {
			return ipc.Fail(err)
		}
		return ipc.Ok("listening")

	case ipc.CmdStop:
		if err := d.listener.Stop(); err != nil {
			return ipc.Fail(err)
		}
		return ipc.Ok("stopped")

	case ipc.CmdFile:
		if err := d.listener.TranscribeFile(ctx, msg.Arg, d.cfg.Voice.Locale); err != nil {
			return ipc.Fail(err)
		}
		return ipc.Ok()

	case ipc.CmdLog:
		return ipc.Ok(formatTurns(d.asst.Turns())...)

	case ipc.CmdStatus:
		return ipc.Ok(d.status()...)
	}

	log.Warn("Unknown command", "cmd", msg.Cmd)
	return ipc.Fail(fmt.Errorf("unknown command %q", msg.Cmd))
}

// say handles one typed turn and returns the bot turns it produced, waiting
// a bounded time for an oracle answer.
func (d *daemon) say(ctx context.Context, text string) ([]string, error) {
	wctx, cancel := context.WithTimeout(ctx, answerWait)
	defer cancel()

	state, replies, err := d.asst.Exchange(wctx, text)
	if err != nil {
		return nil, err
	}
	log.Debug("Handled turn", "state", state, "replies", len(replies))
	return texts(replies), nil
}

func (d *daemon) status() []string {
	lines := []string{
		fmt.Sprintf("active: %t", d.asst.Active()),
		fmt.Sprintf("listening: %t", d.listener.Listening()),
	}
	if d.asst.Typing() {
		lines = append(lines, "Djuka kuca...")
	}
	if p, ok := d.asst.Pending(); ok {
		lines = append(lines, fmt.Sprintf("pending: %s %s", p.Kind, p.Contact))
	}
	return lines
}

// repl reads commands from stdin. Plain lines are turns; lines starting with
// a slash are control commands, e.g. "/choose viber".
func (d *daemon) repl(ctx context.Context, in io.Reader) {
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}

		reply := d.control(ctx, parseLine(line))
		if !reply.OK {
			fmt.Println("!", reply.Error)
			continue
		}
		for _, l := range reply.Lines {
			fmt.Println(l)
		}
	}
}

func parseLine(line string) ipc.ControlMessage {
	if !strings.HasPrefix(line, "/") {
		return ipc.ControlMessage{Cmd: ipc.CmdSay, Arg: line}
	}
	cmd, arg, _ := strings.Cut(strings.TrimPrefix(line, "/"), " ")
	return ipc.ControlMessage{Cmd: cmd, Arg: strings.TrimSpace(arg)}
}

// onHubMessage lets other shards type into the conversation.
func (d *daemon) onHubMessage(m bus.Message) {
	if m.Kind != "say" || d.asst == nil {
		return
	}
	var text string
	if err := json.Unmarshal(m.Payload, &text); err != nil {
		log.Warn("Bad say payload", "from", m.From, "err", err)
		return
	}
	if _, err := d.asst.Handle(context.Background(), text); err != nil && !errors.Is(err, assistant.ErrClosed) {
		log.Error("Failed to handle hub turn", "from", m.From, "err", err)
	}
}

func texts(turns []convo.Turn) []string {
	out := make([]string, len(turns))
	for i, t := range turns {
		out[i] = t.Text
	}
	return out
}

func formatTurns(turns []convo.Turn) []string {
	out := make([]string, len(turns))
	for i, t := range turns {
		out[i] = fmt.Sprintf("%s %-4s %s", t.Timestamp.Format(time.TimeOnly), t.Sender, t.Text)
	}
	return out
}
