package notify

import (
	"context"
	log "log/slog"
	"os/exec"
	"time"
)

// Desktop shows transient notices through notify-send (or any command with
// the same argument shape).
type Desktop struct {
	Command string
	App     string
	Timeout time.Duration
}

func NewDesktop() *Desktop {
	return &Desktop{Command: "notify-send", App: "Djuka", Timeout: 3 * time.Second}
}

func (d *Desktop) Notice(text string) {
	if err := d.Send(context.Background(), text); err != nil {
		log.Warn("Failed to show notice", "text", text, "err", err)
	}
}

func (d *Desktop) Send(ctx context.Context, text string) error {
	if d.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.Timeout)
		defer cancel()
	}
	args := []string{"-t", "3000"}
	if d.App != "" {
		args = append(args, "-a", d.App)
	}
	args = append(args, "--", text)
	return exec.CommandContext(ctx, d.Command, args...).Run()
}
