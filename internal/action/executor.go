package action

import (
	"context"
	"fmt"
	log "log/slog"
	"os/exec"
	"runtime"

	"djuka/pkg/bus"
)

// OpenExecutor hands the deep link to the desktop URL opener.
type OpenExecutor struct {
	// Command overrides the opener; defaults to xdg-open or open on darwin.
	Command string
}

func (e OpenExecutor) Execute(ctx context.Context, a Executable) error {
	u, err := a.URL()
	if err != nil {
		return err
	}

	opener := e.Command
	if opener == "" {
		opener = "xdg-open"
		if runtime.GOOS == "darwin" {
			opener = "open"
		}
	}

	log.Debug("Opening", "url", u, "with", opener)
	if out, err := exec.CommandContext(ctx, opener, u).CombinedOutput(); err != nil {
		return fmt.Errorf("%s %s: %w (%s)", opener, a.Target(), err, out)
	}
	return nil
}

// LogExecutor only logs what would be opened.
type LogExecutor struct{}

func (LogExecutor) Execute(_ context.Context, a Executable) error {
	u, err := a.URL()
	if err != nil {
		return err
	}
	log.Info("Action", "kind", a.Kind, "channel", a.Channel, "url", u)
	return nil
}

// Publisher is the part of the hub client the bus executor needs.
type Publisher interface {
	Publish(m bus.Message) error
}

// BusExecutor forwards actions to the hub, where a device shard (phone,
// desktop) carries them out.
type BusExecutor struct {
	Hub Publisher
	To  string
}

func (e BusExecutor) Execute(_ context.Context, a Executable) error {
	u, err := a.URL()
	if err != nil {
		return err
	}

	m, err := bus.NewMessage(e.To, "action", ActionPayload{Executable: a, URL: u})
	if err != nil {
		return err
	}
	if err := e.Hub.Publish(m); err != nil {
		return fmt.Errorf("publish %s: %w", a.Kind, err)
	}
	return nil
}

type ActionPayload struct {
	Executable
	URL string `json:"url"`
}
