package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dkeye/RailPhone/internal/audio"
	"github.com/dkeye/RailPhone/internal/core"
	"github.com/dkeye/RailPhone/internal/domain"
	"github.com/dkeye/RailPhone/internal/phone"
)

// control is the part of the coordinator the console drives.
type control interface {
	StartCall(number string) error
	AnswerCall() error
	EndCall() error
	ToggleHold() error
	ToggleMute() (bool, error)
	ToggleSpeaker() (bool, error)
	ChangeStation(ctx context.Context, st domain.Station) error
	UpdateAudioDevices(sel domain.AudioSelection) error
	Status() phone.Status
	Online() bool
	PeerDisplay() string
	Session() (domain.CallSession, bool)
	Station() domain.Station
}

var errQuit = errors.New("quit")

type console struct {
	ctl     control
	backend audio.Backend
	dir     core.Directory
	audio   domain.AudioSelection
	out     io.Writer
}

// run reads commands until EOF, quit or ctx ends.
func (c *console) run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	fmt.Fprintln(c.out, `type "help" for commands`)
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if err := c.exec(ctx, line); errors.Is(err, errQuit) {
				return nil
			} else if err != nil {
				fmt.Fprintf(c.out, "error: %v\n", err)
			}
		}
	}
}

func (c *console) exec(ctx context.Context, line string) error {
	args := strings.Fields(line)
	if len(args) == 0 {
		return nil
	}
	switch cmd, rest := strings.ToLower(args[0]), args[1:]; cmd {
	case "dial", "call":
		if len(rest) != 1 {
			return errors.New("usage: dial <number>")
		}
		return c.ctl.StartCall(rest[0])
	case "answer":
		return c.ctl.AnswerCall()
	case "hangup", "end":
		return c.ctl.EndCall()
	case "hold":
		return c.ctl.ToggleHold()
	case "mute":
		on, err := c.ctl.ToggleMute()
		if err == nil {
			fmt.Fprintf(c.out, "mute %s\n", onOff(on))
		}
		return err
	case "speaker":
		on, err := c.ctl.ToggleSpeaker()
		if err == nil {
			fmt.Fprintf(c.out, "speaker %s\n", onOff(on))
		}
		return err
	case "station":
		if len(rest) == 0 {
			return errors.New("usage: station <number> [name]")
		}
		st, err := domain.NewStation(rest[0], strings.Join(rest[1:], " "))
		if err != nil {
			return err
		}
		if known, ok := c.dir.FindByNumber(st.Number); ok && len(rest) == 1 {
			st = known
		}
		return c.ctl.ChangeStation(ctx, st)
	case "devices":
		return c.printDevices()
	case "use":
		if len(rest) != 2 {
			return errors.New("usage: use <input> <output>")
		}
		sel := c.audio
		sel.Input, sel.Output = rest[0], rest[1]
		if err := c.ctl.UpdateAudioDevices(sel); err != nil {
			return err
		}
		c.audio = sel
		return nil
	case "dir":
		for _, st := range c.dir.FindAll() {
			fmt.Fprintf(c.out, "  %-8s %s\n", st.Number, st.Name)
		}
		return nil
	case "status":
		c.printStatus()
		return nil
	case "help":
		fmt.Fprintln(c.out, "dial <n> | answer | hangup | hold | mute | speaker | station <n> [name] | devices | use <in> <out> | dir | status | quit")
		return nil
	case "quit", "exit":
		return errQuit
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func (c *console) printDevices() error {
	in, err := c.backend.InputDevices()
	if err != nil {
		return err
	}
	out, err := c.backend.OutputDevices()
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, "inputs:")
	for _, d := range in {
		fmt.Fprintf(c.out, "  %s  %s\n", d.ID, d.Name)
	}
	fmt.Fprintln(c.out, "outputs:")
	for _, d := range out {
		fmt.Fprintf(c.out, "  %s  %s\n", d.ID, d.Name)
	}
	return nil
}

func (c *console) printStatus() {
	st := c.ctl.Station()
	fmt.Fprintf(c.out, "station %s, %s, %s\n", st, onlineText(c.ctl.Online()), c.ctl.Status())
	if s, ok := c.ctl.Session(); ok {
		fmt.Fprintf(c.out, "call %s %s (%s)", s.Direction, s.PeerNumber, s.PeerName)
		if !s.StartedAt.IsZero() {
			fmt.Fprintf(c.out, " for %s", time.Since(s.StartedAt).Round(time.Second))
		}
		fmt.Fprintln(c.out)
	} else if d := c.ctl.PeerDisplay(); d != "" {
		fmt.Fprintf(c.out, "last: %s\n", d)
	}
}

func (c *console) printNotification(n phone.Notification) {
	switch n.Kind {
	case phone.StatusChanged:
		fmt.Fprintf(c.out, "* %s\n", n.Status)
	case phone.OnlineChanged:
		fmt.Fprintf(c.out, "* %s\n", onlineText(n.Online))
	case phone.IncomingCall:
		fmt.Fprintf(c.out, "* incoming call from %s (%s), type \"answer\"\n", n.Name, n.Number)
	case phone.CallEnded:
		fmt.Fprintln(c.out, "* call ended")
	case phone.DisplayChanged:
		fmt.Fprintf(c.out, "* display: %s\n", n.Text)
	}
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

func onlineText(v bool) string {
	if v {
		return "online"
	}
	return "offline"
}
