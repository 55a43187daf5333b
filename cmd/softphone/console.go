package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/ghettovoice/softphone/numfmt"
	"github.com/ghettovoice/softphone/phone"
)

// lifecycle switches the host between foreground and background.
type lifecycle interface {
	Background()
	Foreground()
}

// console is the interactive prompt. It presents calls by printing them.
type console struct {
	ph     *phone.Phone
	life   lifecycle
	router *phone.Router
	unsub  func()

	mu    sync.Mutex
	out   io.Writer
	shown bool
}

func newConsole(ph *phone.Phone, life lifecycle, out io.Writer) *console {
	c := &console{ph: ph, life: life, out: out}
	c.unsub = ph.Subscribe(c.handleEvent)
	c.router = phone.NewRouter(ph, c)
	return c
}

func (c *console) Close() {
	c.router.Close()
	c.unsub()
}

func (c *console) IsPresenting() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.shown
}

func (c *console) Present(call phone.CallInfo) {
	c.mu.Lock()
	c.shown = true
	c.mu.Unlock()

	if call.Direction == phone.Incoming {
		c.printf("incoming call from %s, type 'answer' or 'reject'\n", call.RemoteURI)
		return
	}
	c.printf("calling %s\n", call.RemoteURI)
}

func (c *console) handleEvent(_ context.Context, ev phone.Event) {
	switch ev := ev.(type) {
	case phone.RegistrationChanged:
		c.printf("registration: %s (%d)\n", ev.State, ev.Code)
	case phone.CallStateChanged:
		c.printf("call %s: %s\n", ev.Call.Phase, ev.Call.State)
		if ev.Call.Phase == phone.CallTerminated {
			c.mu.Lock()
			c.shown = false
			c.mu.Unlock()
		}
	}
}

func (c *console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

var errQuit = errors.New("quit")

// Run reads commands from in until quit, EOF or ctx is done.
func (c *console) Run(ctx context.Context, in io.Reader) error {
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

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if err := c.exec(ctx, line); err != nil {
				if errors.Is(err, errQuit) {
					return nil
				}
				c.printf("error: %v\n", err)
			}
		}
	}
}

func (c *console) exec(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	switch cmd {
	case "call":
		if len(args) != 1 {
			return errors.New("usage: call <number>")
		}
		_, err := c.router.MakeCall(ctx, numfmt.RemoveFormatting(args[0]))
		return err
	case "answer":
		return c.ph.Answer(ctx)
	case "reject":
		return c.ph.Reject(ctx)
	case "hangup":
		return c.ph.Hangup(ctx)
	case "dtmf":
		if len(args) != 1 {
			return errors.New("usage: dtmf <digits>")
		}
		for _, d := range args[0] {
			if err := c.ph.PlayDigit(ctx, string(d)); err != nil {
				return err
			}
		}
		return nil
	case "mute", "speaker":
		on, err := parseSwitch(args)
		if err != nil {
			return fmt.Errorf("usage: %s on|off", cmd)
		}
		if cmd == "mute" {
			return c.ph.SetMute(ctx, on)
		}
		return c.ph.SetSpeaker(ctx, on)
	case "background":
		c.life.Background()
		return nil
	case "foreground":
		c.life.Foreground()
		return nil
	case "status":
		st, err := c.ph.Status(ctx)
		if err != nil {
			return err
		}
		c.printStatus(st)
		return nil
	case "help":
		c.printf("commands: call <number>, answer, reject, hangup, dtmf <digits>, mute on|off, " +
			"speaker on|off, background, foreground, status, quit\n")
		return nil
	case "quit", "exit":
		return errQuit
	default:
		return fmt.Errorf("unknown command %q, type 'help'", cmd)
	}
}

func (c *console) printStatus(st phone.Status) {
	var b strings.Builder
	fmt.Fprintf(&b, "registration: %s (%d)\n", st.State, st.Code)
	if st.User != nil {
		fmt.Fprintf(&b, "user: %s %s\n", st.User.Username, numfmt.FormatE164(st.User.Number))
	}
	fmt.Fprintf(&b, "network: %s\n", st.Network)
	fmt.Fprintf(&b, "speaker: %t\n", st.Speaker)
	fmt.Fprintf(&b, "background: %t\n", st.Background)
	if st.Call != nil {
		fmt.Fprintf(&b, "call: %s %s %s %s muted=%t\n",
			st.Call.Direction, st.Call.RemoteURI, st.Call.Phase, st.Call.Duration.Truncate(time.Second), st.Call.Muted)
	}
	c.printf("%s", b.String())
}

func parseSwitch(args []string) (bool, error) {
	if len(args) != 1 {
		return false, errors.New("missing switch")
	}
	switch strings.ToLower(args[0]) {
	case "on", "true", "1":
		return true, nil
	case "off", "false", "0":
		return false, nil
	default:
		return false, fmt.Errorf("invalid switch %q", args[0])
	}
}
