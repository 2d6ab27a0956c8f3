package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/chzyer/readline"

	"github.com/drgolem/diskstream/internal/engine"
	"github.com/drgolem/diskstream/pkg/controlqueue"
)

var (
	errQuit       = errors.New("quit")
	errBadCommand = errors.New("bad command")
)

const consoleHelp = `commands:
  play | stop              start or stop the transport
  seek <seconds>           move the playhead
  vol <track> <gain>       set track gain (1 = unity)
  pan <track> <-1..1>      set track pan
  mute <track> | unmute <track>
  status | streams         show engine or per-stream state
  quit`

// parseCommand turns a console line into a control command. Seek times are
// converted to frames at sampleRate.
func parseCommand(line string, sampleRate int) (controlqueue.Command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return controlqueue.Command{}, errBadCommand
	}

	argc := map[string]int{
		"play": 0, "stop": 0, "seek": 1,
		"vol": 2, "pan": 2, "mute": 1, "unmute": 1,
	}
	want, ok := argc[fields[0]]
	if !ok {
		return controlqueue.Command{}, fmt.Errorf("%w: unknown command %q", errBadCommand, fields[0])
	}
	if len(fields)-1 != want {
		return controlqueue.Command{}, fmt.Errorf("%w: %s takes %d argument(s)", errBadCommand, fields[0], want)
	}

	var track uint32
	if want >= 1 && fields[0] != "seek" {
		t, err := strconv.ParseUint(fields[1], 10, 32)
		if err != nil {
			return controlqueue.Command{}, fmt.Errorf("%w: bad track %q", errBadCommand, fields[1])
		}
		track = uint32(t)
	}
	value := func(s string) (float32, error) {
		v, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return 0, fmt.Errorf("%w: bad number %q", errBadCommand, s)
		}
		return float32(v), nil
	}

	switch fields[0] {
	case "play":
		return controlqueue.Play(), nil
	case "stop":
		return controlqueue.Stop(), nil
	case "seek":
		sec, err := strconv.ParseFloat(fields[1], 64)
		if err != nil || sec < 0 {
			return controlqueue.Command{}, fmt.Errorf("%w: bad time %q", errBadCommand, fields[1])
		}
		return controlqueue.Seek(int64(sec * float64(sampleRate))), nil
	case "vol":
		v, err := value(fields[2])
		if err != nil {
			return controlqueue.Command{}, err
		}
		return controlqueue.TrackVolume(track, v), nil
	case "pan":
		v, err := value(fields[2])
		if err != nil {
			return controlqueue.Command{}, err
		}
		return controlqueue.TrackPan(track, v), nil
	case "mute":
		return controlqueue.TrackMute(track, true), nil
	default:
		return controlqueue.TrackMute(track, false), nil
	}
}

// runConsole reads commands from the terminal until ctx is done or the user
// quits. Quitting returns errQuit.
func runConsole(ctx context.Context, e *engine.Engine) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "diskstream> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
		AutoComplete: readline.NewPrefixCompleter(
			readline.PcItem("play"),
			readline.PcItem("stop"),
			readline.PcItem("seek"),
			readline.PcItem("vol"),
			readline.PcItem("pan"),
			readline.PcItem("mute"),
			readline.PcItem("unmute"),
			readline.PcItem("status"),
			readline.PcItem("streams"),
			readline.PcItem("quit"),
		),
	})
	if err != nil {
		return fmt.Errorf("failed to start console: %w", err)
	}
	defer rl.Close()

	go func() {
		<-ctx.Done()
		rl.Close()
	}()

	out := rl.Stdout()
	rate := e.Config().SampleRate
	for {
		line, err := rl.Readline()
		switch {
		case errors.Is(err, readline.ErrInterrupt), errors.Is(err, io.EOF):
			return errQuit
		case err != nil:
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		line = strings.TrimSpace(line)
		switch line {
		case "":
			continue
		case "quit", "exit":
			return errQuit
		case "help":
			fmt.Fprintln(out, consoleHelp)
			continue
		case "status":
			st := e.GetEngineStatus()
			fmt.Fprintf(out, "%s running=%t active=%d starved=%d underruns=%d\n",
				formatElapsed(st.ElapsedTime), st.Running, st.ActiveStreams, st.StarvedStreams, st.Underruns)
			continue
		case "streams":
			for _, s := range e.Streams() {
				fmt.Fprintf(out, "stream %d track %d %-8s [%d, %d) buffered %d/%d\n",
					s.ID, s.TrackID, s.State, s.TLStartFrame, s.TLEndFrame, s.BufferedFrame, s.RingCapacity)
			}
			continue
		}

		cmd, err := parseCommand(line, rate)
		if err != nil {
			fmt.Fprintln(out, err)
			continue
		}
		if cmd.Kind == controlqueue.KindSeek {
			err = e.Seek(cmd.Frame())
		} else if !e.PushControl(cmd) {
			err = engine.ErrControlQueueFull
		}
		if err != nil {
			fmt.Fprintln(out, err)
		}
	}
}
