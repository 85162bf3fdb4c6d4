package main

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/chzyer/readline"
	"github.com/mattn/go-isatty"
	"github.com/scorewright/scoreline/dict"
	"github.com/scorewright/scoreline/logging"
	"github.com/scorewright/scoreline/midi"
	"github.com/scorewright/scoreline/scheduler"
	"github.com/scorewright/scoreline/score"
)

// config is the result of classifying the positional, switch-free argument
// list per spec.md §6's shape table.
type config struct {
	portArg     string
	tag         byte
	hasTag      bool
	dump        bool
	randomness  int
	transpose   int
	dataDir     string
	capturePath string
	scoreFile   string
}

func classifyArgs(args []string) config {
	cfg := config{dataDir: "."}
	for _, a := range args {
		switch {
		case a == "-d" || a == "-dump":
			cfg.dump = true
		case a == "virtual" || strings.HasPrefix(a, "hw:"):
			cfg.portArg = a
		case len(a) == 1 && isASCIILetter(a[0]):
			cfg.tag = a[0]
			cfg.hasTag = true
		case strings.HasSuffix(a, "%"):
			if n, err := strconv.Atoi(strings.TrimSuffix(a, "%")); err == nil {
				cfg.randomness = n
				continue
			}
			cfg.scoreFile = a
		case isSignedNumber(a):
			n, _ := strconv.Atoi(a)
			cfg.transpose = n
		case strings.HasSuffix(a, "/"):
			cfg.dataDir = a
		case strings.HasSuffix(a, ".mid"):
			cfg.capturePath = a
		default:
			cfg.scoreFile = a
		}
	}
	if cfg.capturePath != "" {
		// MIDI-file capture records from an external arecordmidi process
		// attached to this app's own ALSA client, so playback must go out a
		// virtual port regardless of what port argument (if any) was given.
		cfg.portArg = "virtual"
	}
	return cfg
}

func isASCIILetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

func isSignedNumber(s string) bool {
	if len(s) < 2 || (s[0] != '+' && s[0] != '-') {
		return false
	}
	for _, r := range s[1:] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func isTerminal() bool {
	return isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd())
}

func main() {
	cfg := classifyArgs(os.Args[1:])

	voices, err := dict.LoadVoices(filepath.Join(cfg.dataDir, "voices.txt"))
	if err != nil {
		logging.Fatalf("loading voice dictionary: %v", err)
	}
	drumsPath := filepath.Join(cfg.dataDir, "drums.txt")

	var src io.Reader = os.Stdin
	if cfg.scoreFile != "" {
		f, err := os.Open(cfg.scoreFile)
		if err != nil {
			logging.Fatalf("opening score file: %v", err)
		}
		defer f.Close()
		src = f
	}

	parser := score.NewParser(voices, drumsPath)
	tl, err := parser.Parse(src)
	if err != nil {
		logging.FatalErr(err)
	}

	if cfg.dump {
		if err := dumpMode(); err != nil {
			logging.Fatalf("dump: %v", err)
		}
		return
	}

	out, err := selectOutputPort(cfg.portArg)
	if err != nil {
		logging.Fatalf("opening MIDI output: %v", err)
	}
	defer out.Close()

	var capture *exec.Cmd
	if cfg.capturePath != "" {
		capture, err = startCapture(cfg.capturePath)
		if err != nil {
			logging.Warn(0, "capture process could not start: %v", err)
		} else {
			time.Sleep(captureSettleDelay)
		}
	}

	requestRealtimePriority()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		for ch := uint8(0); ch < 16; ch++ {
			out.AllNotesOff(ch)
		}
		out.Close()
		os.Exit(0)
	}()

	if cfg.hasTag {
		in, err := selectInputPort()
		if err != nil {
			logging.Fatalf("opening MIDI input: %v", err)
		}
		defer in.Close()

		acc := scheduler.NewAccompanist(out, in, tl, cfg.tag, cfg.transpose)
		if err := acc.Run(); err != nil {
			logging.Fatalf("accompaniment: %v", err)
		}
		finishCapture(capture)
		return
	}

	sched := scheduler.New(out, tl, cfg.randomness, cfg.transpose)
	if err := sched.Run(); err != nil {
		logging.Fatalf("playback: %v", err)
	}
	finishCapture(capture)
}

// selectOutputPort resolves a port-name argument (spec.md §6's "hw:X..." or
// "virtual" shape) to a concrete output, or falls back to the teacher's
// interactive/batch port selection when no port name was given.
func selectOutputPort(portArg string) (*midi.Output, error) {
	if portArg != "" {
		return midi.OpenByName(portArg)
	}

	ports, err := midi.ListPorts()
	if err != nil {
		return nil, err
	}
	if len(ports) == 0 {
		return nil, fmt.Errorf("no MIDI output ports found")
	}
	if len(ports) == 1 || !isTerminal() {
		return midi.Open(0)
	}

	fmt.Println("Available MIDI output ports:")
	for i, p := range ports {
		fmt.Printf("  %d: %s\n", i, p)
	}
	idx, err := promptPortIndex(len(ports))
	if err != nil {
		return nil, err
	}
	return midi.Open(idx)
}

// selectInputPort picks the input port that looks like a keyboard in batch
// mode, or prompts interactively otherwise.
func selectInputPort() (*midi.Input, error) {
	idx, err := pickInputPortIndex()
	if err != nil {
		return nil, err
	}
	return midi.OpenIn(idx)
}

// pickInputPortIndex resolves which input port selectInputPort and dumpMode
// should use, without opening it: batch mode prefers a port that looks like
// a keyboard, interactive mode prompts.
func pickInputPortIndex() (int, error) {
	ports, err := midi.ListInPorts()
	if err != nil {
		return 0, err
	}
	if len(ports) == 0 {
		return 0, fmt.Errorf("no MIDI input ports found")
	}
	if len(ports) == 1 {
		return 0, nil
	}

	if !isTerminal() {
		for i, p := range ports {
			if midi.LooksLikeKeyboard(p) {
				return i, nil
			}
		}
		return 0, nil
	}

	fmt.Println("Available MIDI input ports:")
	for i, p := range ports {
		fmt.Printf("  %d: %s\n", i, p)
	}
	return promptPortIndex(len(ports))
}

// dumpMode implements spec.md §6's "-d"/"-dump" diagnostic: it opens an
// input port and echoes every incoming MIDI byte in hex until interrupted,
// matching the original's ncd_midi_dump raw read loop.
func dumpMode() error {
	idx, err := pickInputPortIndex()
	if err != nil {
		return fmt.Errorf("selecting MIDI input: %w", err)
	}
	stop, err := midi.DumpIncoming(idx, os.Stdout)
	if err != nil {
		return fmt.Errorf("opening MIDI input: %w", err)
	}
	defer stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	return nil
}

func promptPortIndex(n int) (int, error) {
	rl, err := readline.New(fmt.Sprintf("Select port (0-%d): ", n-1))
	if err != nil {
		return 0, err
	}
	defer rl.Close()

	line, err := rl.Readline()
	if err != nil {
		return 0, err
	}
	idx, err := strconv.Atoi(strings.TrimSpace(line))
	if err != nil || idx < 0 || idx >= n {
		return 0, fmt.Errorf("invalid port selection %q", line)
	}
	return idx, nil
}

// captureSettleDelay brackets playback with a pause long enough for
// arecordmidi to attach before the first note and flush after the last one,
// mirroring nocrazydots.c's WAITMIDI.
const captureSettleDelay = 1 * time.Second

// startCapture forks arecordmidi against the virtual ALSA port this process
// just opened for output (classifyArgs forces cfg.portArg to "virtual"
// whenever a capture path is given), matching the original's
// "fork arecordmidi onto the newest ALSA client" mechanism: `arecordmidi -l`
// lists ports newest-last, so its last line names the port this process
// just created. Recording to standard MIDI file format is delegated
// out-of-process, per spec.md §1's non-goals.
func startCapture(path string) (*exec.Cmd, error) {
	script := fmt.Sprintf(`arecordmidi -p "$(arecordmidi -l | sed -n '$s/ .*//p')" %q`, path)
	cmd := exec.Command("/bin/sh", "-c", script)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return cmd, nil
}

// finishCapture waits out the trailing settle delay, then asks the recorder
// to finalize the file and exit.
func finishCapture(cmd *exec.Cmd) {
	if cmd == nil {
		return
	}
	time.Sleep(captureSettleDelay)
	if cmd.Process == nil {
		return
	}
	if err := cmd.Process.Signal(syscall.SIGINT); err != nil {
		logging.Warn(0, "signaling capture process: %v", err)
		return
	}
	cmd.Wait()
}

// requestRealtimePriority raises the process's nice priority to -10; it does
// not request a real-time scheduling class. Failure is a non-fatal warning.
func requestRealtimePriority() {
	if err := syscall.Setpriority(syscall.PRIO_PROCESS, 0, -10); err != nil {
		logging.Warn(0, "could not raise process priority: %v", err)
	}
}
