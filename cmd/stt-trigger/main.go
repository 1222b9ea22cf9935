// Command stt-trigger sends one trigger event to the stt-clipboard daemon and
// prints the reply. It is meant to be bound to desktop hotkeys:
//
//	stt-trigger copy
//	stt-trigger paste
//	stt-trigger paste-terminal
//	stt-trigger start
//	stt-trigger stop
//
// Exit codes: 0 on OK, 2 on NO_SPEECH, 3 on BUSY, 1 on any error.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/christopherlouet/stt-clipboard/internal/trigger"
)

var commands = map[string]string{
	"copy":           trigger.TokenCopy,
	"paste":          trigger.TokenPaste,
	"paste-terminal": trigger.TokenPasteTerminal,
	"start":          trigger.TokenStartContinuous,
	"stop":           trigger.TokenStopContinuous,
}

func main() {
	os.Exit(run())
}

func run() int {
	socket := flag.String("socket", defaultSocketPath(), "path to the daemon trigger socket")
	timeout := flag.Duration("timeout", 2*time.Minute, "how long to wait for the daemon's reply")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() != 1 {
		usage()
		return 1
	}
	token, ok := commands[flag.Arg(0)]
	if !ok {
		fmt.Fprintf(os.Stderr, "stt-trigger: unknown command %q\n", flag.Arg(0))
		usage()
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	reply, err := trigger.Send(ctx, *socket, token)
	if err != nil {
		fmt.Fprintf(os.Stderr, "stt-trigger: %v\n", err)
		return 1
	}

	fmt.Println(reply)
	switch {
	case reply == trigger.ReplyOK:
		return 0
	case reply == trigger.ReplyNoSpeech:
		return 2
	case reply == trigger.ReplyBusy:
		return 3
	case strings.HasPrefix(reply, trigger.ReplyError):
		return 1
	default:
		return 1
	}
}

// defaultSocketPath mirrors the daemon's socket resolution so both binaries
// agree without configuration.
func defaultSocketPath() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "stt-clipboard", "trigger.sock")
	}
	return filepath.Join(os.TempDir(), fmt.Sprintf("stt-clipboard-%d", os.Getuid()), "trigger.sock")
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: stt-trigger [flags] <command>

Commands:
  copy            record one utterance and copy the text
  paste           copy, then simulate Ctrl+V
  paste-terminal  copy, then simulate Ctrl+Shift+V
  start           begin a continuous dictation session
  stop            end the continuous dictation session

Flags:
`)
	flag.PrintDefaults()
}
