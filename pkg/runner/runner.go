// Package runner manages process lifecycle: banner, start hooks, signal
// driven shutdown and bounded draining.
package runner

import (
	"bytes"
	"os"

	"github.com/dimiro1/banner"
)

type State int

const (
	StateNew State = iota
	StateStarting
	StateRunning
	StateDraining
	StateStopped
)

type Hooks struct {
	OnStart func()
	OnStop  func()
}

// Drainer is anything that needs an orderly flush before the process exits.
type Drainer interface {
	Drain() error
}

const Version = "dev"

func PrintBanner() {
	tpl := "{{ .Title \"VOICECORE\" \"\" 0 }}\nVersion: " + Version + "\n"
	banner.Init(os.Stdout, true, true, bytes.NewBufferString(tpl))
}
