package present

import (
	"os"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"
)

func ttyCheck(f *os.File) func() bool {
	return sync.OnceValue(func() bool {
		return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	})
}

var (
	isInputTTY  = ttyCheck(os.Stdin)
	isOutputTTY = ttyCheck(os.Stdout)
	isErrorTTY  = ttyCheck(os.Stderr)
)

// IsInputTTY reports whether stdin is a TTY.
func IsInputTTY() bool { return isInputTTY() }

// IsOutputTTY reports whether stdout is a TTY.
func IsOutputTTY() bool { return isOutputTTY() }

// IsErrorTTY reports whether stderr is a TTY. Log lines and banners go there.
func IsErrorTTY() bool { return isErrorTTY() }

var stdoutRenderer = sync.OnceValue(func() *lipgloss.Renderer {
	return lipgloss.DefaultRenderer()
})

// StdoutRenderer returns a lipgloss renderer bound to stdout.
func StdoutRenderer() *lipgloss.Renderer {
	return stdoutRenderer()
}

var stderrRenderer = sync.OnceValue(func() *lipgloss.Renderer {
	return lipgloss.NewRenderer(os.Stderr, termenv.WithColorCache(true))
})

// StderrRenderer returns a lipgloss renderer bound to stderr.
func StderrRenderer() *lipgloss.Renderer {
	return stderrRenderer()
}

var (
	stdoutStyles = sync.OnceValue(func() Styles { return MakeStyles(StdoutRenderer()) })
	stderrStyles = sync.OnceValue(func() Styles { return MakeStyles(StderrRenderer()) })
)

// StdoutStyles returns shared styles bound to stdout.
func StdoutStyles() Styles { return stdoutStyles() }

// StderrStyles returns shared styles bound to stderr.
func StderrStyles() Styles { return stderrStyles() }
