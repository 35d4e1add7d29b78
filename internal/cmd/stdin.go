package cmd

import (
	"io"
	"os"
	"strings"

	"github.com/dotcommander/toolchat/internal/present"
)

func drainStdin() {
	if present.IsInputTTY() {
		return
	}
	_, _ = io.Copy(io.Discard, os.Stdin)
}

// promptInput joins the prompt arguments with piped stdin, if any.
func promptInput(args []string, stdin io.Reader) (string, error) {
	prompt := strings.TrimSpace(strings.Join(args, " "))
	if stdin == nil {
		return prompt, nil
	}
	bts, err := io.ReadAll(stdin)
	if err != nil {
		return "", err
	}
	piped := strings.TrimSpace(string(bts))
	switch {
	case piped == "":
		return prompt, nil
	case prompt == "":
		return piped, nil
	default:
		return prompt + "\n\n" + piped, nil
	}
}
