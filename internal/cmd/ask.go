package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/atotto/clipboard"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"

	"github.com/dotcommander/toolchat/internal/agent"
	"github.com/dotcommander/toolchat/internal/errs"
	"github.com/dotcommander/toolchat/internal/present"
	"github.com/dotcommander/toolchat/internal/proto"
	"github.com/dotcommander/toolchat/internal/server"
)

type askOptions struct {
	raw      bool
	wordWrap int
	// copy receives the full answer once it is complete.
	copy func(string) error
}

func newAskCmd(rt *runtime) *cobra.Command {
	opts := askOptions{wordWrap: present.DefaultWordWrap}
	var copyAnswer bool
	cmd := &cobra.Command{
		Use:   "ask [prompt]",
		Short: "Ask a single question and print the answer",
		Long:  "Ask a single question. The prompt is taken from the arguments and from stdin when it is piped.",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := rt.ready(); err != nil {
				return err
			}
			var stdin io.Reader
			if !present.IsInputTTY() {
				stdin = os.Stdin
			}
			prompt, err := promptInput(args, stdin)
			if err != nil {
				return errs.Wrap(err, "Could not read from stdin.")
			}
			if prompt == "" {
				return errs.Error{
					Reason: "You haven't provided any prompt input.",
					Err: errs.UserErrorf(
						"You can give your prompt as arguments and/or pipe it from STDIN.\nExample: %s",
						present.StdoutStyles().InlineCode.Render(serviceName+" ask [prompt]"),
					),
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger, err := rt.logger()
			if err != nil {
				return err
			}
			sess, err := rt.openSession(ctx, logger)
			if err != nil {
				return err
			}
			defer sess.close()

			opts.raw = opts.raw || !present.IsOutputTTY()
			if copyAnswer {
				opts.copy = copyToClipboard
			}
			return printAnswer(ctx, cmd.OutOrStdout(), sess.agent, prompt, opts)
		},
	}

	flags := cmd.Flags()
	flags.BoolVarP(&opts.raw, "raw", "r", false, flagDesc("raw"))
	flags.IntVar(&opts.wordWrap, "word-wrap", opts.wordWrap, flagDesc("word-wrap"))
	flags.BoolVarP(&copyAnswer, "copy", "c", false, flagDesc("copy"))
	return cmd
}

// printAnswer streams the answer to w as it is produced when raw, otherwise
// waits for the whole answer and renders it as markdown.
func printAnswer(ctx context.Context, w io.Writer, a server.Answerer, prompt string, opts askOptions) error {
	req := agent.Request{Messages: []proto.Message{{Role: proto.RoleUser, Content: prompt}}}

	if opts.raw {
		var full strings.Builder
		for chunk, err := range a.Stream(ctx, req) {
			if err != nil {
				fmt.Fprintln(w)
				return err //nolint:wrapcheck
			}
			full.WriteString(chunk)
			if _, err := io.WriteString(w, chunk); err != nil {
				return fmt.Errorf("write answer: %w", err)
			}
		}
		if _, err := fmt.Fprintln(w); err != nil {
			return err //nolint:wrapcheck
		}
		return opts.copyAnswer(full.String())
	}

	reply, err := a.Answer(ctx, req)
	if err != nil {
		return err //nolint:wrapcheck
	}
	out, err := present.RenderMarkdown(reply.Content, opts.wordWrap)
	if err != nil {
		out = reply.Content + "\n"
	}
	if _, err := io.WriteString(w, out); err != nil {
		return err //nolint:wrapcheck
	}
	return opts.copyAnswer(reply.Content)
}

func (o askOptions) copyAnswer(answer string) error {
	if o.copy == nil || answer == "" {
		return nil
	}
	if err := o.copy(answer); err != nil {
		return errs.Wrap(err, "Could not copy the answer to the clipboard.")
	}
	return nil
}

// copyToClipboard uses the system clipboard and falls back to OSC52 when no
// clipboard utility is available, e.g. over SSH.
func copyToClipboard(text string) error {
	if err := clipboard.WriteAll(text); err != nil {
		termenv.Copy(text)
	}
	return nil
}
