package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dotcommander/toolchat/internal/mcp"
	"github.com/dotcommander/toolchat/internal/present"
	"github.com/dotcommander/toolchat/internal/server"
)

func newServeCmd(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the chat API over HTTP",
		Long:  "Start the tool providers and serve POST /chat, GET /tools and GET /healthz until interrupted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := rt.ready(); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return rt.runServe(ctx)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&rt.cfg.Listen, "listen", "l", rt.cfg.Listen, flagDesc("listen"))
	flags.StringArrayVar(&rt.cfg.CORSOrigins, "cors-origin", rt.cfg.CORSOrigins, flagDesc("cors-origin"))
	flags.DurationVar(&rt.cfg.StreamPacing, "stream-pacing", rt.cfg.StreamPacing, flagDesc("stream-pacing"))
	return cmd
}

func (rt *runtime) runServe(ctx context.Context) error {
	logger, err := rt.logger()
	if err != nil {
		return err
	}
	shutdownTelemetry, err := rt.telemetry(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = shutdownTelemetry(context.WithoutCancel(ctx)) }()

	sess, err := rt.openSession(ctx, logger)
	if err != nil {
		return err
	}
	defer sess.close()

	srv := server.New(server.Options{
		Listen:      rt.cfg.Listen,
		CORSOrigins: rt.cfg.CORSOrigins,
		Pacing:      rt.cfg.StreamPacing,
		Model:       rt.cfg.Model,
		Temperature: rt.cfg.Temperature,
		MaxTokens:   rt.cfg.MaxTokens,
	}, sess.agent, sess.tools, logger)

	if present.IsErrorTTY() {
		printBanner(os.Stderr, rt.cfg.Listen, sess.tools.Providers())
	}
	return srv.ListenAndServe(ctx, rt.cfg.ShutdownGrace) //nolint:wrapcheck
}

func printBanner(w io.Writer, listen string, providers []mcp.Status) {
	r := present.StderrRenderer()
	styles := present.StderrStyles()
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  "+present.MakeGradientText(styles.AppName, serviceName))
	fmt.Fprintln(w)
	present.PrintConfirmation(w, r, "listening", styles.Link.Render("http://"+listen))
	for _, p := range providers {
		line := fmt.Sprintf("%s %s", p.ID, styles.Provider.Render(fmt.Sprintf("(%s, %d tools)", p.Kind, len(p.Tools))))
		if p.State != mcp.StateReady {
			line = fmt.Sprintf("%s %s", p.ID, styles.Failed.Render(p.State.String()+": "+p.Error))
		}
		present.PrintConfirmation(w, r, "provider", line)
	}
	fmt.Fprintln(w)
}
