package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/dotcommander/toolchat/internal/tools"
	"github.com/dotcommander/toolchat/internal/tools/mathtools"
	"github.com/dotcommander/toolchat/internal/tools/searchtools"
)

func newMathServerCmd(rt *runtime) *cobra.Command {
	return newToolServerCmd(rt, "math-server",
		"Serve the arithmetic tools over MCP",
		func() *server.MCPServer { return mathtools.NewServer(rt.build.Version) },
	)
}

func newSearchServerCmd(rt *runtime) *cobra.Command {
	return newToolServerCmd(rt, "search-server",
		"Serve the web and news search tools over MCP",
		func() *server.MCPServer { return searchtools.NewServer(rt.build.Version, searchtools.NewTavily()) },
	)
}

func newToolServerCmd(rt *runtime, use, short string, build func() *server.MCPServer) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Long:  short + ". Speaks stdio by default; pass --listen to serve streamable HTTP at /mcp.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if listen != "" {
				logger, err := rt.logger()
				if err != nil {
					return err
				}
				logger.WithPrefix(use).Info("listening", "addr", listen, "path", "/mcp")
			}
			return tools.Serve(ctx, build(), listen, rt.cfg.ShutdownGrace) //nolint:wrapcheck
		},
	}
	cmd.Flags().StringVarP(&listen, "listen", "l", "", flagDesc("listen"))
	return cmd
}
