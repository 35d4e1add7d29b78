package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dotcommander/toolchat/internal/mcp"
	"github.com/dotcommander/toolchat/internal/present"
	"github.com/dotcommander/toolchat/internal/registry"
)

func newToolsCmd(rt *runtime) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Start the tool providers and list the tools they host",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := rt.ready(); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger, err := rt.logger()
			if err != nil {
				return err
			}
			svc, err := rt.startTools(ctx, logger)
			if err != nil {
				return err
			}
			defer rt.stopTools(context.WithoutCancel(ctx), svc, logger)

			if asJSON {
				return writeCatalogJSON(cmd.OutOrStdout(), svc.Tools(), svc.Providers())
			}
			listTools(cmd.OutOrStdout(), present.StdoutStyles(), svc.Tools())
			listFailedProviders(cmd.ErrOrStderr(), present.StderrStyles(), svc.Providers())
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, flagDesc("json"))
	return cmd
}

func listTools(w io.Writer, styles present.Styles, tools []registry.ToolDescriptor) {
	for _, tool := range tools {
		fmt.Fprint(w, styles.Provider.Render(tool.ProviderID+" > "))
		fmt.Fprint(w, tool.Signature())
		if tool.Description != "" {
			fmt.Fprint(w, "  "+styles.Comment.Render(tool.Description))
		}
		fmt.Fprintln(w)
	}
}

func listFailedProviders(w io.Writer, styles present.Styles, providers []mcp.Status) {
	for _, p := range providers {
		if p.State == mcp.StateReady {
			continue
		}
		fmt.Fprintf(w, "%s %s\n", p.ID, styles.Failed.Render(p.State.String()+": "+p.Error))
	}
}

func writeCatalogJSON(w io.Writer, tools []registry.ToolDescriptor, providers []mcp.Status) error {
	type tool struct {
		Name        string         `json:"name"`
		Description string         `json:"description"`
		Provider    string         `json:"provider"`
		InputSchema map[string]any `json:"input_schema"`
	}
	out := struct {
		Tools     []tool       `json:"tools"`
		Providers []mcp.Status `json:"providers"`
	}{Tools: make([]tool, 0, len(tools)), Providers: providers}
	for _, d := range tools {
		out.Tools = append(out.Tools, tool{
			Name:        d.Name,
			Description: d.Description,
			Provider:    d.ProviderID,
			InputSchema: d.InputSchema(),
		})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out) //nolint:wrapcheck
}
