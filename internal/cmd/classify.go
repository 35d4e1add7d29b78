package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dotcommander/toolchat/internal/present"
	"github.com/dotcommander/toolchat/internal/router"
)

func newClassifyCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "classify <message>",
		Short: "Show how a message would be routed",
		Long:  "Show whether a message would be computed locally, forced through a search tool, or handed to the model.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			route := router.Classify(strings.Join(args, " "))
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				return enc.Encode(route) //nolint:wrapcheck
			}
			printRoute(cmd.OutOrStdout(), present.StdoutStyles(), route)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, flagDesc("json"))
	return cmd
}

func printRoute(w io.Writer, styles present.Styles, route router.Route) {
	fmt.Fprintln(w, styles.Route.Render(route.Kind.String()))
	if route.Tool == "" {
		return
	}
	args, _ := json.Marshal(route.Args)
	fmt.Fprintf(w, "  %s %s\n", styles.Comment.Render("tool:"), route.Tool)
	fmt.Fprintf(w, "  %s %s\n", styles.Comment.Render("args:"), args)
}
