package cmd

import (
	"fmt"

	mcobra "github.com/muesli/mango-cobra"
	"github.com/muesli/roff"
	"github.com/spf13/cobra"
)

// manSections follow the generated command reference, in order.
var manSections = []struct{ title, text string }{
	{
		"Tool providers",
		"Tool providers are declared under providers: in toolchat.yml. " +
			"Each entry runs a stdio command or connects to a streamable HTTP url, " +
			"and its tools join the catalog offered to the model. " +
			"The math-server and search-server subcommands host the bundled calculator and search tools.",
	},
	{
		"Routing",
		"Arithmetic questions are answered by the local calculator without a model call. " +
			"Questions about recent news are sent straight to the news search tool. " +
			"Everything else goes to the model, which may call tools for several turns " +
			"before it answers.",
	},
	{
		"Environment",
		"Every setting can be overridden with a TOOLCHAT_ variable named after its key, " +
			"for example TOOLCHAT_MODEL or TOOLCHAT_PROVIDER_DISABLE. " +
			"TOOLCHAT_SETTINGS points at an alternative settings file.",
	},
	{
		"Exit status",
		"toolchat exits 0 on success, 2 when a flag cannot be parsed and 1 on any other failure.",
	},
}

func newManCmd(root *cobra.Command) *cobra.Command {
	return &cobra.Command{
		Use:                   "man",
		Short:                 "Print the toolchat manual page",
		SilenceUsage:          true,
		DisableFlagsInUseLine: true,
		Hidden:                true,
		Args:                  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			page, err := manualPage(root)
			if err != nil {
				return err
			}
			if _, err := fmt.Fprint(cmd.OutOrStdout(), page); err != nil {
				return fmt.Errorf("write manual page: %w", err)
			}
			return nil
		},
	}
}

// manualPage renders the section 1 page for the whole command tree.
func manualPage(root *cobra.Command) (string, error) {
	page, err := mcobra.NewManPage(1, root)
	if err != nil {
		return "", fmt.Errorf("build manual page: %w", err)
	}
	for _, s := range manSections {
		page = page.WithSection(s.title, s.text)
	}
	return page.Build(roff.NewDocument()), nil
}
