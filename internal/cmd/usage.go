package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
	flag "github.com/spf13/pflag"

	"github.com/dotcommander/toolchat/internal/present"
)

func useLine(cmd *cobra.Command) string {
	styles := present.StdoutStyles()
	appName := cmd.CommandPath()
	if cmd.Root() == cmd && present.StdoutRenderer().ColorProfile() == termenv.TrueColor {
		appName = present.MakeGradientText(styles.AppName, appName)
	}
	args := "[COMMAND] [OPTIONS]"
	if cmd.Root() != cmd {
		args = "[OPTIONS]"
		if extra := strings.TrimSpace(strings.TrimPrefix(cmd.Use, cmd.Name())); extra != "" {
			args = extra + " " + args
		}
	}
	return fmt.Sprintf("%s %s", appName, styles.CliArgs.Render(args))
}

func usageFunc(cmd *cobra.Command) error {
	w := cmd.OutOrStdout()
	styles := present.StdoutStyles()

	fmt.Fprintf(w, "Usage:\n  %s\n", useLine(cmd))

	if cmds := visibleCommands(cmd); len(cmds) > 0 {
		fmt.Fprintln(w, "\nCommands:")
		for _, c := range cmds {
			fmt.Fprintf(w, "  %-24s %s\n", styles.Flag.Render(c.Name()), styles.FlagDesc.Render(c.Short))
		}
	}

	if cmd.HasAvailableLocalFlags() {
		fmt.Fprintln(w, "\nOptions:")
		printFlags(w, styles, cmd.LocalFlags())
	}
	if cmd.HasAvailableInheritedFlags() {
		fmt.Fprintln(w, "\nGlobal options:")
		printFlags(w, styles, cmd.InheritedFlags())
	}

	if cmd.HasExample() {
		fmt.Fprintf(
			w,
			"\nExample:\n  %s\n  %s\n",
			styles.Comment.Render("# "+cmd.Example),
			cheapHighlighting(styles, examples[cmd.Example]),
		)
	}
	return nil
}

func visibleCommands(cmd *cobra.Command) []*cobra.Command {
	var out []*cobra.Command
	for _, c := range cmd.Commands() {
		if c.IsAvailableCommand() {
			out = append(out, c)
		}
	}
	return out
}

func printFlags(w io.Writer, styles present.Styles, flags *flag.FlagSet) {
	flags.VisitAll(func(f *flag.Flag) {
		if f.Hidden {
			return
		}
		if f.Shorthand == "" {
			fmt.Fprintf(w,
				"  %-44s %s\n",
				styles.Flag.Render("--"+f.Name),
				styles.FlagDesc.Render(f.Usage),
			)
			return
		}
		fmt.Fprintf(w,
			"  %s%s %-40s %s\n",
			styles.Flag.Render("-"+f.Shorthand),
			styles.FlagComma,
			styles.Flag.Render("--"+f.Name),
			styles.FlagDesc.Render(f.Usage),
		)
	})
}
