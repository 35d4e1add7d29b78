package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/dotcommander/toolchat/internal/config"
	"github.com/dotcommander/toolchat/internal/errs"
	"github.com/dotcommander/toolchat/internal/present"
)

const redacted = "********"

func newConfigCmd(rt *runtime) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and manage settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), rt.cfg.SettingsPath)
			return nil
		},
	}

	configCmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the settings file location",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), rt.cfg.SettingsPath)
			return nil
		},
	})
	configCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective settings, with flags and environment applied",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if rt.cfgErr != nil {
				return rt.cfgErr
			}
			return showSettings(cmd.OutOrStdout(), rt.cfg)
		},
	})
	configCmd.AddCommand(&cobra.Command{
		Use:   "reset",
		Short: "Reset settings to defaults",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Allow reset even when parsing failed.
			return resetSettings(cmd.ErrOrStderr(), rt.cfg.SettingsPath)
		},
	})

	return configCmd
}

func showSettings(w io.Writer, cfg config.Config) error {
	s := cfg.Settings
	if s.APIKey != "" {
		s.APIKey = redacted
	}
	bts, err := yaml.Marshal(s)
	if err != nil {
		return errs.Wrap(err, "Could not render settings.")
	}
	_, err = w.Write(bts)
	return err //nolint:wrapcheck
}

func resetSettings(w io.Writer, path string) error {
	if path == "" {
		return errs.Error{Reason: "No settings file to reset."}
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return errs.Error{Err: err, Reason: "Couldn't read config file."}
	}
	if err := os.WriteFile(path+".bak", content, 0o600); err != nil {
		return errs.Error{Err: err, Reason: "Couldn't backup config file."}
	}
	if err := os.Remove(path); err != nil {
		return errs.Error{Err: err, Reason: "Couldn't remove config file."}
	}
	if err := config.WriteConfigFile(path); err != nil {
		return errs.Error{Err: err, Reason: "Couldn't write new config file."}
	}

	styles := present.StderrStyles()
	fmt.Fprintln(w, "\nSettings restored to defaults!")
	fmt.Fprintf(w,
		"\n  %s %s\n\n",
		styles.Comment.Render("Your old settings have been saved to:"),
		styles.Link.Render(path+".bak"),
	)
	return nil
}
