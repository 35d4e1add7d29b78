package cmd

import (
	"regexp"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dotcommander/toolchat/internal/config"
	"github.com/dotcommander/toolchat/internal/present"
)

var helpText = map[string]string{
	"api":              "OpenAI-compatible REST API (groq, openai, anthropic, or any name with a base-url).",
	"base-url":         "Base URL of the chat completion API.",
	"model":            "Default model (llama3-8b-8192, mixtral-8x7b-32768, etc).",
	"temp":             "Temperature (randomness) of results, from 0.0 to 1.0.",
	"max-tokens":       "Maximum number of tokens in a response.",
	"http-proxy":       "HTTP proxy to use for API requests.",
	"log-level":        "Log level (debug, info, warn, error).",
	"log-format":       "Log format (text, json).",
	"provider-disable": "Disable a configured tool provider by name. Repeatable; '*' disables all.",
	"no-tools":         "Run without starting any tool provider.",
	"listen":           "Address to listen on.",
	"cors-origin":      "Allowed CORS origin. Repeatable; '*' allows any.",
	"stream-pacing":    "Delay between streamed events.",
	"max-iterations":   "Maximum model turns per request.",
	"system":           "System prompt, or file:// path to one.",
	"raw":              "Print the answer as it streams, without markdown rendering.",
	"word-wrap":        "Wrap rendered answers at this width.",
	"copy":             "Copy the answer to the clipboard.",
	"json":             "Print JSON instead of text.",
	"version":          "Show version.",
	"help":             "Show help and exit.",
}

func flagDesc(name string) string {
	return present.StdoutStyles().FlagDesc.Render(helpText[name])
}

// initRootFlags registers the settings every subcommand shares.
func initRootFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.PersistentFlags()
	flags.StringVarP(&cfg.API, "api", "a", cfg.API, flagDesc("api"))
	flags.StringVar(&cfg.BaseURL, "base-url", cfg.BaseURL, flagDesc("base-url"))
	flags.StringVarP(&cfg.Model, "model", "m", cfg.Model, flagDesc("model"))
	flags.Float64Var(&cfg.Temperature, "temp", cfg.Temperature, flagDesc("temp"))
	flags.Int64Var(&cfg.MaxTokens, "max-tokens", cfg.MaxTokens, flagDesc("max-tokens"))
	flags.StringVarP(&cfg.HTTPProxy, "http-proxy", "x", cfg.HTTPProxy, flagDesc("http-proxy"))
	flags.StringVar(&cfg.System, "system", cfg.System, flagDesc("system"))
	flags.IntVar(&cfg.MaxIterations, "max-iterations", cfg.MaxIterations, flagDesc("max-iterations"))
	flags.StringArrayVar(&cfg.ProviderDisable, "provider-disable", cfg.ProviderDisable, flagDesc("provider-disable"))
	flags.BoolVar(&cfg.NoTools, "no-tools", cfg.NoTools, flagDesc("no-tools"))
	flags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, flagDesc("log-level"))
	flags.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, flagDesc("log-format"))
	flags.SortFlags = false

	flags.BoolVar(&memprofile, "memprofile", false, "Write memory profiles to CWD")
	_ = flags.MarkHidden("memprofile")

	_ = cmd.RegisterFlagCompletionFunc("provider-disable", func(_ *cobra.Command, _ []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		var names []string
		for name := range cfg.Providers {
			if strings.HasPrefix(name, toComplete) {
				names = append(names, name)
			}
		}
		return names, cobra.ShellCompDirectiveNoFileComp
	})
	_ = cmd.RegisterFlagCompletionFunc("api", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"groq", "openai", "anthropic"}, cobra.ShellCompDirectiveNoFileComp
	})
}

type flagParseError struct {
	err    error
	reason string
	flag   string
}

func (f flagParseError) Error() string        { return f.err.Error() }
func (f flagParseError) ReasonFormat() string { return f.reason }
func (f flagParseError) Flag() string         { return f.flag }

var invalidArgRe = regexp.MustCompile(`^invalid argument ".*" for "(.*)" flag: `)

func newFlagParseError(err error) flagParseError {
	s := err.Error()
	var reason, flag string
	switch {
	case strings.HasPrefix(s, "flag needs an argument:"):
		reason = "Flag %s needs an argument."
		fields := strings.Fields(s)
		flag = fields[len(fields)-1]
	case strings.HasPrefix(s, "unknown shorthand flag:"):
		reason = "Short flag %s is missing."
		fields := strings.Fields(s)
		flag = fields[len(fields)-1]
	case strings.HasPrefix(s, "unknown flag:"):
		reason = "Flag %s is missing."
		flag = strings.TrimSpace(strings.TrimPrefix(s, "unknown flag:"))
	case strings.HasPrefix(s, "invalid argument"):
		reason = "Flag %s have an invalid argument."
		if m := invalidArgRe.FindStringSubmatch(s); len(m) > 1 {
			flag = m[1]
		}
	default:
		reason = s
	}
	return flagParseError{err: err, reason: reason, flag: flag}
}
