package cmd

import (
	"context"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/dotcommander/toolchat/internal/agent"
	"github.com/dotcommander/toolchat/internal/config"
	"github.com/dotcommander/toolchat/internal/errs"
	"github.com/dotcommander/toolchat/internal/logging"
	"github.com/dotcommander/toolchat/internal/mcp"
	"github.com/dotcommander/toolchat/internal/stream"
	"github.com/dotcommander/toolchat/internal/telemetry"
)

const serviceName = "toolchat"

type runtime struct {
	build  BuildInfo
	cfg    config.Config
	cfgErr error
}

// NewRootCmd constructs the Cobra root command.
func NewRootCmd(build BuildInfo, cfg config.Config, cfgErr error) *cobra.Command {
	rt := &runtime{build: normalizeBuildInfo(build), cfg: cfg, cfgErr: cfgErr}

	rootCmd := &cobra.Command{
		Use:           serviceName,
		Short:         "A chat agent that routes questions to tools hosted over MCP.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Example:       randomExample(),
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Usage()
		},
	}

	rootCmd.SetUsageFunc(usageFunc)
	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return newFlagParseError(err)
	})

	rootCmd.CompletionOptions.HiddenDefaultCmd = true
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	rootCmd.Version = rt.build.Version
	rootCmd.SetVersionTemplate(versionTemplate(rt.build))

	initRootFlags(rootCmd, &rt.cfg)

	rootCmd.AddCommand(newServeCmd(rt))
	rootCmd.AddCommand(newAskCmd(rt))
	rootCmd.AddCommand(newToolsCmd(rt))
	rootCmd.AddCommand(newClassifyCmd())
	rootCmd.AddCommand(newMathServerCmd(rt))
	rootCmd.AddCommand(newSearchServerCmd(rt))
	rootCmd.AddCommand(newConfigCmd(rt))
	rootCmd.AddCommand(newManCmd(rootCmd))

	rootCmd.InitDefaultCompletionCmd()

	return rootCmd
}

// ready fails when the settings could not be loaded or are invalid.
func (rt *runtime) ready() error {
	if rt.cfgErr != nil {
		return rt.cfgErr
	}
	return rt.cfg.Validate() //nolint:wrapcheck
}

func (rt *runtime) logger() (*log.Logger, error) {
	logger, err := logging.New(os.Stderr, rt.cfg.LogLevel, rt.cfg.LogFormat)
	if err != nil {
		return nil, errs.Wrap(err, "Invalid logging settings.")
	}
	return logger, nil
}

// telemetry installs the OTLP exporter when one is configured.
func (rt *runtime) telemetry(ctx context.Context) (func(context.Context) error, error) {
	shutdown, err := telemetry.Setup(ctx, rt.cfg.OTLPEndpoint, serviceName, rt.build.Version)
	if err != nil {
		return nil, errs.Wrap(err, "Could not set up tracing.")
	}
	return shutdown, nil
}

// startTools starts the enabled tool providers. The returned service is
// always usable, possibly with an empty registry.
func (rt *runtime) startTools(ctx context.Context, logger *log.Logger) (*mcp.Service, error) {
	opts := mcp.OptionsFromConfig(&rt.cfg, rt.build.Version)
	observer, err := telemetry.NewGlobalToolObserver()
	if err != nil {
		logger.Warn("tool metrics disabled", "err", err)
	} else {
		opts.Observer = observer
	}

	svc := mcp.New(logger, opts)
	if rt.cfg.NoTools {
		return svc, nil
	}
	if err := svc.Configure(mcp.SpecsFromConfig(&rt.cfg)); err != nil {
		return nil, errs.New(errs.KindProviderStartup, err, "Invalid tool provider settings.")
	}
	if err := svc.StartAll(ctx); err != nil {
		rt.stopTools(ctx, svc, logger)
		return nil, err //nolint:wrapcheck
	}
	return svc, nil
}

func (rt *runtime) stopTools(ctx context.Context, svc *mcp.Service, logger *log.Logger) {
	if svc == nil {
		return
	}
	if err := svc.Shutdown(context.WithoutCancel(ctx)); err != nil {
		logger.Warn("tool providers did not shut down cleanly", "err", err)
	}
}

// session is everything a command needs to answer questions.
type session struct {
	logger *log.Logger
	tools  *mcp.Service
	agent  *agent.Service
	close  func()
}

// openSession resolves the model credentials, starts the tool providers and
// builds the agent. Credentials are checked first so a missing key fails
// before any subprocess is spawned.
func (rt *runtime) openSession(ctx context.Context, logger *log.Logger) (*session, error) {
	client, err := agent.NewClient(ctx, &rt.cfg, logger)
	if err != nil {
		return nil, err //nolint:wrapcheck
	}
	return rt.openSessionWith(ctx, logger, client)
}

func (rt *runtime) openSessionWith(ctx context.Context, logger *log.Logger, client stream.Client) (*session, error) {
	tools, err := rt.startTools(ctx, logger)
	if err != nil {
		return nil, err
	}
	svc := agent.New(&rt.cfg, tools, client, logger)
	if err := svc.LoadSystemPrompt(ctx); err != nil {
		rt.stopTools(ctx, tools, logger)
		return nil, err //nolint:wrapcheck
	}
	return &session{
		logger: logger,
		tools:  tools,
		agent:  svc,
		close:  func() { rt.stopTools(ctx, tools, logger) },
	}, nil
}
