package main

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/unboundedsystems/adapt/internal/deploy"
	"github.com/unboundedsystems/adapt/internal/eventbus"
	"github.com/unboundedsystems/adapt/internal/logger"
	"github.com/unboundedsystems/adapt/internal/observer"
	"github.com/unboundedsystems/adapt/internal/observers/httpjson"
	"github.com/unboundedsystems/adapt/internal/observers/mock"
)

const (
	logFormatFlag        = "log.format"
	logLevelFlag         = "log.level"
	observationsFlag     = "observations"
	maxPassesFlag        = "deploy.max-passes"
	maxRetriesFlag       = "observe.max-retries"
	httpjsonTimeoutFlag  = "httpjson.timeout"
	serverAddrFlag       = "server.addr"
	serverTimeoutFlag    = "server.timeout"
	serverPrettyFlag     = "server.pretty"
	serverCORSOriginFlag = "server.cors-origins"
	allMaxDepthFlag      = "all.max-depth"
	allMaxFieldsFlag     = "all.max-fields"
	otelEndpointFlag     = "otel.endpoint"
	otelServiceFlag      = "otel.service"
)

// newRootCommand lets every command read settings from flags, environment
// variables prefixed with ADAPT, or config.yaml, in that order.
func newRootCommand() *cobra.Command {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetEnvPrefix("ADAPT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	for _, path := range []string{"/etc/adapt", "$HOME/.adapt", "."} {
		viper.AddConfigPath(path)
	}
	_ = viper.ReadInConfig()

	cmd := &cobra.Command{
		Use:   "adapt",
		Short: "Query observers and gather the data their queries need",
		Long: `adapt executes GraphQL queries against observers. Queries that need data
the observers have not fetched yet are recorded, and the observe commands
fetch that data and persist it to an observations file.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			flags := cmd.Flags()
			mustBindPFlag(logFormatFlag, flags.Lookup(logFormatFlag))
			mustBindPFlag(logLevelFlag, flags.Lookup(logLevelFlag))
			mustBindPFlag(observationsFlag, flags.Lookup(observationsFlag))
			mustBindPFlag(httpjsonTimeoutFlag, flags.Lookup(httpjsonTimeoutFlag))
		},
	}

	flags := cmd.PersistentFlags()
	flags.String(logFormatFlag, "text", "log format: 'text' or 'json'")
	flags.String(logLevelFlag, "info", "log level: 'none', 'debug', 'info', 'warn' or 'error'")
	flags.String(observationsFlag, "observations.json", "path of the persisted observations file")
	flags.Duration(httpjsonTimeoutFlag, httpjson.DefaultTimeout, "timeout of httpjson observer requests")

	cmd.AddCommand(
		newSchemaCommand(),
		newQueryCommand(),
		newObserveCommand(),
		newServeCommand(),
	)
	return cmd
}

func mustBindPFlag(key string, flag *pflag.Flag) {
	if err := viper.BindPFlag(key, flag); err != nil {
		panic("failed to bind pflag: " + err.Error())
	}
}

func newLogger() (logger.Logger, error) {
	return logger.NewLogger(viper.GetString(logFormatFlag), viper.GetString(logLevelFlag))
}

// newRegistry registers the observer plugins built into the binary.
func newRegistry() *observer.Registry {
	return observer.NewRegistry().
		MustRegister(mock.Name, mock.New()).
		MustRegister(httpjson.Name, httpjson.New(httpjson.WithTimeout(viper.GetDuration(httpjsonTimeoutFlag))))
}

func newLoop(reg *observer.Registry, log logger.Logger, bus *eventbus.Bus) *deploy.Loop {
	return &deploy.Loop{
		Registry:   reg,
		Logger:     log,
		Bus:        bus,
		MaxPasses:  viper.GetInt(maxPassesFlag),
		MaxRetries: viper.GetInt(maxRetriesFlag),
	}
}

func addLoopFlags(flags *pflag.FlagSet) {
	flags.Int(maxPassesFlag, deploy.DefaultMaxPasses, "maximum number of build passes")
	flags.Int(maxRetriesFlag, deploy.DefaultMaxRetries, "retries of a failed observe call; negative disables retries")
}

func bindLoopFlags(flags *pflag.FlagSet) {
	mustBindPFlag(maxPassesFlag, flags.Lookup(maxPassesFlag))
	mustBindPFlag(maxRetriesFlag, flags.Lookup(maxRetriesFlag))
}
