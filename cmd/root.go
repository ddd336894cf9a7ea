// Package cmd provides the weave command-line interface.
//
// Configuration is resolved with viper, highest priority first:
//
//  1. command-line flags
//  2. WEAVE_ prefixed environment variables (WEAVE_SERVER_PORT, ...)
//  3. the config file named by --config or WEAVE_CONFIG_FILE, else
//     .weave.yml in the current directory
//  4. built-in defaults
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/conneroisu/weave/internal/build"
	"github.com/conneroisu/weave/internal/config"
	"github.com/conneroisu/weave/internal/logging"
)

// ConfigFileEnv names a config file to load when --config is not given.
const ConfigFileEnv = "WEAVE_CONFIG_FILE"

// Execute runs the weave command line.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return NewRootCommand().ExecuteContext(ctx)
}

// NewRootCommand builds the command tree on a fresh viper instance.
func NewRootCommand() *cobra.Command {
	v := viper.New()

	rootCmd := &cobra.Command{
		Use:   "weave <source-dir>",
		Short: "Expand HTML components into a static site",
		Long: `weave expands self-closing component tags such as <card title="Hi" />
in the HTML documents of a source directory, using templates from its
components directory, and writes the result to an output directory.
Every other file is copied through unchanged.

Examples:
  weave site                      Build site/ into dist/
  weave site -o public -d 0       Only expand top-level documents
  weave site -f index.html        Only expand index.html
  weave site --serve              Build, watch and serve with live reload`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return initConfig(cmd, v)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(cmd, v, args[0])
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "config file (default is .weave.yml, can also use "+ConfigFileEnv+")")
	pf.String("components", config.DefaultComponentsDir, "components directory, relative to the source directory")
	pf.BoolP("verbose", "v", false, "enable debug logging")
	pf.String("log-format", "text", "log format (text, json)")

	f := rootCmd.Flags()
	f.IntP("depth", "d", -1, "maximum directory depth of expanded documents (-1 is unlimited, 0 is the root only)")
	f.StringSliceP("filter", "f", nil, "only expand these documents (base name or path relative to the source)")
	f.StringP("output", "o", config.DefaultOutput, "output directory")
	f.BoolP("watch", "w", false, "rebuild when the source changes")
	f.BoolP("serve", "s", false, "serve the output with live reload (implies --watch)")
	f.IntP("port", "p", config.DefaultPort, "port for --serve")
	f.String("host", config.DefaultHost, "host for --serve")

	rootCmd.AddCommand(newListCommand(v), newVersionCommand())

	return rootCmd
}

// flagKeys maps flags onto configuration keys.
var flagKeys = map[string]string{
	"components": "components.dir",
	"log-format": "log.format",
	"depth":      "build.depth",
	"filter":     "build.filter",
	"output":     "output",
	"watch":      "server.watch",
	"serve":      "server.serve",
	"port":       "server.port",
	"host":       "server.host",
}

// initConfig wires the config file, environment and flags of cmd into v.
func initConfig(cmd *cobra.Command, v *viper.Viper) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	switch {
	case cfgFile != "":
		v.SetConfigFile(cfgFile)
	case os.Getenv(ConfigFileEnv) != "":
		v.SetConfigFile(os.Getenv(ConfigFileEnv))
	default:
		v.AddConfigPath(".")
		v.SetConfigType("yaml")
		v.SetConfigName(".weave")
	}

	config.SetDefaults(v)
	config.BindEnv(v)

	if err := bindFlags(v, cmd.Flags()); err != nil {
		return err
	}

	if err := v.ReadInConfig(); err != nil {
		// A missing default file is fine; an explicit or broken one is not.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("reading config file: %w", err)
		}
	}

	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		v.Set("log.level", "debug")
	}

	return nil
}

// bindFlags binds every flag of flags listed in flagKeys to its key.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	var err error
	flags.VisitAll(func(flag *pflag.Flag) {
		key, ok := flagKeys[flag.Name]
		if !ok || err != nil {
			return
		}
		if bindErr := v.BindPFlag(key, flag); bindErr != nil {
			err = fmt.Errorf("binding flag %s: %w", flag.Name, bindErr)
		}
	})

	return err
}

// loadConfig finalizes the configuration for source.
func loadConfig(v *viper.Viper, source string) (*config.Config, error) {
	v.Set("source", source)

	return config.LoadFrom(v)
}

func newLogger(cfg *config.Config, w io.Writer) logging.Logger {
	lc := cfg.LoggerConfig()
	lc.Output = w

	return logging.NewLogger(lc)
}

// newMetricsRegistry returns a registry carrying the runtime collectors.
func newMetricsRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return reg
}

func runBuild(cmd *cobra.Command, v *viper.Viper, source string) error {
	cfg, err := loadConfig(v, source)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	logger := newLogger(cfg, cmd.ErrOrStderr())
	reg := newMetricsRegistry()
	builder := build.NewBuilder(cfg, logger, build.NewMetrics(reg))

	result, err := builder.Build(ctx)
	if err != nil {
		return err
	}
	printResult(cmd.OutOrStdout(), cfg, result)

	if !cfg.Server.Watch {
		return nil
	}

	return runDev(ctx, cfg, builder, logger, reg)
}

func printResult(w io.Writer, cfg *config.Config, result *build.BuildResult) {
	fmt.Fprintf(w, "Built %s documents and copied %s files to %s (%s) in %s\n",
		humanize.Comma(int64(result.Documents)),
		humanize.Comma(int64(result.Copied)),
		cfg.Output,
		humanize.Bytes(uint64(result.BytesWritten)),
		result.Duration.Round(time.Millisecond),
	)
	if result.FailedResolutions > 0 {
		fmt.Fprintf(w, "%d component references could not be resolved\n", result.FailedResolutions)
	}
	if n := len(result.Errors); n > 0 {
		fmt.Fprintf(w, "%d documents failed\n", n)
	}
}
