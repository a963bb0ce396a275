// Package cmd implements the libforge command line.
package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/thediveo/enumflag/v2"

	"github.com/libforge/libforge/internal/logging"
)

const envPrefix = "LIBFORGE"

var levelIDs = map[logging.Level][]string{
	logging.Debug: {"debug"},
	logging.Info:  {"info"},
	logging.Warn:  {"warn"},
	logging.Error: {"error"},
}

type logFormat int

const (
	formatJSON logFormat = iota
	formatConsole
)

var formatIDs = map[logFormat][]string{
	formatJSON:    {"json"},
	formatConsole: {"console"},
}

type rootParams struct {
	level  logging.Level
	format logFormat
}

// New returns the root command with every subcommand attached.
func New() *cobra.Command {
	params := rootParams{level: logging.Info}

	root := &cobra.Command{
		Use:   "libforge",
		Short: "Bundle a component library for every module system",
		Long: `libforge bundles the sources of a component library into CommonJS,
ES module, IIFE and UMD files, keeping peer dependencies external and
extracting stylesheets into a single asset.

Flags can also be set through LIBFORGE_* environment variables, for
example LIBFORGE_LOG_LEVEL=debug.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return bindEnv(cmd.Flags())
		},
	}

	root.PersistentFlags().Var(
		enumflag.New(&params.level, "level", levelIDs, enumflag.EnumCaseInsensitive),
		"log-level", "log level: debug, info, warn or error")
	root.PersistentFlags().Var(
		enumflag.New(&params.format, "format", formatIDs, enumflag.EnumCaseInsensitive),
		"log-format", "log format: json or console")

	root.AddCommand(
		newBuildCommand(&params),
		newValidateCommand(),
		newSchemaCommand(),
		newVersionCommand(),
	)
	return root
}

// bindEnv sets every flag not given on the command line from its
// LIBFORGE_* environment variable, if present.
func bindEnv(flags *pflag.FlagSet) error {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	var err error
	flags.VisitAll(func(f *pflag.Flag) {
		if err != nil || f.Changed || !v.IsSet(f.Name) {
			return
		}
		err = flags.Set(f.Name, v.GetString(f.Name))
	})
	return err
}

func (p *rootParams) logger(cmd *cobra.Command) *logging.Logger {
	format := "json"
	if p.format == formatConsole {
		format = "console"
	}
	return logging.NewLogger(logging.Config{
		Level:  p.level,
		Format: format,
		Output: cmd.ErrOrStderr(),
	})
}
