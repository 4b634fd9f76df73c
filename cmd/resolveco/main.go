// Command resolveco resolves a canonical web domain and valid human
// contacts for small/medium businesses, driving the C1-C9 pipeline over a
// single row, a batch file, or an HTTP intake endpoint.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/resolveco/resolveco/internal/config"
)

// Exit codes per spec §6.
const (
	exitOK                = 0
	exitFatal             = 1
	exitConfigError       = 2
	exitPartialFailure    = 3
)

var (
	cfgFile string
	verbose bool
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	root := newRootCommand()
	if err := root.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(exitCodeFor(err))
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "resolveco",
		Short: "Resolve a canonical domain and valid contacts for a business",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			} else {
				zerolog.SetGlobalLevel(zerolog.InfoLevel)
			}
		},
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a YAML config file (optional)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")

	root.AddCommand(newResolveCommand())
	root.AddCommand(newBatchCommand())
	root.AddCommand(newServeCommand())
	root.AddCommand(newToolsCommand())
	root.AddCommand(newCacheCommand())
	return root
}

// loadConfig reads resolveco's three-layer config and binds cmd's own
// flags on top, so a flag set on this specific subcommand outranks
// env/file/defaults, per internal/config's documented precedence.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	v, err := config.New(cfgFile)
	if err != nil {
		return config.Config{}, fmt.Errorf("%w (%v)", errConfig, err)
	}
	if err := config.BindFlags(cmd, v); err != nil {
		return config.Config{}, fmt.Errorf("%w (%v)", errConfig, err)
	}
	cfg := config.Load(v)
	if err := config.Validate(cfg); err != nil {
		return config.Config{}, fmt.Errorf("%w (%v)", errConfig, err)
	}
	return cfg, nil
}

var (
	errConfig          = fmt.Errorf("configuration error")
	errPartialFailure  = fmt.Errorf("batch completed with too many rows needing manual review")
)

// exitCodeFor maps a returned error to spec §6's exit code policy: a
// configuration error is always 2; a partial-failure sentinel (raised by
// the batch command when too many rows needed manual review) is 3;
// anything else unexpected is 1.
func exitCodeFor(err error) int {
	switch {
	case errIsConfig(err):
		return exitConfigError
	case errIsPartialFailure(err):
		return exitPartialFailure
	default:
		return exitFatal
	}
}

func errIsConfig(err error) bool {
	return err != nil && (err == errConfig || unwrapsTo(err, errConfig))
}

func errIsPartialFailure(err error) bool {
	return err != nil && (err == errPartialFailure || unwrapsTo(err, errPartialFailure))
}

func unwrapsTo(err, target error) bool {
	for err != nil {
		if err == target {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
