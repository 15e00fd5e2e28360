// Package cli implements the posthog command line tool.
package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/teracrafts/posthog-go/config"
	"github.com/teracrafts/posthog-go/types"
)

// APIKeyEnv is read when neither --api-key nor the config file sets a key.
const APIKeyEnv = "POSTHOG_API_KEY"

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	APIKey     string
	Host       string
	Debug      bool
}

// NewRootCommand creates the root command for the posthog CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "posthog",
		Short: "PostHog client tool",
		Long: `Capture events and inspect feature flags from the command line, or run a
local collector that accepts the same /batch and /decide requests as PostHog.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "YAML config file")
	cmd.PersistentFlags().StringVar(&opts.APIKey, "api-key", "", "project API key (default $"+APIKeyEnv+")")
	cmd.PersistentFlags().StringVar(&opts.Host, "host", "", "ingestion host (default "+config.DefaultHost+")")
	cmd.PersistentFlags().BoolVar(&opts.Debug, "debug", false, "debug logging")

	cmd.AddCommand(NewCaptureCommand(opts))
	cmd.AddCommand(NewFlagsCommand(opts))
	cmd.AddCommand(NewCollectorCommand(opts))
	cmd.AddCommand(NewLabCommand(opts))

	return cmd
}

// resolve merges the config file, the environment and the global flags into
// client options. Later sources win: file, then flags.
func (o *RootOptions) resolve(stderr io.Writer) (string, []config.OptionFunc, error) {
	apiKey := o.APIKey
	var opts []config.OptionFunc

	if o.ConfigPath != "" {
		file, err := config.LoadFile(o.ConfigPath)
		if err != nil {
			return "", nil, WrapExitError(ExitCommandError, "invalid config", err)
		}
		if apiKey == "" {
			apiKey = file.APIKey
		}
		opts = append(opts, file.Options()...)
	}
	if apiKey == "" {
		apiKey = os.Getenv(APIKeyEnv)
	}
	if strings.TrimSpace(apiKey) == "" {
		return "", nil, NewExitError(ExitCommandError, "an API key is required (--api-key, config file or $"+APIKeyEnv+")")
	}

	if o.Host != "" {
		opts = append(opts, config.WithHost(o.Host))
	}
	if o.Debug {
		opts = append(opts, config.WithDebug())
	}
	opts = append(opts, config.WithLogger(types.NewDefaultLoggerTo(stderr, o.Debug)))

	return apiKey, opts, nil
}

// options returns validated Options for commands that talk to the
// transport directly.
func (o *RootOptions) options(stderr io.Writer) (*config.Options, error) {
	apiKey, opts, err := o.resolve(stderr)
	if err != nil {
		return nil, err
	}
	options := config.DefaultOptions(apiKey)
	for _, opt := range opts {
		opt(options)
	}
	if err := options.Validate(); err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid options", err)
	}
	return options, nil
}

// parsePairs parses key=value arguments. Values that are valid JSON are
// decoded; anything else is kept as a string.
func parsePairs(pairs []string) (map[string]any, error) {
	out := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("expected key=value, got %q", pair)
		}
		out[key] = decodeValue(raw)
	}
	return out, nil
}
