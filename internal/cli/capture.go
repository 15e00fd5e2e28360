package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/teracrafts/posthog-go/client"
	"github.com/teracrafts/posthog-go/config"
	"github.com/teracrafts/posthog-go/types"
)

// CaptureOptions holds flags for the capture command.
type CaptureOptions struct {
	DistinctID string
	Props      []string
	Groups     []string
}

// NewCaptureCommand creates the capture command.
func NewCaptureCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CaptureOptions{}

	cmd := &cobra.Command{
		Use:   "capture <event>",
		Short: "Capture one event and deliver it",
		Long: `Capture one event and deliver it before exiting.

Property values that parse as JSON are sent as JSON; anything else is sent as
a string. Without --distinct-id the event is attributed to a fresh anonymous id.`,
		Example: `  posthog capture signed_up --distinct-id user-1 --prop plan=pro --prop seats=5`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCapture(cmd, rootOpts, opts, args[0])
		},
	}

	cmd.Flags().StringVarP(&opts.DistinctID, "distinct-id", "d", "", "distinct id to attribute the event to")
	cmd.Flags().StringArrayVarP(&opts.Props, "prop", "p", nil, "event property key=value (repeatable)")
	cmd.Flags().StringArrayVarP(&opts.Groups, "group", "g", nil, "group membership type=key (repeatable)")

	return cmd
}

func runCapture(cmd *cobra.Command, rootOpts *RootOptions, opts *CaptureOptions, event string) error {
	props, err := parsePairs(opts.Props)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --prop", err)
	}
	groups, err := parseGroups(opts.Groups)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --group", err)
	}
	if opts.DistinctID != "" {
		props["distinct_id"] = opts.DistinctID
	}

	apiKey, clientOpts, err := rootOpts.resolve(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	base := []config.OptionFunc{
		config.WithLifecycleEvents(false),
		config.WithPreloadFeatureFlags(false),
		config.WithFeatureFlagEvents(false),
	}

	c, err := client.New(apiKey, append(base, clientOpts...)...)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid options", err)
	}
	c.Initialize()
	defer c.Close()

	c.CaptureWithOptions(event, props, types.CaptureOptions{Groups: groups})
	if c.QueueSize() == 0 {
		return NewExitError(ExitCommandError, "event was not queued")
	}
	if err := c.Flush().WaitContext(cmd.Context()); err != nil {
		return WrapExitError(ExitFailure, "delivery failed", err)
	}

	cmd.Printf("captured %s\n", event)
	return nil
}

func parseGroups(pairs []string) (map[string]string, error) {
	groups := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		groupType, key, ok := strings.Cut(pair, "=")
		if !ok || groupType == "" || key == "" {
			return nil, fmt.Errorf("expected type=key, got %q", pair)
		}
		groups[groupType] = key
	}
	return groups, nil
}
