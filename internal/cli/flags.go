package cli

import (
	"github.com/spf13/cobra"

	"github.com/teracrafts/posthog-go/config"
	"github.com/teracrafts/posthog-go/internal/transport"
	"github.com/teracrafts/posthog-go/value"
)

// FlagsOptions holds flags for the flags command.
type FlagsOptions struct {
	DistinctID string
	Groups     []string
}

// FlagsOutput is the JSON printed by the flags command.
type FlagsOutput struct {
	DistinctID string            `json:"distinct_id"`
	Groups     map[string]string `json:"groups,omitempty"`
	Flags      map[string]any    `json:"flags"`
	Payloads   map[string]any    `json:"payloads,omitempty"`
}

// NewFlagsCommand creates the flags command.
func NewFlagsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FlagsOptions{}

	cmd := &cobra.Command{
		Use:   "flags",
		Short: "Print the feature flags of a distinct id",
		Long: `Ask /decide for the feature flags of a distinct id and print them as JSON.
No events are captured.`,
		Example: `  posthog flags --distinct-id user-1 --group company=acme`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFlags(cmd, rootOpts, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.DistinctID, "distinct-id", "d", "", "distinct id to evaluate flags for (required)")
	cmd.Flags().StringArrayVarP(&opts.Groups, "group", "g", nil, "group membership type=key (repeatable)")
	_ = cmd.MarkFlagRequired("distinct-id")

	return cmd
}

func runFlags(cmd *cobra.Command, rootOpts *RootOptions, opts *FlagsOptions) error {
	groups, err := parseGroups(opts.Groups)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --group", err)
	}
	options, err := rootOpts.options(cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	t := transport.New(&transport.Config{
		APIKey:    options.APIKey,
		Host:      options.Host,
		UserAgent: config.SDKName + "-cli/" + config.SDKVersion,
		Timeout:   options.Timeout,
		Logger:    options.Logger,
	})
	defer t.Close()

	resp, err := t.SyncFlags(cmd.Context(), opts.DistinctID, groups)
	if err != nil {
		return WrapExitError(ExitFailure, "flag sync failed", err)
	}

	out := FlagsOutput{
		DistinctID: opts.DistinctID,
		Groups:     groups,
		Flags:      toAnyMap(resp.Flags),
		Payloads:   toAnyMap(resp.Payloads),
	}
	if len(out.Groups) == 0 {
		out.Groups = nil
	}
	return writeJSON(cmd.OutOrStdout(), out)
}

func toAnyMap(m map[string]value.Value) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = value.ToAny(v)
	}
	return out
}
