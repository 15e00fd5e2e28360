package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/teracrafts/posthog-go/client"
	"github.com/teracrafts/posthog-go/config"
	"github.com/teracrafts/posthog-go/posthogtest"
	"github.com/teracrafts/posthog-go/types"
)

const (
	pass = "\033[32m[PASS]\033[0m"
	fail = "\033[31m[FAIL]\033[0m"
)

// NewLabCommand creates the lab command, which exercises a client against an
// in-process collector and reports each check.
func NewLabCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "lab",
		Short: "Verify the client against an in-process collector",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := types.Logger(&types.NullLogger{})
			if rootOpts.Debug {
				logger = types.NewDefaultLoggerTo(cmd.ErrOrStderr(), true)
			}
			failed := runLab(cmd.OutOrStdout(), logger)
			if failed > 0 {
				return NewExitError(ExitFailure, fmt.Sprintf("%d verification(s) failed", failed))
			}
			return nil
		},
	}
}

type labCheck struct {
	name string
	run  func() error
}

// runLab runs every check and returns the number that failed.
func runLab(w io.Writer, logger types.Logger) int {
	fmt.Fprintln(w, "=== posthog-go lab ===")

	srv := posthogtest.NewServer()
	defer srv.Close()
	srv.SetFlags(
		map[string]any{"lab-bool": true, "lab-variant": "blue"},
		map[string]any{"lab-variant": map[string]any{"count": 100}},
	)

	c, err := client.New("phc_lab_key",
		config.WithHost(srv.URL),
		config.WithFlushInterval(time.Hour),
		config.WithPreloadFeatureFlags(false),
		config.WithFeatureFlagEvents(false),
		config.WithLogger(logger),
	)
	if err != nil {
		fmt.Fprintf(w, "%s New - %v\n", fail, err)
		return 1
	}
	defer c.Close()

	checks := []labCheck{
		{"Initialize", func() error {
			c.Initialize()
			return expect(c.IsSetup(), "client not set up")
		}},
		{"ReloadFeatureFlags", func() error {
			return c.ReloadFeatureFlags(nil).Wait()
		}},
		{"IsFeatureEnabled", func() error {
			return expect(c.IsFeatureEnabled("lab-bool", false), "lab-bool not enabled")
		}},
		{"GetFeatureFlag", func() error {
			got := c.GetFeatureFlag("lab-variant")
			return expect(got == "blue", "lab-variant = %v", got)
		}},
		{"GetFeatureFlagPayload", func() error {
			payload, _ := c.GetFeatureFlagPayload("lab-variant").(map[string]any)
			return expect(payload["count"] == float64(100), "unexpected payload %v", payload)
		}},
		{"Default for missing flag", func() error {
			return expect(c.IsFeatureEnabled("missing", true), "default not returned")
		}},
		{"Identify", func() error {
			c.Identify("lab-user", map[string]any{"plan": "premium"}, nil)
			return expect(c.DistinctID() == "lab-user", "distinct id = %q", c.DistinctID())
		}},
		{"Capture", func() error {
			c.Capture("lab_verification", map[string]any{"sdk": config.SDKName})
			return expect(c.QueueSize() > 0, "event not queued")
		}},
		{"Flush", func() error {
			if err := c.Flush().Wait(); err != nil {
				return err
			}
			names := srv.EventNames()
			return expect(len(names) > 0 && names[len(names)-1] == "lab_verification", "collector received %v", names)
		}},
		{"Reset", func() error {
			c.Reset()
			return expect(c.DistinctID() == c.AnonymousID() && c.DistinctID() != "lab-user", "identity not reset")
		}},
		{"Close", func() error {
			c.Close()
			return expect(!c.IsSetup(), "client still set up")
		}},
	}

	passed, failed := 0, 0
	for _, check := range checks {
		if err := check.run(); err != nil {
			fmt.Fprintf(w, "%s %s - %v\n", fail, check.name, err)
			failed++
			continue
		}
		fmt.Fprintf(w, "%s %s\n", pass, check.name)
		passed++
	}

	fmt.Fprintf(w, "Results: %d passed, %d failed\n", passed, failed)
	return failed
}

func expect(ok bool, format string, args ...any) error {
	if ok {
		return nil
	}
	return fmt.Errorf(format, args...)
}
