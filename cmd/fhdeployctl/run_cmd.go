package main

import (
	"context"
	"fmt"
	"os"

	"github.com/go-kit/kit/log"
	"github.com/spf13/cobra"

	"github.com/fluxcd/fhdeploy/internal/setup"
	"github.com/fluxcd/fhdeploy/pkg/config"
	"github.com/fluxcd/fhdeploy/pkg/deploy"
)

type runOpts struct {
	*rootOpts
	flakeRef      string
	configuration string
	operation     string
	noRollback    bool
	verbose       bool
}

func newRun(parent *rootOpts) *runOpts {
	return &runOpts{rootOpts: parent}
}

func (opts *runOpts) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one deployment cycle on this host, now",
		Long: `Run one deployment cycle on this host, using the same configuration
and state as fhdeployd. If the daemon is in the middle of a cycle,
this does nothing.`,
		Example: makeExample(
			"fhdeployctl run",
			"fhdeployctl run --flake-ref myorg/infra/0.1.* --operation boot",
		),
		RunE: opts.RunE,
	}
	cmd.Flags().StringVar(&opts.flakeRef, "flake-ref", "", "FlakeHub reference to deploy; overrides the config file")
	cmd.Flags().StringVar(&opts.configuration, "configuration", "", "NixOS configuration name; overrides the config file")
	cmd.Flags().StringVar(&opts.operation, "operation", "", "switch or boot; overrides the config file")
	cmd.Flags().BoolVar(&opts.noRollback, "no-rollback", false, "do not roll back if applying fails")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "log each step")
	return cmd
}

func (opts *runOpts) config(explicitFile bool) (config.Config, error) {
	c, err := opts.localConfig(explicitFile)
	if err != nil {
		return c, err
	}
	if opts.flakeRef != "" {
		c.FlakeRef = opts.flakeRef
	}
	if opts.configuration != "" {
		c.Configuration = opts.configuration
	}
	if opts.operation != "" {
		c.Operation = opts.operation
	}
	if opts.noRollback {
		no := false
		c.RollbackEnabled = &no
	}
	return c, c.Validate()
}

func (opts *runOpts) RunE(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		return errorWantedNoArgs
	}
	c, err := opts.config(cmd.Flags().Changed("config-file"))
	if err != nil {
		return err
	}

	logger := log.NewNopLogger()
	if opts.verbose {
		logger = log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
		logger = log.With(logger, "ts", log.DefaultTimestampUTC)
	}

	runner, err := setup.NewRunner(c, nil, logger)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStderr(), "Deploying %s (%s)\n", c.Target(), c.Operation)
	result := runner.Guard.Run(context.Background())
	switch result {
	case deploy.ResultBusy:
		fmt.Fprintln(cmd.OutOrStdout(), "Another deployment cycle is in progress; nothing done.")
		return nil
	default:
		fmt.Fprintf(cmd.OutOrStdout(), "Result: %s\n", result)
	}
	if result.Failed() {
		return fmt.Errorf("deployment cycle finished with result %s", result)
	}
	return nil
}
