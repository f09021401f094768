package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/fluxcd/fhdeploy/pkg/state"
)

type statusOpts struct {
	*rootOpts
	local        bool
	outputFormat string
}

func newStatus(parent *rootOpts) *statusOpts {
	return &statusOpts{rootOpts: parent}
}

func (opts *statusOpts) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show what has been deployed, and the outcome of the last attempt",
		Example: makeExample(
			"fhdeployctl status",
			"fhdeployctl status --local --state-dir /var/lib/fhdeploy",
		),
		RunE: opts.RunE,
	}
	cmd.Flags().BoolVar(&opts.local, "local", false, "read the state file directly rather than asking the daemon")
	cmd.Flags().StringVarP(&opts.outputFormat, "output-format", "o", outputFormatTab, "output format (tab or json)")
	return cmd
}

func (opts *statusOpts) RunE(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		return errorWantedNoArgs
	}
	switch opts.outputFormat {
	case outputFormatTab, outputFormatJSON:
	default:
		return errorInvalidOutputFormat
	}

	ctx := context.Background()
	out := cmd.OutOrStdout()

	if opts.local {
		c, err := opts.localConfig(cmd.Flags().Changed("config-file"))
		if err != nil {
			return err
		}
		record := state.NewFileStore(c.StateFile(), nil).Read(ctx)
		if opts.outputFormat == outputFormatJSON {
			return outputJSON(out, record)
		}
		w := newTabwriter(out)
		writeRecord(w, record)
		return w.Flush()
	}

	status, err := opts.API.Status(ctx)
	if err != nil {
		return opts.explainAPIError(err)
	}
	if opts.outputFormat == outputFormatJSON {
		return outputJSON(out, status)
	}
	return writeStatus(out, status)
}
