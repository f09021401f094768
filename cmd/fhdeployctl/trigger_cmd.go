package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

type triggerOpts struct {
	*rootOpts
	secretFile string
	bodyFile   string
	event      string
}

func newTrigger(parent *rootOpts) *triggerOpts {
	return &triggerOpts{rootOpts: parent}
}

func (opts *triggerOpts) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trigger",
		Short: "Ask the daemon to run a deployment cycle, by sending it a signed webhook",
		Example: makeExample(
			"fhdeployctl trigger --secret-file /run/secrets/webhook",
			"fhdeployctl trigger --secret-file /run/secrets/webhook --event workflow_job --body job.json",
		),
		RunE: opts.RunE,
	}
	cmd.Flags().StringVar(&opts.secretFile, "secret-file", "", "path to a file containing the webhook secret")
	cmd.Flags().StringVar(&opts.bodyFile, "body", "", "path to a request body to send, or - for stdin; an empty JSON object if not supplied")
	cmd.Flags().StringVar(&opts.event, "event", "", "value for the X-GitHub-Event header, for daemons that filter on workflow jobs")
	return cmd
}

func (opts *triggerOpts) RunE(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		return errorWantedNoArgs
	}
	secret, err := loadSecret(opts.secretFile)
	if err != nil {
		return err
	}
	body := []byte("{}")
	if opts.bodyFile != "" {
		if body, err = readBody(cmd, opts.bodyFile); err != nil {
			return err
		}
	}
	headers := http.Header{}
	if opts.event != "" {
		headers.Set("X-GitHub-Event", opts.event)
	}

	res, err := opts.API.Trigger(context.Background(), body, secret, headers)
	if err = opts.explainAPIError(err); err == errRecentlyTriggered {
		fmt.Fprintln(cmd.OutOrStdout(), "A deployment cycle was requested recently; it will deploy the latest version.")
		return nil
	} else if err != nil {
		return err
	}
	switch res.Status {
	case "ignored":
		fmt.Fprintf(cmd.OutOrStdout(), "Ignored: %s\n", res.Reason)
	default:
		fmt.Fprintln(cmd.OutOrStdout(), "Deployment cycle requested; see `fhdeployctl status` for the outcome.")
	}
	return nil
}
