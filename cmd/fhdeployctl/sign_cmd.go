package main

import (
	"bytes"
	"fmt"
	"io/ioutil"

	"github.com/spf13/cobra"

	"github.com/fluxcd/fhdeploy/pkg/webhook"
)

type signOpts struct {
	*rootOpts
	secretFile string
	bodyFile   string
}

func newSign(parent *rootOpts) *signOpts {
	return &signOpts{rootOpts: parent}
}

func (opts *signOpts) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Compute the webhook signature header for a request body",
		Example: makeExample(
			`echo -n '{}' | fhdeployctl sign --secret-file /run/secrets/webhook`,
			`fhdeployctl sign --secret-file /run/secrets/webhook --body payload.json`,
		),
		RunE: opts.RunE,
	}
	cmd.Flags().StringVar(&opts.secretFile, "secret-file", "", "path to a file containing the webhook secret")
	cmd.Flags().StringVar(&opts.bodyFile, "body", "-", "path to the request body, or - for stdin")
	return cmd
}

func (opts *signOpts) RunE(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		return errorWantedNoArgs
	}
	secret, err := loadSecret(opts.secretFile)
	if err != nil {
		return err
	}
	body, err := readBody(cmd, opts.bodyFile)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", webhook.SignatureHeader, webhook.Sign(body, secret))
	return nil
}

func loadSecret(path string) ([]byte, error) {
	if path == "" {
		return nil, newUsageError("please supply --secret-file")
	}
	secret, err := webhook.FileSecret(path).Load()
	if err != nil {
		return nil, err
	}
	if len(secret) == 0 {
		return nil, fmt.Errorf("secret file %s is empty", path)
	}
	return secret, nil
}

func readBody(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return ioutil.ReadAll(cmd.InOrStdin())
	}
	body, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}
	// Editors add trailing newlines; senders sign what they send.
	return bytes.TrimRight(body, "\n"), nil
}
