package main

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/fluxcd/fhdeploy/pkg/config"
	transport "github.com/fluxcd/fhdeploy/pkg/http"
	"github.com/fluxcd/fhdeploy/pkg/http/client"
)

const (
	EnvVariableURL = "FHDEPLOY_URL"
	defaultURL     = "http://127.0.0.1:9876"
)

type rootOpts struct {
	URL        string
	ConfigFile string
	StateDir   string
	Timeout    time.Duration
	API        *client.Client
}

func newRoot() *rootOpts {
	return &rootOpts{}
}

var rootLongHelp = strings.TrimSpace(`
fhdeployctl helps you run and inspect FlakeHub deployments.

Workflow:
  fhdeployctl status                             # What's deployed, and how did the last attempt go?
  fhdeployctl trigger --secret-file /run/secret  # Ask the daemon to check for a new version now
  fhdeployctl run                                # Run a deployment cycle right here
  fhdeployctl reset                              # Forget a failed version, so it will be tried again
`)

func (opts *rootOpts) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:               "fhdeployctl",
		Long:              rootLongHelp,
		SilenceUsage:      true,
		PersistentPreRunE: opts.PersistentPreRunE,
		RunE: func(cmd *cobra.Command, args []string) error {
			return newUsageError("please supply a command")
		},
	}
	cmd.PersistentFlags().StringVarP(&opts.URL, "url", "u", defaultURL,
		fmt.Sprintf("base URL of the fhdeployd API server; you can also set the environment variable %s", EnvVariableURL))
	cmd.PersistentFlags().StringVar(&opts.ConfigFile, "config-file", filepath.Join(config.ConfigPath, config.ConfigName),
		"path to the fhdeployd config file, used for local operations; ignored if it does not exist")
	cmd.PersistentFlags().StringVar(&opts.StateDir, "state-dir", "",
		"directory holding the deployment state; overrides the config file")
	cmd.PersistentFlags().DurationVar(&opts.Timeout, "timeout", 10*time.Second,
		"time to wait for the daemon to answer")

	cmd.AddCommand(
		newVersionCommand(),
		newStatus(opts).Command(),
		newRun(opts).Command(),
		newReset(opts).Command(),
		newSign(opts).Command(),
		newTrigger(opts).Command(),
	)

	return cmd
}

func (opts *rootOpts) PersistentPreRunE(cmd *cobra.Command, _ []string) error {
	if env := os.Getenv(EnvVariableURL); env != "" && !cmd.Flags().Changed("url") {
		opts.URL = env
	}
	if opts.API == nil {
		opts.API = client.New(&http.Client{Timeout: opts.Timeout}, transport.NewAPIRouter(), opts.URL)
	}
	return nil
}

// localConfig is the configuration as fhdeployd would see it, so far
// as the file and this command's flags say.
func (opts *rootOpts) localConfig(explicitFile bool) (config.Config, error) {
	var c config.Config
	if opts.ConfigFile != "" {
		fromFile, err := config.Load(opts.ConfigFile)
		switch {
		case err == nil:
			c = fromFile
		case explicitFile || !os.IsNotExist(errors.Cause(err)):
			return c, err
		}
	}
	if opts.StateDir != "" {
		c.StateDir = opts.StateDir
	}
	return c.WithDefaults()
}
