package main

import (
	"time"

	"github.com/spf13/pflag"

	"github.com/fluxcd/fhdeploy/pkg/config"
)

// configFlags are the flags that can also be set in a config file.
// Only those given explicitly on the command line take precedence
// over the file; anything else is left for the file or the defaults.
type configFlags struct {
	fs       *pflag.FlagSet
	bindings map[string]func(*config.Config)
}

func defineConfigFlags(fs *pflag.FlagSet) *configFlags {
	cf := &configFlags{fs: fs, bindings: map[string]func(*config.Config){}}
	def := config.Defaults()

	defineString := func(flagName, defValue, desc string, field func(*config.Config) *string) {
		v := fs.String(flagName, defValue, desc)
		cf.bindings[flagName] = func(c *config.Config) { *field(c) = *v }
	}
	defineStringSlice := func(flagName string, defValue []string, desc string, field func(*config.Config) *[]string) {
		v := fs.StringSlice(flagName, defValue, desc)
		cf.bindings[flagName] = func(c *config.Config) { *field(c) = *v }
	}
	defineBool := func(flagName string, defValue bool, desc string, field func(*config.Config) **bool) {
		v := fs.Bool(flagName, defValue, desc)
		cf.bindings[flagName] = func(c *config.Config) {
			b := *v
			*field(c) = &b
		}
	}
	defineDuration := func(flagName string, defValue time.Duration, desc string, field func(*config.Config) *time.Duration) {
		v := fs.Duration(flagName, defValue, desc)
		cf.bindings[flagName] = func(c *config.Config) { *field(c) = *v }
	}
	defineFloat64 := func(flagName string, defValue float64, desc string, field func(*config.Config) *float64) {
		v := fs.Float64(flagName, defValue, desc)
		cf.bindings[flagName] = func(c *config.Config) { *field(c) = *v }
	}
	defineInt := func(flagName string, defValue int, desc string, field func(*config.Config) *int) {
		v := fs.Int(flagName, defValue, desc)
		cf.bindings[flagName] = func(c *config.Config) { *field(c) = *v }
	}

	defineString("log-format", def.LogFormat, "change the log format (fmt or json)", func(c *config.Config) *string { return &c.LogFormat })
	defineString("listen", def.Listen, "listen address where the webhook, status and /metrics will be served", func(c *config.Config) *string { return &c.Listen })

	// what to deploy
	defineString("flake-ref", "", "FlakeHub reference to deploy, e.g., myorg/infra/0.1.*", func(c *config.Config) *string { return &c.FlakeRef })
	defineString("configuration", def.Configuration, "name of the NixOS configuration in the flake", func(c *config.Config) *string { return &c.Configuration })
	defineString("hostname", def.Hostname, "name of this host, as used in notifications and the default webhook job pattern", func(c *config.Config) *string { return &c.Hostname })
	defineString("operation", def.Operation, "how to activate a new configuration (switch or boot)", func(c *config.Config) *string { return &c.Operation })
	defineBool("rollback", true, "roll back to the previous generation if applying fails", func(c *config.Config) **bool { return &c.RollbackEnabled })

	// cycles
	defineString("state-dir", def.StateDir, "directory in which to record deployment state", func(c *config.Config) *string { return &c.StateDir })
	defineDuration("poll-interval", def.PollInterval, "check for a new version at least this often, even without a webhook", func(c *config.Config) *time.Duration { return &c.PollInterval })

	// webhook
	defineString("webhook-secret-file", "", "path to a file containing the shared secret for webhook signatures; webhooks are refused if not supplied", func(c *config.Config) *string { return &c.WebhookSecretFile })
	defineBool("webhook-gate", false, "only trigger on successful GitHub workflow_job events whose name matches --webhook-job-pattern", func(c *config.Config) **bool { return &c.WebhookGate })
	defineStringSlice("webhook-job-pattern", nil, "glob patterns for workflow job names that trigger a deployment; defaults to *<hostname>*", func(c *config.Config) *[]string { return &c.WebhookJobPatterns })
	defineFloat64("webhook-rps", def.WebhookRPS, "maximum webhook requests per second", func(c *config.Config) *float64 { return &c.WebhookRPS })
	defineInt("webhook-burst", def.WebhookBurst, "maximum burst of webhook requests", func(c *config.Config) *int { return &c.WebhookBurst })

	// notifications
	defineString("discord-webhook-file", "", "path to a file containing a Discord webhook URL to notify", func(c *config.Config) *string { return &c.DiscordWebhookFile })
	defineString("slack-webhook-file", "", "path to a file containing a Slack incoming webhook URL to notify", func(c *config.Config) *string { return &c.SlackWebhookFile })
	defineString("slack-username", def.SlackUsername, "username for Slack notifications", func(c *config.Config) *string { return &c.SlackUsername })

	// collaborators
	defineString("fh", "", "path to the fh binary; looked up on PATH and in the Nix profiles if not supplied", func(c *config.Config) *string { return &c.FhBin })
	defineString("nixos-rebuild", "", "path to the nixos-rebuild binary; looked up on PATH and in the Nix profiles if not supplied", func(c *config.Config) *string { return &c.NixosRebuildBin })

	return cf
}

// apply copies the value of each flag given on the command line into
// c.
func (cf *configFlags) apply(c *config.Config) {
	cf.fs.Visit(func(f *pflag.Flag) {
		if bind, ok := cf.bindings[f.Name]; ok {
			bind(c)
		}
	})
}
