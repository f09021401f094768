// config is the package containing configuration for fhdeployd,
// shared so it can be used by the daemon as well as fhdeployctl,
// which needs to find the same state file.
package config

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/imdario/mergo"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/fluxcd/fhdeploy/pkg/deploy"
	fhdeployerr "github.com/fluxcd/fhdeploy/pkg/errors"
	"github.com/fluxcd/fhdeploy/pkg/state"
	"github.com/fluxcd/fhdeploy/pkg/webhook"
)

const (
	ConfigPath    = "/etc/fhdeploy"
	ConfigName    = "fhdeploy.yaml"
	ConfigVersion = "v1"
)

type Config struct {
	// If present in a config file, it must equal ConfigVersion.
	ConfigVersion string `yaml:"fhdeployConfigVersion,omitempty"`

	LogFormat string `yaml:"logFormat,omitempty"`
	Listen    string `yaml:"listen,omitempty"`

	FlakeRef        string `yaml:"flakeRef,omitempty"`
	Configuration   string `yaml:"configuration,omitempty"`
	Hostname        string `yaml:"hostname,omitempty"`
	Operation       string `yaml:"operation,omitempty"`
	RollbackEnabled *bool  `yaml:"rollback,omitempty"`

	StateDir     string        `yaml:"stateDir,omitempty"`
	PollInterval time.Duration `yaml:"pollInterval,omitempty"`

	// Secrets are only ever given as paths to files.
	WebhookSecretFile  string   `yaml:"webhookSecretFile,omitempty"`
	WebhookGate        *bool    `yaml:"webhookGate,omitempty"`
	WebhookJobPatterns []string `yaml:"webhookJobPatterns,omitempty"`
	WebhookRPS         float64  `yaml:"webhookRps,omitempty"`
	WebhookBurst       int      `yaml:"webhookBurst,omitempty"`

	DiscordWebhookFile string `yaml:"discordWebhookFile,omitempty"`
	SlackWebhookFile   string `yaml:"slackWebhookFile,omitempty"`
	SlackUsername      string `yaml:"slackUsername,omitempty"`

	FhBin           string `yaml:"fhBin,omitempty"`
	NixosRebuildBin string `yaml:"nixosRebuildBin,omitempty"`
}

// Defaults returns the configuration used for anything not given in
// a file or on the command line. Hostname defaults to this host's
// name; Configuration defaults to Hostname, in WithDefaults.
func Defaults() Config {
	hostname, _ := os.Hostname()
	return Config{
		LogFormat:     "fmt",
		Listen:        "127.0.0.1:9876",
		Hostname:      hostname,
		Operation:     string(deploy.OperationSwitch),
		StateDir:      state.DefaultDir,
		PollInterval:  5 * time.Minute,
		WebhookRPS:    1,
		WebhookBurst:  5,
		SlackUsername: "fhdeploy",
	}
}

// Load reads a config file. Unknown fields are an error, since a
// misspelt field would otherwise silently take its default.
func Load(path string) (Config, error) {
	var c Config
	bs, err := ioutil.ReadFile(path)
	if err != nil {
		return c, errors.Wrap(err, "reading config file")
	}
	if err := yaml.UnmarshalStrict(bs, &c); err != nil {
		return c, userError(errors.Wrapf(err, "parsing config file %s", path))
	}
	if c.ConfigVersion != "" && c.ConfigVersion != ConfigVersion {
		return c, userError(fmt.Errorf("config file %s has fhdeployConfigVersion %q; expected %q", path, c.ConfigVersion, ConfigVersion))
	}
	return c, nil
}

// WithDefaults fills in anything not set in c from Defaults().
func (c Config) WithDefaults() (Config, error) {
	if err := mergo.Merge(&c, Defaults()); err != nil {
		return c, errors.Wrap(err, "merging default configuration")
	}
	if c.Configuration == "" {
		c.Configuration = c.Hostname
	}
	return c, nil
}

// Rollback reports whether to roll back after a failed apply. It
// defaults to true.
func (c Config) Rollback() bool {
	return c.RollbackEnabled == nil || *c.RollbackEnabled
}

// Gate reports whether webhooks are filtered to successful GitHub
// workflow jobs. It defaults to false.
func (c Config) Gate() bool {
	return c.WebhookGate != nil && *c.WebhookGate
}

func (c Config) JobPatterns() []string {
	if len(c.WebhookJobPatterns) > 0 {
		return c.WebhookJobPatterns
	}
	return webhook.DefaultJobPatterns(c.Hostname)
}

func (c Config) StateFile() string {
	return filepath.Join(c.StateDir, state.DefaultName)
}

func (c Config) LockFile() string {
	return c.StateFile() + ".lock"
}

func (c Config) Target() deploy.Target {
	op, _ := deploy.ParseOperation(c.Operation)
	return deploy.Target{
		Reference:       c.FlakeRef,
		Configuration:   c.Configuration,
		Operation:       op,
		RollbackEnabled: c.Rollback(),
		Hostname:        c.Hostname,
	}
}

// Validate checks the configuration is complete and coherent. It's
// expected to be called after defaults are filled in.
func (c Config) Validate() error {
	var problems []string
	if c.FlakeRef == "" {
		problems = append(problems, "a FlakeHub reference (--flake-ref) is required")
	} else if err := ValidateReference(c.FlakeRef); err != nil {
		problems = append(problems, err.Error())
	}
	if c.Configuration == "" {
		problems = append(problems, "a NixOS configuration name (--configuration) is required, since the hostname could not be determined")
	}
	if _, err := deploy.ParseOperation(c.Operation); err != nil {
		problems = append(problems, err.Error())
	}
	switch c.LogFormat {
	case "fmt", "json":
	default:
		problems = append(problems, fmt.Sprintf("log format %q is not one of fmt, json", c.LogFormat))
	}
	if c.PollInterval <= 0 {
		problems = append(problems, "poll interval must be positive")
	}
	if c.WebhookRPS <= 0 || c.WebhookBurst <= 0 {
		problems = append(problems, "webhook rate limit and burst must be positive")
	}
	if c.StateDir == "" {
		problems = append(problems, "a state directory is required")
	}
	if len(problems) > 0 {
		return userError(errors.New(strings.Join(problems, "; ")))
	}
	return nil
}

// ValidateReference checks a FlakeHub reference of the form
// org/flake/version has a version that makes sense as a semver
// constraint (or is `*`). References of other shapes are passed
// through, since fh understands more forms than we do.
func ValidateReference(ref string) error {
	parts := strings.Split(ref, "/")
	if len(parts) != 3 {
		return nil
	}
	for _, p := range parts {
		if p == "" {
			return fmt.Errorf("FlakeHub reference %q has an empty segment", ref)
		}
	}
	version := parts[2]
	if version == "*" {
		return nil
	}
	if _, err := semver.NewConstraint(version); err != nil {
		return fmt.Errorf("FlakeHub reference %q: version %q is not a valid semver constraint: %s", ref, version, err)
	}
	return nil
}

func userError(err error) error {
	return &fhdeployerr.Error{
		Type: fhdeployerr.User,
		Err:  err,
		Help: `Invalid configuration

    ` + err.Error() + `

Check the command-line flags and, if you are using one, the config
file (--config-file).
`,
	}
}
