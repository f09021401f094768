// Package setup assembles a deployment runner from configuration, so
// that the daemon and a one-shot `fhdeployctl run` deploy in exactly
// the same way.
package setup

import (
	"bytes"
	"io/ioutil"

	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"

	"github.com/fluxcd/fhdeploy/pkg/config"
	"github.com/fluxcd/fhdeploy/pkg/deploy"
	"github.com/fluxcd/fhdeploy/pkg/lock"
	"github.com/fluxcd/fhdeploy/pkg/nixos"
	"github.com/fluxcd/fhdeploy/pkg/notify"
	"github.com/fluxcd/fhdeploy/pkg/state"
)

// Notifier returns a notifier that logs every notification, and
// posts it to Discord and Slack if they're configured. Webhook URLs
// are read from files, since they are credentials. A channel that
// can't be reached is logged against its name.
func Notifier(c config.Config, logger log.Logger) (notify.Notifier, error) {
	logger = log.With(logger, "component", "notify")
	remote := func(channel string, n notify.Notifier) notify.Notifier {
		return notify.BestEffort{Notifier: n, Logger: log.With(logger, "channel", channel)}
	}
	notifiers := notify.Multi{notify.Logger{Logger: logger}}
	if c.DiscordWebhookFile != "" {
		url, err := readURL(c.DiscordWebhookFile)
		if err != nil {
			return nil, errors.Wrap(err, "reading Discord webhook URL")
		}
		notifiers = append(notifiers, remote("discord", notify.Discord{HookURL: url}))
	}
	if c.SlackWebhookFile != "" {
		url, err := readURL(c.SlackWebhookFile)
		if err != nil {
			return nil, errors.Wrap(err, "reading Slack webhook URL")
		}
		notifiers = append(notifiers, remote("slack", notify.Slack{HookURL: url, Username: c.SlackUsername}))
	}
	return notifiers, nil
}

func readURL(path string) (string, error) {
	bs, err := ioutil.ReadFile(path)
	if err != nil {
		return "", err
	}
	url := string(bytes.TrimSpace(bs))
	if url == "" {
		return "", errors.Errorf("%s is empty", path)
	}
	return url, nil
}

// Runner is everything needed to run guarded deployment cycles.
type Runner struct {
	Guard        *deploy.Guard
	Orchestrator *deploy.Orchestrator
	State        *state.FileStore
}

// NewRunner wires an orchestrator to fh, nixos-rebuild and the state
// file named in the configuration, guarded by the given in-process
// lock and a file lock beside the state file.
func NewRunner(c config.Config, inProcess lock.Locker, logger log.Logger) (*Runner, error) {
	notifier, err := Notifier(c, logger)
	if err != nil {
		return nil, err
	}
	store := state.NewFileStore(c.StateFile(), log.With(logger, "component", "state"))
	o := &deploy.Orchestrator{
		Target:     c.Target(),
		Resolver:   nixos.FlakeHub{Bin: c.FhBin},
		Applier:    nixos.FlakeHub{Bin: c.FhBin},
		Rollbacker: nixos.Rebuild{Bin: c.NixosRebuildBin},
		State:      store,
		Notifier:   notifier,
		Logger:     log.With(logger, "component", "deploy"),
	}
	locks := lock.All{lock.File{Path: c.LockFile()}}
	if inProcess != nil {
		locks = lock.All{inProcess, lock.File{Path: c.LockFile()}}
	}
	return &Runner{
		Guard: &deploy.Guard{
			Cycler: o,
			Lock:   locks,
			Logger: log.With(logger, "component", "deploy"),
		},
		Orchestrator: o,
		State:        store,
	}, nil
}
