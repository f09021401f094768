package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/go-kit/kit/log"
	"github.com/spf13/pflag"
	"golang.org/x/time/rate"

	"github.com/fluxcd/fhdeploy/internal/setup"
	"github.com/fluxcd/fhdeploy/pkg/config"
	"github.com/fluxcd/fhdeploy/pkg/daemon"
	daemonhttp "github.com/fluxcd/fhdeploy/pkg/http/daemon"
	"github.com/fluxcd/fhdeploy/pkg/lock"
	"github.com/fluxcd/fhdeploy/pkg/nixos"
	"github.com/fluxcd/fhdeploy/pkg/webhook"
)

var version = "unversioned"

func main() {
	// Flag domain.
	fs := pflag.NewFlagSet("default", pflag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "DESCRIPTION\n")
		fmt.Fprintf(os.Stderr, "  fhdeployd deploys NixOS configurations from FlakeHub when told to, or when it notices a new version.\n")
		fmt.Fprintf(os.Stderr, "\n")
		fmt.Fprintf(os.Stderr, "FLAGS\n")
		fs.PrintDefaults()
	}

	var (
		versionFlag = fs.Bool("version", false, "print version and exit")
		configFile  = fs.String("config-file", "", "path to a YAML config file; flags given on the command line take precedence over its settings")
	)
	flags := defineConfigFlags(fs)
	fs.Parse(os.Args[1:])

	if *versionFlag {
		fmt.Println(version)
		os.Exit(0)
	}

	var cfg config.Config
	if *configFile != "" {
		fromFile, err := config.Load(*configFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %s\n", err)
			os.Exit(1)
		}
		cfg = fromFile
	}
	flags.apply(&cfg)
	cfg, err := cfg.WithDefaults()
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err)
		os.Exit(1)
	}

	// Logger component.
	var logger log.Logger
	{
		switch cfg.LogFormat {
		case "json":
			logger = log.NewJSONLogger(log.NewSyncWriter(os.Stderr))
		default:
			logger = log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
		}
		logger = log.With(logger, "ts", log.DefaultTimestampUTC)
		logger = log.With(logger, "caller", log.DefaultCaller)
	}
	logger.Log("version", version, "target", cfg.Target().String(), "operation", cfg.Operation, "rollback", cfg.Rollback())

	// Check the tools are there now, rather than finding out at the
	// first deployment.
	for _, bin := range []string{binOrDefault(cfg.FhBin, "fh"), binOrDefault(cfg.NixosRebuildBin, "nixos-rebuild")} {
		if path, err := nixos.FindBinary(bin); err != nil {
			logger.Log("warning", "binary not found; deployments will fail until it is installed", "err", err)
		} else {
			logger.Log("binary", path)
		}
	}

	// Deployment component.
	var d *daemon.Daemon
	{
		runner, err := setup.NewRunner(cfg, lock.NewChan(), logger)
		if err != nil {
			logger.Log("err", err)
			os.Exit(1)
		}
		d = &daemon.Daemon{
			V:      version,
			Target: cfg.Target(),
			Runner: runner.Guard,
			State:  runner.State,
			Logger: log.With(logger, "component", "daemon"),
			LoopVars: &daemon.LoopVars{
				PollInterval: cfg.PollInterval,
			},
		}
		logger.Log("state", runner.State.String())
	}

	// Webhook component.
	var wh daemonhttp.WebhookConfig
	{
		logger := log.With(logger, "component", "webhook")
		if cfg.WebhookSecretFile == "" {
			logger.Log("warning", "no --webhook-secret-file given; all webhook requests will be refused")
		}
		wh = daemonhttp.WebhookConfig{
			Secret:  webhook.FileSecret(cfg.WebhookSecretFile),
			Limiter: rate.NewLimiter(rate.Limit(cfg.WebhookRPS), cfg.WebhookBurst),
		}
		if cfg.Gate() {
			wh.Gate = &webhook.Gate{JobPatterns: cfg.JobPatterns()}
			logger.Log("gate", "workflow_job", "patterns", fmt.Sprint(cfg.JobPatterns()))
		}
	}

	// Mechanical components.

	// When we can receive from this channel, it indicates that we
	// are ready to shut down.
	errc := make(chan error)
	// This signals other routines to shut down;
	shutdown := make(chan struct{})
	// .. and this is to wait for other routines to shut down cleanly.
	shutdownWg := &sync.WaitGroup{}

	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		errc <- fmt.Errorf("%s", <-c)
	}()

	shutdownWg.Add(1)
	go d.Loop(shutdown, shutdownWg, log.With(logger, "component", "loop"))

	// HTTP transport component.
	go func() {
		logger := log.With(logger, "component", "http")
		logger.Log("addr", cfg.Listen)
		router := daemonhttp.NewRouter()
		handler := daemonhttp.NewHandler(d, wh, router, logger)
		errc <- http.ListenAndServe(cfg.Listen, handler)
	}()

	// Fall off the end, into the waiting procedure.
	shutdownErr := <-errc
	logger.Log("exiting", shutdownErr)

	// Wait for the deployment loop to finish. A cycle in progress is
	// let run to completion; killing `fh apply` halfway is worse than
	// waiting.
	close(shutdown)
	shutdownWg.Wait()
}

func binOrDefault(bin, def string) string {
	if bin == "" {
		return def
	}
	return bin
}
