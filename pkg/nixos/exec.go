// Package nixos runs the tools that resolve, apply and roll back
// NixOS configurations: `fh` (the FlakeHub CLI) and `nixos-rebuild`.
package nixos

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// Places to look for binaries when they're not on PATH, which is
// usual when running under a minimal service environment.
var fallbackBinDirs = []string{
	"/run/current-system/sw/bin",
	"/nix/var/nix/profiles/default/bin",
}

// Env vars that are allowed to be inherited from the OS
var allowedEnvVars = []string{
	"PATH", "HOME", "NIX_PATH", "NIX_SSL_CERT_FILE", "SSL_CERT_FILE",
	"http_proxy", "https_proxy", "no_proxy", "HTTPS_PROXY", "NO_PROXY",
	// fh keeps its FlakeHub token under the XDG dirs
	"XDG_CONFIG_HOME", "XDG_CACHE_HOME",
}

// FindBinary resolves a binary by name, checking PATH first and then
// the NixOS system profile and the Determinate Nix profile.
func FindBinary(name string) (string, error) {
	if strings.ContainsRune(name, os.PathSeparator) {
		return name, nil
	}
	if path, err := exec.LookPath(name); err == nil {
		return path, nil
	}
	for _, dir := range fallbackBinDirs {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%s not found on PATH or in %s", name, strings.Join(fallbackBinDirs, ", "))
}

type cmdConfig struct {
	env []string
}

// execCmd runs the named binary, returning its stdout. If it fails,
// the error carries the most informative line of stderr.
func execCmd(ctx context.Context, name string, args []string, config cmdConfig) (string, error) {
	bin, err := FindBinary(name)
	if err != nil {
		return "", err
	}
	c := exec.CommandContext(ctx, bin, args...)
	c.Env = append(env(), config.env...)
	stdout := &bytes.Buffer{}
	stderr := &threadSafeBuffer{}
	c.Stdout = stdout
	c.Stderr = stderr

	err = c.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return "", errors.Wrap(ctx.Err(), fmt.Sprintf("running %s %v", name, args))
	} else if ctx.Err() == context.Canceled {
		return "", errors.Wrap(ctx.Err(), fmt.Sprintf("context was cancelled when running %s %v", name, args))
	}
	if err != nil {
		if output := strings.TrimSpace(stderr.String()); output != "" {
			if msg := findErrorMessage(stderr.String()); msg != "" {
				return "", fmt.Errorf("%s %s: %s, full output:\n %s", name, args[0], msg, output)
			}
			return "", fmt.Errorf("%s %s: %s", name, args[0], output)
		}
		return "", errors.Wrapf(err, "%s %s", name, args[0])
	}
	return stdout.String(), nil
}

func env() []string {
	var env []string
	for _, k := range allowedEnvVars {
		if v, ok := os.LookupEnv(k); ok {
			env = append(env, k+"="+v)
		}
	}
	return env
}

func findErrorMessage(output string) string {
	sc := bufio.NewScanner(strings.NewReader(output))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case strings.HasPrefix(line, "error:"):
			return strings.TrimSpace(strings.TrimPrefix(line, "error:"))
		case strings.HasPrefix(line, "Error:"):
			return strings.TrimSpace(strings.TrimPrefix(line, "Error:"))
		}
	}
	return ""
}

type threadSafeBuffer struct {
	buf bytes.Buffer
	mu  sync.Mutex
}

func (b *threadSafeBuffer) Write(p []byte) (n int, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *threadSafeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
