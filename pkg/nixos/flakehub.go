package nixos

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/fluxcd/fhdeploy/pkg/deploy"
)

// FlakeHub resolves and applies FlakeHub references using the `fh`
// CLI. Bin may be a name to look up or an absolute path.
type FlakeHub struct {
	Bin string
}

func (f FlakeHub) bin() string {
	if f.Bin == "" {
		return "fh"
	}
	return f.Bin
}

// Resolve asks FlakeHub what the reference currently points at.
func (f FlakeHub) Resolve(ctx context.Context, ref string) (string, error) {
	out, err := execCmd(ctx, f.bin(), []string{"resolve", ref}, cmdConfig{})
	if err != nil {
		return "", err
	}
	resolved := strings.TrimSpace(out)
	if resolved == "" {
		return "", errors.Errorf("fh resolve %s produced no output", ref)
	}
	return resolved, nil
}

// Apply activates the named NixOS configuration from the reference.
func (f FlakeHub) Apply(ctx context.Context, ref, configuration string, op deploy.Operation) error {
	args := []string{
		"apply", "nixos", ref,
		"--configuration", configuration,
		"--operation", string(op),
	}
	_, err := execCmd(ctx, f.bin(), args, cmdConfig{})
	return err
}
