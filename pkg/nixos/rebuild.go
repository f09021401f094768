package nixos

import (
	"context"
)

// Rebuild rolls back to the previous system generation with
// `nixos-rebuild`.
type Rebuild struct {
	Bin string
}

func (r Rebuild) Rollback(ctx context.Context) error {
	bin := r.Bin
	if bin == "" {
		bin = "nixos-rebuild"
	}
	_, err := execCmd(ctx, bin, []string{"switch", "--rollback"}, cmdConfig{})
	return err
}
