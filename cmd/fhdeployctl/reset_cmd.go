package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fluxcd/fhdeploy/pkg/lock"
	"github.com/fluxcd/fhdeploy/pkg/state"
)

type resetOpts struct {
	*rootOpts
}

func newReset(parent *rootOpts) *resetOpts {
	return &resetOpts{rootOpts: parent}
}

func (opts *resetOpts) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Forget the deployment record, so the current version will be tried again",
		Long: `Remove the deployment record. The next cycle will apply whatever
version the reference resolves to, even if it previously failed.`,
		RunE: opts.RunE,
	}
	return cmd
}

func (opts *resetOpts) RunE(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		return errorWantedNoArgs
	}
	c, err := opts.localConfig(cmd.Flags().Changed("config-file"))
	if err != nil {
		return err
	}

	// Don't pull the record out from under a cycle in progress.
	release, ok, err := lock.File{Path: c.LockFile()}.TryLock()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("a deployment cycle is in progress; try again when it has finished")
	}
	defer release()

	store := state.NewFileStore(c.StateFile(), nil)
	previous := store.Read(context.Background())
	if err := store.Reset(); err != nil {
		return err
	}
	if previous.LastAttemptedVersion == "" {
		fmt.Fprintf(cmd.OutOrStdout(), "No deployment record at %s\n", store.Path())
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed record of %s (%s) from %s\n", previous.LastAttemptedVersion, previous.Outcome, store.Path())
	return nil
}
