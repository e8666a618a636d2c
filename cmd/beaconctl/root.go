package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// errRejected signals that output was written and at least one message was
// invalid.
var errRejected = errors.New("rejected")

type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

type globalOptions struct {
	configPath string
	stdout     io.Writer
	stderr     io.Writer
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	opts := &globalOptions{stdout: stdout, stderr: stderr}
	root := &cobra.Command{
		Use:           "beaconctl",
		Short:         "Validate Beacon allele-query messages and manage the beacon catalog",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error { return usageError{err} })
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file path (defaults plus BEACON_* environment when empty)")

	root.AddCommand(
		newValidateCmd(opts),
		newSchemaCmd(opts),
		newComposeCmd(opts),
		newCheckCmd(opts),
		newCatalogCmd(opts),
	)
	return root
}

func cli(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errRejected):
		return 1
	}
	var usage usageError
	if errors.As(err, &usage) {
		fmt.Fprintf(stderr, "usage error: %v\n", err)
		return 2
	}
	fmt.Fprintf(stderr, "beaconctl: %v\n", err)
	return 1
}
