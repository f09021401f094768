package deploy

import (
	"context"
	"fmt"
)

// Operation says how an applied configuration is activated.
type Operation string

const (
	// OperationSwitch activates the configuration immediately.
	OperationSwitch Operation = "switch"
	// OperationBoot activates the configuration on next restart.
	OperationBoot Operation = "boot"
)

func ParseOperation(s string) (Operation, error) {
	switch Operation(s) {
	case OperationSwitch:
		return OperationSwitch, nil
	case OperationBoot:
		return OperationBoot, nil
	default:
		return "", fmt.Errorf("%q is not a valid operation (one of {%s,%s})", s, OperationSwitch, OperationBoot)
	}
}

// Target is what to deploy, and how. It comes from operator
// configuration and is fixed for the life of an Orchestrator.
type Target struct {
	// Reference is the FlakeHub reference to resolve, e.g.,
	// "myorg/infra/0.1.*".
	Reference string
	// Configuration is the name of the NixOS configuration within
	// the flake.
	Configuration string
	Operation     Operation
	// RollbackEnabled says whether to revert to the previous
	// generation when applying fails.
	RollbackEnabled bool
	// Hostname is used in notifications.
	Hostname string
}

func (t Target) String() string {
	return t.Reference + "#nixosConfigurations." + t.Configuration
}

type Resolver interface {
	Resolve(ctx context.Context, ref string) (version string, err error)
}

type Applier interface {
	Apply(ctx context.Context, ref, configuration string, op Operation) error
}

type Rollbacker interface {
	Rollback(ctx context.Context) error
}
