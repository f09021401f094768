package deploy

import (
	fhdeployerr "github.com/fluxcd/fhdeploy/pkg/errors"
)

func resolutionError(ref string, reason error) error {
	return &fhdeployerr.Error{
		Type: fhdeployerr.Resolution,
		Err:  reason,
		Help: `Unable to resolve the FlakeHub reference

    ` + ref + `

could not be resolved to a version. This is usually a network problem
or an expired FlakeHub token (check "fh status"); it will be retried on
the next trigger.
`,
	}
}

func applyError(version string, reason error) error {
	return &fhdeployerr.Error{
		Type: fhdeployerr.Apply,
		Err:  reason,
		Help: `Unable to apply ` + version + `

The configuration could not be activated. It has been recorded as
failed and will not be retried automatically; publish a new version,
or clear the record with "fhdeployctl reset" to try it again.
`,
	}
}

func rollbackError(reason error) error {
	return &fhdeployerr.Error{
		Type: fhdeployerr.Rollback,
		Err:  reason,
		Help: `Unable to roll back

After a failed deployment, reverting to the previous generation also
failed. The system may be in an inconsistent state and needs manual
intervention, e.g., "nixos-rebuild switch --rollback" or selecting an
earlier generation at boot.
`,
	}
}
