package main

import (
	"net/url"

	"github.com/pkg/errors"

	fhdeployerr "github.com/fluxcd/fhdeploy/pkg/errors"
	"github.com/fluxcd/fhdeploy/pkg/http/httperror"
)

var errRecentlyTriggered = errors.New("a deployment cycle was requested recently; it will deploy the latest version, so there's no need to ask again")

// explainAPIError adds what to do next to errors from talking to
// fhdeployd, where there's something useful to say.
func (opts *rootOpts) explainAPIError(err error) error {
	switch cause := errors.Cause(err).(type) {
	case *url.Error:
		return errors.Wrapf(err, "fhdeployd is not reachable at %s; use `fhdeployctl status --local` to read the state file on this host", opts.URL)
	case *httperror.APIError:
		switch {
		case cause.IsUnavailable():
			return errors.Wrapf(err, "fhdeployd is not reachable at %s; use `fhdeployctl status --local` to read the state file on this host", opts.URL)
		case cause.IsMissing():
			return errors.Wrap(err, "fhdeployd does not know this request; fhdeployctl and fhdeployd may be different versions")
		case cause.IsRateLimited():
			return errRecentlyTriggered
		}
	}
	if fhdeployerr.Is(err, fhdeployerr.Authentication) {
		return errors.Wrap(err, "fhdeployd rejected the signature; check that --secret-file holds the daemon's webhook secret")
	}
	return err
}
