package http

import (
	"errors"

	fhdeployerr "github.com/fluxcd/fhdeploy/pkg/errors"
)

var ErrorUnauthorized = &fhdeployerr.Error{
	Type: fhdeployerr.Authentication,
	Help: `The request failed authentication

The daemon rejected the signature on the request. Make sure the
sender signs requests with the same secret the daemon reads from
--webhook-secret-file.
`,
	Err: errors.New("request failed authentication"),
}

var ErrorRateLimited = &fhdeployerr.Error{
	Type: fhdeployerr.User,
	Help: `Too many requests

The daemon accepts only a few webhook deliveries per second. A cycle
has already been requested; there is no need to retry.
`,
	Err: errors.New("rate limit exceeded"),
}

var ErrorBodyTooLarge = &fhdeployerr.Error{
	Type: fhdeployerr.User,
	Help: `Request body too large

Webhook payloads are limited to 1 MiB.
`,
	Err: errors.New("request body too large"),
}

func MakeAPINotFound(path string) *fhdeployerr.Error {
	return &fhdeployerr.Error{
		Type: fhdeployerr.User,
		Help: `The API endpoint requested is not supported by this server.

The daemon serves

    GET  /health
    POST /hooks/deploy
    GET  /v1/status
    GET  /v1/version
    GET  /metrics

and the path requested was

    ` + path + `
`,
		Err: errors.New("API endpoint not found"),
	}
}
