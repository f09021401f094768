// Package webhook authenticates deployment triggers. A trigger is
// trusted only if it carries an HMAC-SHA256 signature of its body,
// made with the shared secret, in the GitHub header convention.
package webhook

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io/ioutil"
	"strings"

	pkgerrors "github.com/pkg/errors"

	fhdeployerr "github.com/fluxcd/fhdeploy/pkg/errors"
)

const (
	SignatureHeader = "X-Hub-Signature-256"
	signaturePrefix = "sha256="
)

// Secret supplies the shared secret for each request. It's consulted
// every time, so an implementation may pick up a rotated secret
// without a restart.
type Secret interface {
	Load() ([]byte, error)
}

// FileSecret reads the secret from a file, trimming surrounding
// whitespace (files written by hand usually end with a newline).
type FileSecret string

func (f FileSecret) Load() ([]byte, error) {
	bs, err := ioutil.ReadFile(string(f))
	if err != nil {
		return nil, pkgerrors.Wrap(err, "reading webhook secret")
	}
	return bytes.TrimSpace(bs), nil
}

// StaticSecret is a secret held in memory, for tests and for signing.
type StaticSecret []byte

func (s StaticSecret) Load() ([]byte, error) {
	return []byte(s), nil
}

// Sign returns the signature header value for body.
func Sign(body, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// Verify checks that signature is a valid signature of body under
// secret. A nil return means the request is authentic; anything else
// is an Authentication error, and the request must not trigger a
// cycle.
func Verify(body []byte, signature string, secret []byte) error {
	if len(secret) == 0 {
		return authError(errors.New("no webhook secret configured"))
	}
	if signature == "" {
		return authError(errors.New("missing " + SignatureHeader + " header"))
	}
	if !strings.HasPrefix(signature, signaturePrefix) {
		return authError(errors.New("signature is not of the form sha256=<hex>"))
	}
	got, err := hex.DecodeString(strings.TrimPrefix(signature, signaturePrefix))
	if err != nil {
		return authError(errors.New("signature is not valid hex"))
	}
	if len(got) != sha256.Size {
		return authError(errors.New("signature has the wrong length"))
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	if !hmac.Equal(got, mac.Sum(nil)) {
		return authError(errors.New("signature mismatch"))
	}
	return nil
}

// VerifyWith loads the secret, then verifies. Failing to load the
// secret fails the verification.
func VerifyWith(s Secret, body []byte, signature string) error {
	secret, err := s.Load()
	if err != nil {
		return authError(err)
	}
	return Verify(body, signature, secret)
}

func authError(err error) error {
	return &fhdeployerr.Error{
		Type: fhdeployerr.Authentication,
		Err:  err,
		Help: `The request failed authentication

Deployment webhooks must be signed with the shared secret, using
HMAC-SHA256 over the request body, in the header

    ` + SignatureHeader + `: sha256=<hex digest>

Check that the sender and this host are configured with the same
secret. "fhdeployctl sign" will compute a signature for a given body.
`,
	}
}
