package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io/ioutil"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/fluxcd/fhdeploy/pkg/daemon"
	fhdeployerr "github.com/fluxcd/fhdeploy/pkg/errors"
	transport "github.com/fluxcd/fhdeploy/pkg/http"
	"github.com/fluxcd/fhdeploy/pkg/http/httperror"
	"github.com/fluxcd/fhdeploy/pkg/webhook"
)

// Client talks to a running fhdeployd.
type Client struct {
	client   *http.Client
	router   *mux.Router
	endpoint string
}

func New(c *http.Client, router *mux.Router, endpoint string) *Client {
	return &Client{
		client:   c,
		router:   router,
		endpoint: endpoint,
	}
}

func (c *Client) Version(ctx context.Context) (string, error) {
	var v string
	err := c.Get(ctx, &v, transport.Version)
	return v, err
}

func (c *Client) Status(ctx context.Context) (daemon.Status, error) {
	var res daemon.Status
	err := c.Get(ctx, &res, transport.Status)
	return res, err
}

// TriggerResult is the daemon's answer to a webhook.
type TriggerResult struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// Trigger sends body to the webhook endpoint, signed with secret,
// along with any extra headers (e.g., X-GitHub-Event).
func (c *Client) Trigger(ctx context.Context, body, secret []byte, headers http.Header) (TriggerResult, error) {
	var res TriggerResult
	u, err := transport.MakeURL(c.endpoint, c.router, transport.Webhook)
	if err != nil {
		return res, errors.Wrap(err, "constructing URL")
	}
	req, err := http.NewRequest("POST", u.String(), bytes.NewReader(body))
	if err != nil {
		return res, errors.Wrapf(err, "constructing request %s", u)
	}
	req = req.WithContext(ctx)
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(webhook.SignatureHeader, webhook.Sign(body, secret))
	req.Header.Set("Accept", "application/json")

	resp, err := c.executeRequest(req)
	if err != nil {
		return res, err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return res, errors.Wrap(err, "decoding response from server")
	}
	return res, nil
}

// Get executes a get request against the daemon. It unmarshals the
// response into dest, if not nil.
func (c *Client) Get(ctx context.Context, dest interface{}, route string, queryParams ...string) error {
	u, err := transport.MakeURL(c.endpoint, c.router, route, queryParams...)
	if err != nil {
		return errors.Wrap(err, "constructing URL")
	}
	req, err := http.NewRequest("GET", u.String(), nil)
	if err != nil {
		return errors.Wrapf(err, "constructing request %s", u)
	}
	req = req.WithContext(ctx)
	req.Header.Set("Accept", "application/json")

	resp, err := c.executeRequest(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if dest != nil {
		if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
			return errors.Wrap(err, "decoding response from server")
		}
	}
	return nil
}

func (c *Client) executeRequest(req *http.Request) (*http.Response, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "executing HTTP request")
	}
	switch resp.StatusCode {
	case http.StatusOK, http.StatusAccepted:
		return resp, nil
	case http.StatusUnauthorized:
		resp.Body.Close()
		return nil, transport.ErrorUnauthorized
	case http.StatusTooManyRequests:
		// Whoever said it, the remedy is the same: wait.
		resp.Body.Close()
		return nil, &httperror.APIError{StatusCode: resp.StatusCode, Status: resp.Status}
	default:
		defer resp.Body.Close()
		body, err := ioutil.ReadAll(resp.Body)
		if err != nil {
			return nil, errors.Wrap(err, "reading response body of error")
		}
		// Use the content type to discriminate between our own
		// errors and anything else that might be in the way (a
		// proxy, say)
		if strings.HasPrefix(resp.Header.Get(http.CanonicalHeaderKey("Content-Type")), "application/json") {
			var niceError fhdeployerr.Error
			if err := json.Unmarshal(body, &niceError); err != nil {
				return nil, errors.Wrap(err, "decoding response body of error")
			}
			// just in case it's JSON but not one of our own errors
			if niceError.Err != nil {
				return nil, &niceError
			}
		}
		return nil, &httperror.APIError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       strings.TrimSpace(string(body)),
		}
	}
}
