package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxcd/fhdeploy/pkg/daemon"
	fhdeployerr "github.com/fluxcd/fhdeploy/pkg/errors"
	transport "github.com/fluxcd/fhdeploy/pkg/http"
	httpdaemon "github.com/fluxcd/fhdeploy/pkg/http/daemon"
	"github.com/fluxcd/fhdeploy/pkg/http/httperror"
	"github.com/fluxcd/fhdeploy/pkg/state"
	"github.com/fluxcd/fhdeploy/pkg/webhook"
)

type stubServer struct {
	asked int
}

func (s *stubServer) Version(context.Context) (string, error) { return "0.1.0", nil }

func (s *stubServer) Status(context.Context) (daemon.Status, error) {
	return daemon.Status{
		Version: "0.1.0",
		Record:  state.Empty().Success("v1", time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC)),
	}, nil
}

func (s *stubServer) AskForDeploy(daemon.Trigger) { s.asked++ }

func setup(t *testing.T) (*Client, *stubServer, func()) {
	s := &stubServer{}
	h := httpdaemon.NewHandler(s, httpdaemon.WebhookConfig{Secret: webhook.StaticSecret("hush")}, httpdaemon.NewRouter(), log.NewNopLogger())
	srv := httptest.NewServer(h)
	return New(http.DefaultClient, transport.NewAPIRouter(), srv.URL), s, srv.Close
}

func TestClientStatus(t *testing.T) {
	c, _, cleanup := setup(t)
	defer cleanup()

	v, err := c.Version(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "0.1.0", v)

	s, err := c.Status(context.Background())
	require.NoError(t, err)
	assert.True(t, s.Record.Succeeded("v1"))
}

func TestClientTrigger(t *testing.T) {
	c, s, cleanup := setup(t)
	defer cleanup()

	res, err := c.Trigger(context.Background(), []byte(`{}`), []byte("hush"), nil)
	require.NoError(t, err)
	assert.Equal(t, "triggered", res.Status)
	assert.Equal(t, 1, s.asked)

	_, err = c.Trigger(context.Background(), []byte(`{}`), []byte("wrong"), nil)
	assert.True(t, fhdeployerr.Is(err, fhdeployerr.Authentication))
	assert.Equal(t, 1, s.asked)
}

func TestClientSomethingInTheWay(t *testing.T) {
	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream connect error", http.StatusBadGateway)
	}))
	defer proxy.Close()

	c := New(http.DefaultClient, transport.NewAPIRouter(), proxy.URL)
	_, err := c.Status(context.Background())
	apiErr, ok := errors.Cause(err).(*httperror.APIError)
	require.True(t, ok, "expected an APIError, got %v", err)
	assert.True(t, apiErr.IsUnavailable())
	assert.Equal(t, "upstream connect error", apiErr.Body)
}
