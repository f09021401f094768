package daemon

import (
	"context"
	"io"
	"io/ioutil"
	"net/http"

	"github.com/go-kit/kit/log"
	"github.com/google/go-github/v28/github"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/weaveworks/common/middleware"
	"golang.org/x/time/rate"

	"github.com/fluxcd/fhdeploy/pkg/daemon"
	transport "github.com/fluxcd/fhdeploy/pkg/http"
	fhmetrics "github.com/fluxcd/fhdeploy/pkg/metrics"
	"github.com/fluxcd/fhdeploy/pkg/webhook"
)

// MaxWebhookBody is the largest webhook payload accepted.
const MaxWebhookBody = 1 << 20

var (
	requestDuration = stdprometheus.NewHistogramVec(stdprometheus.HistogramOpts{
		Namespace: "fhdeploy",
		Name:      "request_duration_seconds",
		Help:      "Time (in seconds) spent serving HTTP requests.",
		Buckets:   stdprometheus.DefBuckets,
	}, []string{fhmetrics.LabelMethod, fhmetrics.LabelRoute, "status_code", "ws"})
)

func init() {
	stdprometheus.MustRegister(requestDuration)
}

// Server is what the HTTP API needs from the daemon.
type Server interface {
	Version(ctx context.Context) (string, error)
	Status(ctx context.Context) (daemon.Status, error)
	AskForDeploy(daemon.Trigger)
}

// WebhookConfig is how deployment webhooks are authenticated and
// filtered.
type WebhookConfig struct {
	Secret webhook.Secret
	// Nil to trigger on any authenticated request
	Gate *webhook.Gate
	// Nil for no limit
	Limiter *rate.Limiter
}

// An API server for the daemon
func NewRouter() *mux.Router {
	r := transport.NewAPIRouter()

	// Every request that doesn't match a route gets a helpful 404.
	r.NewRoute().Name(transport.NotFound).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		transport.WriteError(w, r, http.StatusNotFound, transport.MakeAPINotFound(r.URL.Path))
	})

	return r
}

func NewHandler(s Server, wh WebhookConfig, r *mux.Router, logger log.Logger) http.Handler {
	handle := HTTPServer{server: s, webhook: wh, logger: logger}

	r.Get(transport.Health).HandlerFunc(handle.Health)
	r.Get(transport.Webhook).HandlerFunc(handle.Webhook)
	r.Get(transport.Status).HandlerFunc(handle.Status)
	r.Get(transport.Version).HandlerFunc(handle.Version)
	r.Get(transport.Metrics).Handler(promhttp.Handler())

	return middleware.Instrument{
		RouteMatcher: r,
		Duration:     requestDuration,
	}.Wrap(r)
}

type HTTPServer struct {
	server  Server
	webhook WebhookConfig
	logger  log.Logger
}

type triggerResponse struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

func (s HTTPServer) Health(w http.ResponseWriter, r *http.Request) {
	transport.JSONResponse(w, r, map[string]string{"status": "ok"})
}

func (s HTTPServer) Version(w http.ResponseWriter, r *http.Request) {
	version, err := s.server.Version(r.Context())
	if err != nil {
		transport.ErrorResponse(w, r, err)
		return
	}
	transport.JSONResponse(w, r, version)
}

func (s HTTPServer) Status(w http.ResponseWriter, r *http.Request) {
	status, err := s.server.Status(r.Context())
	if err != nil {
		transport.ErrorResponse(w, r, err)
		return
	}
	transport.JSONResponse(w, r, status)
}

// Webhook authenticates a request, and if it passes (and passes the
// gate, if there is one), asks for a deployment cycle. It returns
// before the cycle runs; a cycle can take many minutes and senders
// time out long before that.
func (s HTTPServer) Webhook(w http.ResponseWriter, r *http.Request) {
	logger := log.With(s.logger, "delivery", github.DeliveryID(r), "remote", r.RemoteAddr)

	defer r.Body.Close()
	body, err := ioutil.ReadAll(io.LimitReader(r.Body, MaxWebhookBody+1))
	if err != nil {
		transport.WriteError(w, r, http.StatusBadRequest, errors.Wrap(err, "reading request body"))
		return
	}
	if len(body) > MaxWebhookBody {
		logger.Log("warning", "webhook body too large")
		transport.WriteError(w, r, http.StatusRequestEntityTooLarge, transport.ErrorBodyTooLarge)
		return
	}

	if err := webhook.VerifyWith(s.webhook.Secret, body, r.Header.Get(webhook.SignatureHeader)); err != nil {
		logger.Log("warning", "webhook rejected", "err", err)
		transport.ErrorResponse(w, r, err)
		return
	}

	// Only signed requests count against the limit, so unsigned ones
	// can't crowd out deliveries from GitHub.
	if s.webhook.Limiter != nil && !s.webhook.Limiter.Allow() {
		logger.Log("warning", "webhook rate limited")
		transport.WriteError(w, r, http.StatusTooManyRequests, transport.ErrorRateLimited)
		return
	}

	if s.webhook.Gate != nil {
		ok, reason, err := s.webhook.Gate.Admit(r, body)
		if err != nil {
			logger.Log("warning", "webhook payload invalid", "err", err)
			transport.WriteError(w, r, http.StatusBadRequest, err)
			return
		}
		if !ok {
			logger.Log("info", "webhook ignored", "reason", reason)
			transport.JSONResponse(w, r, triggerResponse{Status: "ignored", Reason: reason})
			return
		}
	}

	logger.Log("info", "webhook accepted; deployment requested")
	s.server.AskForDeploy(daemon.TriggerWebhook)
	transport.JSONResponseWithStatus(w, r, http.StatusAccepted, triggerResponse{Status: "triggered"})
}
