package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"path"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	fhdeployerr "github.com/fluxcd/fhdeploy/pkg/errors"
)

// NewAPIRouter returns a router with all the routes of the daemon's
// HTTP API named, but no handlers attached. Clients use it to
// construct URLs; the daemon attaches handlers.
func NewAPIRouter() *mux.Router {
	r := mux.NewRouter()

	r.NewRoute().Name(Health).Methods("GET").Path("/health")
	r.NewRoute().Name(Webhook).Methods("POST").Path("/hooks/deploy")
	r.NewRoute().Name(Status).Methods("GET").Path("/v1/status")
	r.NewRoute().Name(Version).Methods("GET").Path("/v1/version")
	r.NewRoute().Name(Metrics).Methods("GET").Path("/metrics")

	return r
}

// MakeURL builds the URL for the named route, relative to endpoint,
// with urlParams given as key, value pairs for the query string.
func MakeURL(endpoint string, router *mux.Router, routeName string, urlParams ...string) (*url.URL, error) {
	if len(urlParams)%2 != 0 {
		return nil, errors.New("query parameters must come in key, value pairs")
	}

	endpointURL, err := url.Parse(endpoint)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing endpoint %s", endpoint)
	}
	route := router.Get(routeName)
	if route == nil {
		return nil, errors.New("no route with name " + routeName)
	}
	routeURL, err := route.URLPath()
	if err != nil {
		return nil, errors.Wrapf(err, "retrieving route path %s", routeName)
	}

	query := url.Values{}
	for i := 0; i+1 < len(urlParams); i += 2 {
		query.Add(urlParams[i], urlParams[i+1])
	}
	endpointURL.Path = path.Join(endpointURL.Path, routeURL.Path)
	endpointURL.RawQuery = query.Encode()
	return endpointURL, nil
}

// WriteError responds with err and the given status code.
func WriteError(w http.ResponseWriter, r *http.Request, code int, err error) {
	// Clients that can decode JSON errors ask for them by name;
	// anything else (curl, GitHub's delivery log) gets the help text.
	if len(r.Header.Get("Accept")) > 0 {
		switch negotiateContentType(r, "text/plain", "application/json") {
		case "application/json":
			body, encodeErr := json.Marshal(err)
			if encodeErr != nil {
				writeText(w, http.StatusInternalServerError, fmt.Sprintf("Error encoding error response: %s\n\nOriginal error: %s", encodeErr, err))
				return
			}
			writeBody(w, code, "application/json; charset=utf-8", body)
			return
		case "text/plain":
			if fhErr, ok := err.(*fhdeployerr.Error); ok && fhErr.Help != "" {
				writeText(w, code, fhErr.Help)
				return
			}
		}
	}
	writeText(w, code, err.Error())
}

func writeText(w http.ResponseWriter, code int, text string) {
	writeBody(w, code, "text/plain; charset=utf-8", []byte(text))
}

func writeBody(w http.ResponseWriter, code int, contentType string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(code)
	w.Write(body)
}

// JSONResponse writes result as JSON with status 200.
func JSONResponse(w http.ResponseWriter, r *http.Request, result interface{}) {
	JSONResponseWithStatus(w, r, http.StatusOK, result)
}

func JSONResponseWithStatus(w http.ResponseWriter, r *http.Request, code int, result interface{}) {
	body, err := json.Marshal(result)
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}
	writeBody(w, code, "application/json; charset=utf-8", body)
}

// ErrorResponse chooses a status code for apiError by its type, and
// writes it.
func ErrorResponse(w http.ResponseWriter, r *http.Request, apiError error) {
	outErr, ok := errors.Cause(apiError).(*fhdeployerr.Error)
	if !ok {
		outErr = fhdeployerr.CoverAllError(apiError)
	}
	var code int
	switch outErr.Type {
	case fhdeployerr.Authentication:
		code = http.StatusUnauthorized
	case fhdeployerr.User:
		code = http.StatusUnprocessableEntity
	case fhdeployerr.StateStore:
		code = http.StatusServiceUnavailable
	default:
		code = http.StatusInternalServerError
	}
	WriteError(w, r, code, outErr)
}
