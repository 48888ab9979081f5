package proxy

import (
	"context"
	"errors"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
	"github.com/skybi/grade-proxy/internal/api/schema"
	"github.com/skybi/grade-proxy/internal/credentials"
	"github.com/skybi/grade-proxy/internal/gid"
	"github.com/skybi/grade-proxy/internal/session"
	"net/http"
	"time"
)

const (
	endpointGID    = "med-gid"
	endpointScores = "med-scores"
)

type credentialPayload struct {
	Username string `json:"username"`
	Password string `json:"password"`
	GID      string `json:"gid"`
}

// EndpointFetchGID handles the 'POST /med-gid' endpoint
func (service *Service) EndpointFetchGID(writer http.ResponseWriter, request *http.Request) {
	started := time.Now()

	payload, ok := service.decodePayload(writer, request, endpointGID, started)
	if !ok {
		return
	}
	creds, err := credentials.New(payload.Username, payload.Password)
	if err != nil {
		service.reject(writer, endpointGID, err, started)
		return
	}

	release, err := service.acquireBrowser(request.Context())
	if err != nil {
		service.fail(writer, request, endpointGID, messageGIDFailed, err, started)
		return
	}
	defer release()

	token, err := service.Acquirer.Acquire(request.Context(), creds)
	if err != nil {
		service.fail(writer, request, endpointGID, messageGIDFailed, err, started)
		return
	}

	service.metrics.observe(endpointGID, outcomeSuccess, started)
	service.writer.WriteSuccess(writer, token, nil)
}

// EndpointFetchScores handles the 'POST /med-scores' endpoint
func (service *Service) EndpointFetchScores(writer http.ResponseWriter, request *http.Request) {
	started := time.Now()

	payload, ok := service.decodePayload(writer, request, endpointScores, started)
	if !ok {
		return
	}

	// The gid is checked before anything touches the upstream services
	token, err := gid.Validate(payload.GID)
	if err != nil {
		service.reject(writer, endpointScores, err, started)
		return
	}
	creds, err := credentials.New(payload.Username, payload.Password)
	if err != nil {
		service.reject(writer, endpointScores, err, started)
		return
	}

	data, err := session.Fetch(request.Context(), creds, token, service.sessionOptions)
	if err != nil {
		service.fail(writer, request, endpointScores, messageScoresFailed, err, started)
		return
	}

	service.metrics.observe(endpointScores, outcomeSuccess, started)
	service.writer.WriteSuccess(writer, "", data)
}

// EndpointHealth handles the 'GET /healthz' endpoint
func (service *Service) EndpointHealth(writer http.ResponseWriter, _ *http.Request) {
	service.writer.WriteJSON(writer, map[string]string{
		"status": "ok",
	})
}

func (service *Service) decodePayload(writer http.ResponseWriter, request *http.Request, endpoint string, started time.Time) (*credentialPayload, bool) {
	payload, err := schema.UnmarshalBody[credentialPayload](writer, request)
	if err == nil {
		return payload, true
	}

	var bodyErr *schema.BodyError
	if errors.As(err, &bodyErr) {
		service.metrics.observe(endpoint, outcomeRejected, started)
		service.writer.WriteFailure(writer, http.StatusBadRequest, messageInvalidBody)
		return nil, false
	}
	service.fail(writer, request, endpoint, messageInvalidBody, err, started)
	return nil, false
}

// acquireBrowser waits for a free browser slot and returns the function releasing it
func (service *Service) acquireBrowser(ctx context.Context) (func(), error) {
	if err := service.browsers.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	service.metrics.browsersInUse.Inc()
	return func() {
		service.metrics.browsersInUse.Dec()
		service.browsers.Release(1)
	}, nil
}

// reject answers a request whose input was refused before any upstream service was contacted
func (service *Service) reject(writer http.ResponseWriter, endpoint string, err error, started time.Time) {
	service.metrics.observe(endpoint, outcomeRejected, started)
	service.writer.WriteFailure(writer, http.StatusOK, failureMessage(err, ""))
}

// fail answers a request that failed while talking to the upstream services
func (service *Service) fail(writer http.ResponseWriter, request *http.Request, endpoint, fallback string, err error, started time.Time) {
	log.Warn().
		Err(err).
		Str("request_id", middleware.GetReqID(request.Context())).
		Str("endpoint", endpoint).
		Msg("could not serve a proxy request")
	service.metrics.observe(endpoint, outcomeFailure, started)
	service.writer.WriteFailure(writer, http.StatusOK, failureMessage(err, fallback))
}
