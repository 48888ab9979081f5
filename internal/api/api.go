package api

import (
	"errors"
	"github.com/skybi/grade-proxy/internal/acquire"
	"github.com/skybi/grade-proxy/internal/api/proxy"
	"github.com/skybi/grade-proxy/internal/config"
	"net/http"
)

// Service represents the grade proxy API service
type Service struct {
	Config   *config.Config
	Acquirer acquire.Acquirer
	proxy    *proxy.Service
}

// Startup starts up the proxy API in the background.
// Errors other than the server being closed are sent to errs.
func (service *Service) Startup(errs chan<- error) {
	proxyService := &proxy.Service{
		Config:   service.Config,
		Acquirer: service.Acquirer,
	}
	service.proxy = proxyService
	go func() {
		if err := proxyService.Startup(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
	}()
}

// Shutdown shuts down the proxy API
func (service *Service) Shutdown() {
	if service.proxy != nil {
		service.proxy.Shutdown()
		service.proxy = nil
	}
}
