package httphandler

import (
	"net/http"

	"github.com/stellar/go-stellar-sdk/support/render/httpjson"
)

// Status indicates whether the service is healthy or not.
type Status string

const (
	StatusPass Status = "pass"
	StatusFail Status = "fail"
)

// HealthResponse follows the health check response format for HTTP APIs,
// based on the draft IETF standard Health Check Response Format for HTTP
// APIs.
//
// https://datatracker.ietf.org/doc/html/draft-inadarei-api-health-check-06#name-api-health-response
type HealthResponse struct {
	Status    Status `json:"status"`
	Version   string `json:"version,omitempty"`
	ServiceID string `json:"service_id,omitempty"`
	ReleaseID string `json:"release_id,omitempty"`
}

// HealthHandler implements a simple handler that returns the health response.
type HealthHandler struct {
	Version   string
	ServiceID string
	ReleaseID string
}

func (h HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	httpjson.Render(w, HealthResponse{
		Status:    StatusPass,
		Version:   h.Version,
		ServiceID: h.ServiceID,
		ReleaseID: h.ReleaseID,
	}, httpjson.JSON)
}
