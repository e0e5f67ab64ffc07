package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
)

// Component states.
const (
	statusHealthy   = "healthy"
	statusDegraded  = "degraded"
	statusUnhealthy = "unhealthy"
)

func (s *Server) registerHealthRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "root",
		Method:      http.MethodGet,
		Path:        "/",
		Summary:     "API banner",
		Tags:        []string{"Health"},
	}, s.handleRoot)

	huma.Register(s.api, huma.Operation{
		OperationID: "healthCheck",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Description: "Returns server health status with component checks",
		Tags:        []string{"Health"},
	}, s.handleHealthCheck)
}

// RootOutput names the API and points at its docs.
type RootOutput struct {
	Body struct {
		App  string `json:"app" doc:"Application name"`
		Docs string `json:"docs" doc:"Interactive API documentation"`
	}
}

func (s *Server) handleRoot(_ context.Context, _ *struct{}) (*RootOutput, error) {
	out := &RootOutput{}
	out.Body.App = s.opts.AppName
	out.Body.Docs = "/docs"
	return out, nil
}

// ComponentHealth describes the health of a single component.
type ComponentHealth struct {
	Status  string `json:"status" doc:"Component status: healthy, degraded, or unhealthy"`
	Latency string `json:"latency,omitempty" doc:"Response time for this component"`
	Message string `json:"message,omitempty" doc:"Additional status information"`
}

// HealthResponse contains health check data in API responses.
type HealthResponse struct {
	Status     string                     `json:"status" doc:"Overall status: healthy, degraded, or unhealthy"`
	Components map[string]ComponentHealth `json:"components" doc:"Individual component statuses"`
}

// HealthOutput wraps the health response for Huma.
type HealthOutput struct {
	Body HealthResponse
}

func (s *Server) handleHealthCheck(ctx context.Context, _ *struct{}) (*HealthOutput, error) {
	components := map[string]ComponentHealth{
		"datastore": s.checkDatastore(ctx),
		"generator": configuredHealth(s.opts.GenerationConfigured, "text generation provider not configured"),
	}
	if s.services != nil && s.services.Voice != nil {
		components["voice"] = configuredHealth(s.services.Voice.Configured(), "ElevenLabs API key not set")
	}
	if s.services != nil && s.services.Subscription != nil {
		components["billing"] = configuredHealth(s.services.Subscription.Configured(), "Stripe not configured")
	}

	// Only the datastore can make the whole server unhealthy; a missing
	// provider disables one feature.
	overall := statusHealthy
	for name, c := range components {
		switch {
		case c.Status == statusUnhealthy && name == "datastore":
			overall = statusUnhealthy
		case c.Status != statusHealthy && overall == statusHealthy:
			overall = statusDegraded
		}
	}

	return &HealthOutput{
		Body: HealthResponse{
			Status:     overall,
			Components: components,
		},
	}, nil
}

// checkDatastore pings the store.
func (s *Server) checkDatastore(ctx context.Context) ComponentHealth {
	// Handle nil store (e.g., in tests)
	if s.store == nil {
		return ComponentHealth{
			Status:  statusDegraded,
			Message: "datastore not configured",
		}
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	start := time.Now()
	err := s.store.Ping(ctx)
	latency := time.Since(start)

	if err != nil {
		s.logger.ErrorContext(ctx, "datastore ping failed", "error", err)
		return ComponentHealth{
			Status:  statusUnhealthy,
			Latency: latency.String(),
			Message: "datastore unreachable",
		}
	}

	return ComponentHealth{
		Status:  statusHealthy,
		Latency: latency.String(),
	}
}

func configuredHealth(ok bool, message string) ComponentHealth {
	if ok {
		return ComponentHealth{Status: statusHealthy}
	}
	return ComponentHealth{Status: statusDegraded, Message: message}
}
