package store

import "time"

// Service is a probed API root, keyed by a human-derived name
// (_derive_service_name) unique across the store.
type Service struct {
	ID            uint64         `json:"id"`
	Name          string         `json:"name"`
	BaseURL       string         `json:"base_url"`
	Description   string         `json:"description"`
	DiscoveredAt  time.Time      `json:"discovered_at"`
	LastProbed    time.Time      `json:"last_probed"`
	ServerHeader  string         `json:"server_header"`
	RobotsTxt     string         `json:"robots_txt"`
	Metadata      map[string]any `json:"metadata"`
}

// Endpoint is a discovered path under a Service.
type Endpoint struct {
	ID            uint64   `json:"id"`
	ServiceID     uint64   `json:"service_id"`
	Path          string   `json:"path"`
	Methods       []string `json:"methods"`
	StatusCodes   []int    `json:"status_codes"`
	AuthRequired  bool     `json:"auth_required"`
	AuthTypeHint  string   `json:"auth_type_hint"`
	ContentTypes  []string `json:"content_types"`
	DiscoveredBy  string   `json:"discovered_by"`
}

// Response is one recorded request/response pair against an Endpoint.
// Responses are append-only: no upsert/merge, matching add_response.
type Response struct {
	ID          uint64         `json:"id"`
	EndpointID  uint64         `json:"endpoint_id"`
	Method      string         `json:"method"`
	StatusCode  int            `json:"status_code"`
	Headers     map[string]string `json:"headers"`
	BodySchema  map[string]any `json:"body_schema"`
	BodySample  string         `json:"body_sample"`
	ContentType string         `json:"content_type"`
	ElapsedMS   int64          `json:"elapsed_ms"`
}

// Parameter is an inferred request parameter for an Endpoint.
type Parameter struct {
	ID           uint64 `json:"id"`
	EndpointID   uint64 `json:"endpoint_id"`
	Name         string `json:"name"`
	ParamType    string `json:"param_type"`
	Location     string `json:"location"`
	Required     bool   `json:"required"`
	ExampleValue string `json:"example_value"`
}

// ProbeRun status values.
const (
	RunRunning   = "running"
	RunCompleted = "completed"
	RunStopped   = "stopped"
	RunError     = "error"
)

// ProbeRun records one orchestrator invocation against a Service.
type ProbeRun struct {
	ID             uint64         `json:"id"`
	ExternalID     string         `json:"external_id"`
	ServiceID      uint64         `json:"service_id"`
	StartedAt      time.Time      `json:"started_at"`
	FinishedAt     *time.Time     `json:"finished_at,omitempty"`
	Status         string         `json:"status"`
	Config         map[string]any `json:"config"`
	TotalRequests  int            `json:"total_requests"`
	EndpointsFound int            `json:"endpoints_found"`
	Progress       map[string]any `json:"progress"`
}

// ServiceStats summarizes a Service's discovered surface for the CLI
// status/list commands.
type ServiceStats struct {
	EndpointCount  int
	ResponseCount  int
	ParameterCount int
}
