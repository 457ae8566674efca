package export

import (
	"encoding/json"
	"os"
	"time"
)

// jsonParameter mirrors export_json's per-parameter shape.
type jsonParameter struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Location string `json:"location"`
	Required bool   `json:"required"`
	Example  string `json:"example,omitempty"`
}

// jsonResponse mirrors export_json's per-response shape.
type jsonResponse struct {
	Method      string         `json:"method"`
	StatusCode  int            `json:"status_code"`
	ContentType string         `json:"content_type"`
	ElapsedMS   int64          `json:"elapsed_ms"`
	Schema      map[string]any `json:"schema,omitempty"`
}

// jsonEndpoint mirrors export_json's per-path object.
type jsonEndpoint struct {
	Methods      []string        `json:"methods"`
	StatusCodes  []int           `json:"status_codes"`
	ContentTypes []string        `json:"content_types"`
	AuthRequired bool            `json:"auth_required"`
	AuthTypeHint string          `json:"auth_type_hint,omitempty"`
	DiscoveredBy string          `json:"discovered_by,omitempty"`
	Parameters   []jsonParameter `json:"parameters,omitempty"`
	Responses    []jsonResponse  `json:"responses,omitempty"`
}

// Document is the full top-level export object, matching export_json's
// {apiprober_version, exported_at, service, statistics, paths} shape.
type Document struct {
	APIProberVersion string                  `json:"apiprober_version"`
	ExportedAt       string                  `json:"exported_at"`
	Service          jsonServiceSummary      `json:"service"`
	Statistics       jsonStatistics          `json:"statistics"`
	Paths            map[string]jsonEndpoint `json:"paths"`
}

type jsonServiceSummary struct {
	Name         string         `json:"name"`
	BaseURL      string         `json:"base_url"`
	Description  string         `json:"description,omitempty"`
	ServerHeader string         `json:"server_header,omitempty"`
	DiscoveredAt string         `json:"discovered_at"`
	LastProbed   string         `json:"last_probed"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

type jsonStatistics struct {
	EndpointCount  int `json:"endpoint_count"`
	ResponseCount  int `json:"response_count"`
	ParameterCount int `json:"parameter_count"`
}

// BuildDocument converts a Bundle into the exported JSON Document shape.
func BuildDocument(b *Bundle) *Document {
	doc := &Document{
		APIProberVersion: Version,
		ExportedAt:       b.ExportedAt.UTC().Format("2006-01-02T15:04:05Z"),
		Service: jsonServiceSummary{
			Name: b.Service.Name, BaseURL: b.Service.BaseURL,
			Description: b.Service.Description, ServerHeader: b.Service.ServerHeader,
			DiscoveredAt: formatTime(b.Service.DiscoveredAt),
			LastProbed:   formatTime(b.Service.LastProbed),
			Metadata:     b.Service.Metadata,
		},
		Statistics: jsonStatistics{
			EndpointCount: b.Stats.EndpointCount, ResponseCount: b.Stats.ResponseCount,
			ParameterCount: b.Stats.ParameterCount,
		},
		Paths: map[string]jsonEndpoint{},
	}

	for _, ep := range b.Endpoints {
		je := jsonEndpoint{
			Methods: ep.Methods, StatusCodes: ep.StatusCodes, ContentTypes: ep.ContentTypes,
			AuthRequired: ep.AuthRequired, AuthTypeHint: ep.AuthTypeHint, DiscoveredBy: ep.DiscoveredBy,
		}
		for _, p := range b.Parameters[ep.ID] {
			je.Parameters = append(je.Parameters, jsonParameter{
				Name: p.Name, Type: p.ParamType, Location: p.Location,
				Required: p.Required, Example: p.ExampleValue,
			})
		}
		for _, r := range b.Responses[ep.ID] {
			je.Responses = append(je.Responses, jsonResponse{
				Method: r.Method, StatusCode: r.StatusCode, ContentType: r.ContentType,
				ElapsedMS: r.ElapsedMS, Schema: r.BodySchema,
			})
		}
		doc.Paths[ep.Path] = je
	}
	return doc
}

// WriteJSON renders a Bundle as pretty-printed JSON to outputPath.
func WriteJSON(b *Bundle, outputPath string) error {
	doc := BuildDocument(b)
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(outputPath, data, 0644)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02T15:04:05Z")
}
