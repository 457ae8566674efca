// Package export renders a Service's discovered surface to a file in one
// of several formats (json, md, pdf-as-markdown-stub, postman), reading
// exclusively from the Store.
package export

import (
	"fmt"
	"time"

	"github.com/lukisch/apiprober/internal/store"
)

// Version is folded into the json export's apiprober_version field and
// printed by the CLI's --version flag.
const Version = "0.1.0"

// Bundle is everything needed to render an export: the service and its
// full discovered surface, read once up front.
type Bundle struct {
	Service    store.Service
	Endpoints  []store.Endpoint
	Responses  map[uint64][]store.Response  // keyed by endpoint ID
	Parameters map[uint64][]store.Parameter // keyed by endpoint ID
	ProbeRuns  []store.ProbeRun
	Stats      store.ServiceStats
	ExportedAt time.Time
}

// LoadBundle reads everything needed to export a service from st.
func LoadBundle(st *store.Store, serviceName string, exportedAt time.Time) (*Bundle, error) {
	svc, err := st.GetServiceByName(serviceName)
	if err != nil {
		return nil, fmt.Errorf("lookup service: %w", err)
	}
	if svc == nil {
		return nil, fmt.Errorf("service %q not found", serviceName)
	}

	endpoints, err := st.ListEndpointsForService(svc.ID)
	if err != nil {
		return nil, fmt.Errorf("list endpoints: %w", err)
	}

	responses := map[uint64][]store.Response{}
	parameters := map[uint64][]store.Parameter{}
	for _, ep := range endpoints {
		r, err := st.ListResponsesForEndpoint(ep.ID)
		if err != nil {
			return nil, fmt.Errorf("list responses for %s: %w", ep.Path, err)
		}
		responses[ep.ID] = r

		p, err := st.ListParametersForEndpoint(ep.ID)
		if err != nil {
			return nil, fmt.Errorf("list parameters for %s: %w", ep.Path, err)
		}
		parameters[ep.ID] = p
	}

	runs, err := st.GetProbeRuns(svc.ID)
	if err != nil {
		return nil, fmt.Errorf("list probe runs: %w", err)
	}
	stats, err := st.GetServiceStats(svc.ID)
	if err != nil {
		return nil, fmt.Errorf("service stats: %w", err)
	}

	return &Bundle{
		Service: *svc, Endpoints: endpoints, Responses: responses,
		Parameters: parameters, ProbeRuns: runs, Stats: stats, ExportedAt: exportedAt,
	}, nil
}
