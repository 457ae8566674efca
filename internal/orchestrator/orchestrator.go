// Package orchestrator implements the Orchestrator (component J): the
// single entry point that drives a probe run through its phase sequence,
// enforces the request budget and stop sentinel, and persists everything
// it learns to the Store.
package orchestrator

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lukisch/apiprober/internal/config"
	"github.com/lukisch/apiprober/internal/dedup"
	"github.com/lukisch/apiprober/internal/httpworker"
	"github.com/lukisch/apiprober/internal/linkfollow"
	"github.com/lukisch/apiprober/internal/logger"
	"github.com/lukisch/apiprober/internal/methodprobe"
	"github.com/lukisch/apiprober/internal/metrics"
	"github.com/lukisch/apiprober/internal/pattern"
	"github.com/lukisch/apiprober/internal/robots"
	"github.com/lukisch/apiprober/internal/schema"
	"github.com/lukisch/apiprober/internal/specscan"
	"github.com/lukisch/apiprober/internal/store"
	"github.com/lukisch/apiprober/internal/wordlist"
)

// stopSentinelName is the file checked for at every phase boundary in the
// process's current working directory: a sentinel the operator can touch
// to halt a long-running probe, in the spirit of the original's
// project-root `STOP` file.
const stopSentinelName = "STOP"

// Orchestrator wires together every discovery component and the Store.
type Orchestrator struct {
	Config  *config.Config
	Store   *store.Store
	Log     *logger.Logger
	Metrics *metrics.Metrics

	worker *httpworker.Worker
	policy *robots.Policy
	known  *dedup.Set
}

// New constructs an Orchestrator. Metrics may be nil.
func New(cfg *config.Config, st *store.Store, log *logger.Logger, m *metrics.Metrics) *Orchestrator {
	if log == nil {
		log = logger.NewDefault()
	}
	return &Orchestrator{Config: cfg, Store: st, Log: log, Metrics: m}
}

// Summary is returned by Probe/Resume.
type Summary struct {
	Service        string `json:"service"`
	BaseURL        string `json:"base_url"`
	EndpointsFound int    `json:"endpoints_found"`
	TotalRequests  int    `json:"total_requests"`
	Status         string `json:"status"`
	Error          string `json:"error,omitempty"`
}

// Probe runs the full phase sequence against baseURL.
func (o *Orchestrator) Probe(ctx context.Context, baseURL string) (*Summary, error) {
	baseURL = strings.TrimRight(baseURL, "/")
	serviceName := deriveServiceName(baseURL)

	o.worker = httpworker.New(httpworker.Config{
		DelayMS:        o.Config.DelayMS,
		TimeoutSeconds: o.Config.TimeoutSeconds,
		UserAgent:      o.Config.UserAgent,
		Auth:           httpworker.Auth{Type: o.Config.Auth.Type, Value: o.Config.Auth.Value},
	})
	o.known = dedup.New()
	o.recordActiveRun(1)

	serviceID, err := o.Store.UpsertService(store.Service{Name: serviceName, BaseURL: baseURL})
	if err != nil {
		o.recordActiveRun(-1)
		return nil, fmt.Errorf("upsert service: %w", err)
	}

	cfgMap, _ := o.Config.AsMap()
	runID, err := o.Store.CreateProbeRun(store.ProbeRun{ServiceID: serviceID, Config: cfgMap})
	if err != nil {
		o.recordActiveRun(-1)
		return nil, fmt.Errorf("create probe run: %w", err)
	}

	o.loadKnownPaths(serviceID)

	if o.Config.RespectRobotsTxt {
		o.policy = robots.New(o.Config.UserAgent)
		ok, raw := o.policy.Load(ctx, o.worker, baseURL)
		if ok {
			o.Store.UpsertService(store.Service{Name: serviceName, BaseURL: baseURL, RobotsTxt: raw})
			if delay, has := o.policy.CrawlDelay(); has {
				effective := o.Config.DelayMS
				if delay*1000 > effective {
					effective = delay * 1000
				}
				o.worker.SetDelayMS(effective)
			}
		}
	} else {
		o.policy = nil
	}

	// Phase 0: base probe.
	o.Log.PhaseEvent("base", int(o.worker.RequestCount()))
	base := o.worker.Get(ctx, baseURL)
	o.recordRequest(http.MethodGet, base.StatusCode)
	if base.StatusCode <= 0 {
		o.finish(runID, serviceID, store.RunError)
		o.recordActiveRun(-1)
		return &Summary{Service: serviceName, BaseURL: baseURL, Status: store.RunError, Error: base.Error}, nil
	}
	if server := base.Headers.Get("Server"); server != "" {
		o.Store.UpsertService(store.Service{Name: serviceName, BaseURL: baseURL, ServerHeader: server})
	}

	strategies := toSet(o.Config.Strategies)
	stopped := false

	// Phase 1: OpenAPI spec scan.
	if !stopped && strategies["openapi"] {
		if o.limitsExceeded(ctx, runID, serviceID) {
			stopped = true
		} else {
			o.Log.PhaseEvent("openapi", int(o.worker.RequestCount()))
			o.runSpecScan(ctx, baseURL, serviceID)
		}
	}

	// Phase 2: wordlist probing.
	if !stopped && strategies["wordlist"] {
		if o.limitsExceeded(ctx, runID, serviceID) {
			stopped = true
		} else {
			o.Log.PhaseEvent("wordlist", int(o.worker.RequestCount()))
			o.runWordlist(ctx, baseURL, serviceID)
		}
	}

	// Phase 3: pattern probing.
	if !stopped && strategies["pattern"] {
		if o.limitsExceeded(ctx, runID, serviceID) {
			stopped = true
		} else {
			o.Log.PhaseEvent("pattern", int(o.worker.RequestCount()))
			o.runPattern(ctx, baseURL, serviceID)
		}
	}

	// Phase 4: method testing over every known endpoint.
	if !stopped {
		if o.limitsExceeded(ctx, runID, serviceID) {
			stopped = true
		} else {
			o.Log.PhaseEvent("methods", int(o.worker.RequestCount()))
			o.runMethodProbe(ctx, baseURL, serviceID)
		}
	}

	// Phase 5: schema extraction over GET-capable endpoints.
	if !stopped {
		if o.limitsExceeded(ctx, runID, serviceID) {
			stopped = true
		} else {
			o.Log.PhaseEvent("schema", int(o.worker.RequestCount()))
			o.runSchemaExtraction(ctx, baseURL, serviceID)
		}
	}

	// Phase 6: response-driven link following.
	if !stopped && strategies["response_driven"] {
		if o.limitsExceeded(ctx, runID, serviceID) {
			stopped = true
		} else {
			o.Log.PhaseEvent("response_driven", int(o.worker.RequestCount()))
			o.runLinkFollow(ctx, baseURL, serviceID)
		}
	}

	o.Store.UpsertService(store.Service{Name: serviceName, BaseURL: baseURL, LastProbed: time.Now().UTC()})
	o.recordActiveRun(-1)

	stats, _ := o.Store.GetServiceStats(serviceID)
	status := store.RunCompleted
	if stopped {
		// limitsExceeded already called o.finish with RunStopped; don't
		// overwrite it back to completed.
		status = store.RunStopped
	} else {
		o.finish(runID, serviceID, store.RunCompleted)
	}

	return &Summary{
		Service:        serviceName,
		BaseURL:        baseURL,
		EndpointsFound: stats.EndpointCount,
		TotalRequests:  int(o.worker.RequestCount()),
		Status:         status,
	}, nil
}

// Resume re-probes a previously-discovered service, applying its last
// run's config snapshot as a SHALLOW overlay onto the current
// configuration — a top-level key present in the snapshot fully replaces
// the corresponding key in o.Config, mirroring the original
// orchestrator's `self.config.update(run_config)` (a Python dict.update,
// not a recursive merge). This is deliberately NOT config.Config.Merge,
// which is a deep merge used elsewhere; resume's shallow semantics are
// preserved here on purpose.
func (o *Orchestrator) Resume(ctx context.Context, serviceName string) (*Summary, error) {
	svc, err := o.Store.GetServiceByName(serviceName)
	if err != nil {
		return nil, fmt.Errorf("lookup service: %w", err)
	}
	if svc == nil {
		return nil, fmt.Errorf("service %q not found", serviceName)
	}
	lastRun, err := o.Store.GetLastProbeRun(svc.ID)
	if err != nil {
		return nil, fmt.Errorf("lookup last run: %w", err)
	}
	if lastRun == nil {
		return nil, fmt.Errorf("service %q has no prior probe run", serviceName)
	}
	if lastRun.Status == store.RunCompleted {
		o.Log.Infof("last run for %s already completed; re-probing anyway", serviceName)
	}

	if len(lastRun.Config) > 0 {
		cur, err := o.Config.AsMap()
		if err != nil {
			return nil, err
		}
		for k, v := range lastRun.Config {
			cur[k] = v
		}
		merged, err := config.FromMap(cur)
		if err != nil {
			return nil, err
		}
		o.Config = merged
	}

	return o.Probe(ctx, svc.BaseURL)
}

func (o *Orchestrator) loadKnownPaths(serviceID uint64) {
	endpoints, err := o.Store.ListEndpointsForService(serviceID)
	if err != nil {
		return
	}
	paths := make([]string, 0, len(endpoints))
	for _, ep := range endpoints {
		paths = append(paths, ep.Path)
	}
	o.known.AddAll(paths)
}

// limitsExceeded checks context cancellation, the request budget and the
// STOP sentinel file, matching _check_limits. Any of them halts remaining
// phases.
func (o *Orchestrator) limitsExceeded(ctx context.Context, runID, serviceID uint64) bool {
	if ctx.Err() != nil {
		o.Log.Info("context cancelled; stopping")
		o.finish(runID, serviceID, store.RunStopped)
		return true
	}
	if o.Config.MaxRequests > 0 && int(o.worker.RequestCount()) >= o.Config.MaxRequests {
		o.Log.Info("request budget reached; stopping")
		o.finish(runID, serviceID, store.RunStopped)
		return true
	}
	if stopSentinelPresent() {
		o.Log.Info("STOP sentinel present; stopping")
		o.finish(runID, serviceID, store.RunStopped)
		return true
	}
	return false
}

func stopSentinelPresent() bool {
	wd, err := os.Getwd()
	if err != nil {
		return false
	}
	_, err = os.Stat(filepath.Join(wd, stopSentinelName))
	return err == nil
}

func (o *Orchestrator) recordRequest(method string, statusCode int) {
	if o.Metrics != nil {
		o.Metrics.RecordRequest(method, statusCode)
	}
}

func (o *Orchestrator) recordDiscovery(discoveredBy string) {
	if o.Metrics != nil {
		o.Metrics.RecordDiscovery(discoveredBy)
	}
}

func (o *Orchestrator) recordActiveRun(delta float64) {
	if o.Metrics != nil {
		o.Metrics.ActiveProbeRuns.Add(delta)
	}
}

func (o *Orchestrator) finish(runID, serviceID uint64, status string) {
	stats, _ := o.Store.GetServiceStats(serviceID)
	o.Store.UpdateProbeRun(runID, status, int(o.worker.RequestCount()), stats.EndpointCount, nil)
}

func (o *Orchestrator) runSpecScan(ctx context.Context, baseURL string, serviceID uint64) {
	spec := specscan.Detect(ctx, o.worker, baseURL, o.policy)
	if spec == nil {
		return
	}
	o.Store.UpsertService(store.Service{
		Name: deriveServiceName(baseURL), BaseURL: baseURL,
		Metadata: specscan.Metadata(spec),
	})
	for _, ep := range specscan.ExtractEndpoints(spec.Document) {
		epID, err := o.Store.UpsertEndpoint(store.Endpoint{
			ServiceID: serviceID, Path: ep.Path, Methods: ep.Methods, DiscoveredBy: "openapi",
		})
		if err != nil {
			continue
		}
		for _, p := range ep.Parameters {
			o.Store.UpsertParameter(store.Parameter{
				EndpointID: epID, Name: p.Name, Location: p.Location,
				Required: p.Required, ParamType: p.Type,
			})
		}
		o.known.Add(ep.Path)
		o.Log.DiscoveryEvent(ep.Path, 0, "openapi")
		o.recordDiscovery("openapi")
	}
}

func (o *Orchestrator) runWordlist(ctx context.Context, baseURL string, serviceID uint64) {
	paths, err := wordlist.LoadAll(o.Config.WordlistDir, o.Config.Wordlists)
	if err != nil {
		o.Log.WithError(err).Warn("failed to load wordlists")
		return
	}
	results := wordlist.Probe(ctx, o.worker, baseURL, paths, o.policy, o.known, o.Config.MaxRequests, func(r wordlist.Result) {
		o.Log.DiscoveryEvent(r.Path, r.Response.StatusCode, "wordlist")
	})
	for _, r := range results {
		o.processResult(serviceID, r.Path, r.Response, "wordlist")
	}
}

func (o *Orchestrator) runPattern(ctx context.Context, baseURL string, serviceID uint64) {
	paths := pattern.Generate(o.Config.PatternVersions, o.Config.PatternResources)
	results := wordlist.Probe(ctx, o.worker, baseURL, paths, o.policy, o.known, o.Config.MaxRequests, func(r wordlist.Result) {
		o.Log.DiscoveryEvent(r.Path, r.Response.StatusCode, "pattern")
	})
	for _, r := range results {
		o.processResult(serviceID, r.Path, r.Response, "pattern")
	}
}

// processResult ingests one probe hit into the Store, matching
// _process_results: endpoint upsert with a single-element methods/status
// set, auth_required inferred from 401/403, auth hint from
// WWW-Authenticate substring match, content types split on ';', and (if
// the response is ok and has a body) a schema-bearing Response row.
func (o *Orchestrator) processResult(serviceID uint64, path string, resp httpworker.Response, discoveredBy string) {
	authRequired := resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden
	authHint := ""
	if authRequired {
		wa := strings.ToLower(resp.Headers.Get("WWW-Authenticate"))
		switch {
		case strings.Contains(wa, "bearer"):
			authHint = "bearer"
		case strings.Contains(wa, "basic"):
			authHint = "basic"
		}
	}
	var methods []string
	if resp.Method != "" {
		methods = []string{resp.Method}
	}
	var contentTypes []string
	if ct := resp.ContentType; ct != "" {
		if idx := strings.IndexByte(ct, ';'); idx >= 0 {
			ct = ct[:idx]
		}
		contentTypes = []string{strings.TrimSpace(ct)}
	}

	epID, err := o.Store.UpsertEndpoint(store.Endpoint{
		ServiceID: serviceID, Path: path, Methods: methods,
		StatusCodes: []int{resp.StatusCode}, AuthRequired: authRequired,
		AuthTypeHint: authHint, ContentTypes: contentTypes, DiscoveredBy: discoveredBy,
	})
	if err != nil {
		return
	}
	o.recordDiscovery(discoveredBy)

	if resp.OK() && resp.Body != "" {
		desc := schema.ExtractSchemaFromBody(resp.Body)
		o.Store.AddResponse(store.Response{
			EndpointID: epID, Method: resp.Method, StatusCode: resp.StatusCode,
			BodySchema: desc, BodySample: resp.Body, ContentType: resp.ContentType,
			ElapsedMS: resp.ElapsedMS,
		})
	}
}

func (o *Orchestrator) runMethodProbe(ctx context.Context, baseURL string, serviceID uint64) {
	methods := methodprobe.AllMethods
	if o.Config.SkipDestructive {
		methods = methodprobe.SafeMethods
	}
	endpoints, err := o.Store.ListEndpointsForService(serviceID)
	if err != nil {
		return
	}
	for _, ep := range endpoints {
		if o.Config.MaxRequests > 0 && int(o.worker.RequestCount()) >= o.Config.MaxRequests {
			return
		}
		res := methodprobe.Test(ctx, o.worker, baseURL, ep.Path, methods)
		statusCodes := make([]int, 0, len(res.StatusCodes))
		for _, code := range res.StatusCodes {
			statusCodes = append(statusCodes, code)
		}
		o.Store.UpsertEndpoint(store.Endpoint{
			ServiceID: serviceID, Path: ep.Path, Methods: res.Methods,
			StatusCodes: statusCodes, AuthRequired: res.AuthRequired,
			AuthTypeHint: res.AuthTypeHint, ContentTypes: res.ContentTypes,
		})
	}
}

func (o *Orchestrator) runSchemaExtraction(ctx context.Context, baseURL string, serviceID uint64) {
	endpoints, err := o.Store.ListEndpointsForService(serviceID)
	if err != nil {
		return
	}
	for _, ep := range endpoints {
		if !containsString(ep.Methods, http.MethodGet) {
			continue
		}
		if o.Config.MaxRequests > 0 && int(o.worker.RequestCount()) >= o.Config.MaxRequests {
			return
		}
		resp := o.worker.Get(ctx, baseURL+ep.Path)
		o.recordRequest(http.MethodGet, resp.StatusCode)
		switch {
		case resp.OK() && resp.Body != "":
			desc := schema.ExtractSchemaFromBody(resp.Body)
			o.Store.AddResponse(store.Response{
				EndpointID: ep.ID, Method: http.MethodGet, StatusCode: resp.StatusCode,
				BodySchema: desc, BodySample: resp.Body, ContentType: resp.ContentType,
				ElapsedMS: resp.ElapsedMS,
			})
		case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
			for _, hint := range schema.ExtractParamsFromError(resp.Body) {
				o.Store.UpsertParameter(store.Parameter{
					EndpointID: ep.ID, Name: hint.Name, Location: "query",
					Required: hint.Required, ParamType: "string",
				})
			}
		}
	}
}

func (o *Orchestrator) runLinkFollow(ctx context.Context, baseURL string, serviceID uint64) {
	linkfollow.Run(ctx, o.worker, baseURL, o.Store, serviceID, o.policy, o.known, maxInt(o.Config.MaxDepth, 1), o.Config.MaxRequests, func(r linkfollow.Result) {
		o.processResult(serviceID, r.Path, r.Response, "response_driven")
		o.Log.DiscoveryEvent(r.Path, r.Response.StatusCode, "response_driven")
	})
}

// deriveServiceName takes the second-to-last dot-separated label of the
// host as a short service name (e.g. "api.example.com" -> "example"),
// falling back to the whole host for single-label hosts. Preserved
// exactly as spec.md defines it; see SPEC_FULL.md §5.3.
func deriveServiceName(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	host := u.Hostname()
	parts := strings.Split(host, ".")
	if len(parts) >= 2 {
		return parts[len(parts)-2]
	}
	return host
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, s := range items {
		set[s] = true
	}
	return set
}

func containsString(items []string, want string) bool {
	for _, s := range items {
		if strings.EqualFold(s, want) {
			return true
		}
	}
	return false
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

