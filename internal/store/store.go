// Package store persists Services, Endpoints, Responses, Parameters, and
// ProbeRuns (component D) in a single embedded bbolt file, one bucket per
// entity plus small secondary-index buckets for the original SQL schema's
// UNIQUE constraints. Upserts apply the same monotonic merge rules as
// core/database.py's ON CONFLICT ... CASE WHEN clauses: sets union,
// booleans OR-latch, strings overwrite only when the incoming value is
// non-empty.
package store

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketServices       = []byte("services")
	bucketServicesByName = []byte("services_by_name")
	bucketEndpoints      = []byte("endpoints")
	bucketEndpointsIdx   = []byte("endpoints_by_service_path")
	bucketResponses      = []byte("responses")
	bucketParameters     = []byte("parameters")
	bucketParametersIdx  = []byte("parameters_by_endpoint_name_loc")
	bucketProbeRuns      = []byte("probe_runs")
)

// bodySampleLimit is the byte cap applied to Response.BodySample, matching
// add_response's 2048-character truncation. Truncation respects UTF-8
// boundaries so the stored sample is always valid text (invariant 4, §3).
const bodySampleLimit = 2048

// Store is a bbolt-backed handle. The zero value is not usable; use Open.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if necessary) a bbolt database at path and ensures
// every bucket exists.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0644, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{
			bucketServices, bucketServicesByName,
			bucketEndpoints, bucketEndpointsIdx,
			bucketResponses,
			bucketParameters, bucketParametersIdx,
			bucketProbeRuns,
		} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure buckets: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database file.
func (s *Store) Close() error {
	return s.db.Close()
}

func idKey(id uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, id)
	return b
}

func keyID(k []byte) uint64 {
	return binary.BigEndian.Uint64(k)
}

// UpsertService inserts or merges a Service by Name. description,
// server_header, and robots_txt only overwrite the stored value when the
// incoming value is non-empty; base_url is always overwritten; a non-nil
// metadata map is merged key by key into the stored one (incoming keys
// win, other stored keys are kept); last_probed is overwritten only when
// non-zero.
func (s *Store) UpsertService(svc Service) (uint64, error) {
	var id uint64
	err := s.db.Update(func(tx *bolt.Tx) error {
		idx := tx.Bucket(bucketServicesByName)
		services := tx.Bucket(bucketServices)

		if existing := idx.Get([]byte(svc.Name)); existing != nil {
			id = keyID(existing)
			var cur Service
			if err := json.Unmarshal(services.Get(existing), &cur); err != nil {
				return err
			}
			cur.BaseURL = svc.BaseURL
			if svc.Description != "" {
				cur.Description = svc.Description
			}
			if svc.ServerHeader != "" {
				cur.ServerHeader = svc.ServerHeader
			}
			if svc.RobotsTxt != "" {
				cur.RobotsTxt = svc.RobotsTxt
			}
			if svc.Metadata != nil {
				if cur.Metadata == nil {
					cur.Metadata = map[string]any{}
				}
				for k, v := range svc.Metadata {
					cur.Metadata[k] = v
				}
			}
			if !svc.LastProbed.IsZero() {
				cur.LastProbed = svc.LastProbed
			}
			return putJSON(services, existing, cur)
		}

		seq, _ := services.NextSequence()
		id = seq
		svc.ID = id
		if svc.DiscoveredAt.IsZero() {
			svc.DiscoveredAt = time.Now().UTC()
		}
		key := idKey(id)
		if err := putJSON(services, key, svc); err != nil {
			return err
		}
		return idx.Put([]byte(svc.Name), key)
	})
	return id, err
}

// GetServiceByName looks up a Service by its unique name.
func (s *Store) GetServiceByName(name string) (*Service, error) {
	var out *Service
	err := s.db.View(func(tx *bolt.Tx) error {
		idx := tx.Bucket(bucketServicesByName)
		key := idx.Get([]byte(name))
		if key == nil {
			return nil
		}
		var svc Service
		if err := json.Unmarshal(tx.Bucket(bucketServices).Get(key), &svc); err != nil {
			return err
		}
		out = &svc
		return nil
	})
	return out, err
}

// GetService looks up a Service by internal ID.
func (s *Store) GetService(id uint64) (*Service, error) {
	var out *Service
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketServices).Get(idKey(id))
		if raw == nil {
			return nil
		}
		var svc Service
		if err := json.Unmarshal(raw, &svc); err != nil {
			return err
		}
		out = &svc
		return nil
	})
	return out, err
}

// ListServices returns every stored Service, ordered by ID.
func (s *Store) ListServices() ([]Service, error) {
	var out []Service
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketServices).ForEach(func(k, v []byte) error {
			var svc Service
			if err := json.Unmarshal(v, &svc); err != nil {
				return err
			}
			out = append(out, svc)
			return nil
		})
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, err
}

func endpointIndexKey(serviceID uint64, path string) []byte {
	return []byte(fmt.Sprintf("%d:%s", serviceID, path))
}

// UpsertEndpoint inserts or merges an Endpoint by (ServiceID, Path).
// Methods, StatusCodes, and ContentTypes union as sets; AuthRequired
// OR-latches; AuthTypeHint overwrites only when non-empty, matching
// upsert_endpoint.
func (s *Store) UpsertEndpoint(ep Endpoint) (uint64, error) {
	var id uint64
	err := s.db.Update(func(tx *bolt.Tx) error {
		idx := tx.Bucket(bucketEndpointsIdx)
		endpoints := tx.Bucket(bucketEndpoints)
		ikey := endpointIndexKey(ep.ServiceID, ep.Path)

		if existing := idx.Get(ikey); existing != nil {
			id = keyID(existing)
			var cur Endpoint
			if err := json.Unmarshal(endpoints.Get(existing), &cur); err != nil {
				return err
			}
			cur.Methods = unionStrings(cur.Methods, ep.Methods)
			cur.StatusCodes = unionInts(cur.StatusCodes, ep.StatusCodes)
			cur.ContentTypes = unionStrings(cur.ContentTypes, ep.ContentTypes)
			cur.AuthRequired = cur.AuthRequired || ep.AuthRequired
			if ep.AuthTypeHint != "" {
				cur.AuthTypeHint = ep.AuthTypeHint
			}
			if ep.DiscoveredBy != "" && cur.DiscoveredBy == "" {
				cur.DiscoveredBy = ep.DiscoveredBy
			}
			return putJSON(endpoints, existing, cur)
		}

		seq, _ := endpoints.NextSequence()
		id = seq
		ep.ID = id
		key := idKey(id)
		if err := putJSON(endpoints, key, ep); err != nil {
			return err
		}
		return idx.Put(ikey, key)
	})
	return id, err
}

// GetEndpoint looks up an Endpoint by internal ID.
func (s *Store) GetEndpoint(id uint64) (*Endpoint, error) {
	var out *Endpoint
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketEndpoints).Get(idKey(id))
		if raw == nil {
			return nil
		}
		var ep Endpoint
		if err := json.Unmarshal(raw, &ep); err != nil {
			return err
		}
		out = &ep
		return nil
	})
	return out, err
}

// ListEndpointsForService returns every Endpoint under a Service, ordered
// by ID (insertion order).
func (s *Store) ListEndpointsForService(serviceID uint64) ([]Endpoint, error) {
	var out []Endpoint
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketEndpoints).ForEach(func(k, v []byte) error {
			var ep Endpoint
			if err := json.Unmarshal(v, &ep); err != nil {
				return err
			}
			if ep.ServiceID == serviceID {
				out = append(out, ep)
			}
			return nil
		})
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, err
}

// AddResponse appends a Response row. Responses are never merged; each
// probe produces a new row, matching add_response. BodySample is truncated
// to bodySampleLimit bytes on a valid UTF-8 boundary.
func (s *Store) AddResponse(resp Response) (uint64, error) {
	resp.BodySample = truncateUTF8(resp.BodySample, bodySampleLimit)
	var id uint64
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketResponses)
		seq, _ := b.NextSequence()
		id = seq
		resp.ID = id
		return putJSON(b, idKey(id), resp)
	})
	return id, err
}

// ListResponsesForEndpoint returns every Response recorded for an
// Endpoint, ordered by ID (insertion order).
func (s *Store) ListResponsesForEndpoint(endpointID uint64) ([]Response, error) {
	var out []Response
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketResponses).ForEach(func(k, v []byte) error {
			var r Response
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}
			if r.EndpointID == endpointID {
				out = append(out, r)
			}
			return nil
		})
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, err
}

func parameterIndexKey(endpointID uint64, name, location string) []byte {
	return []byte(fmt.Sprintf("%d:%s:%s", endpointID, name, location))
}

// UpsertParameter inserts or merges a Parameter by (EndpointID, Name,
// Location). Required OR-latches, ExampleValue overwrites only when
// non-empty, ParamType always overwrites, matching upsert_parameter.
func (s *Store) UpsertParameter(p Parameter) (uint64, error) {
	var id uint64
	err := s.db.Update(func(tx *bolt.Tx) error {
		idx := tx.Bucket(bucketParametersIdx)
		params := tx.Bucket(bucketParameters)
		ikey := parameterIndexKey(p.EndpointID, p.Name, p.Location)

		if existing := idx.Get(ikey); existing != nil {
			id = keyID(existing)
			var cur Parameter
			if err := json.Unmarshal(params.Get(existing), &cur); err != nil {
				return err
			}
			cur.Required = cur.Required || p.Required
			if p.ExampleValue != "" {
				cur.ExampleValue = p.ExampleValue
			}
			cur.ParamType = p.ParamType
			return putJSON(params, existing, cur)
		}

		seq, _ := params.NextSequence()
		id = seq
		p.ID = id
		key := idKey(id)
		if err := putJSON(params, key, p); err != nil {
			return err
		}
		return idx.Put(ikey, key)
	})
	return id, err
}

// ListParametersForEndpoint returns every Parameter recorded for an
// Endpoint.
func (s *Store) ListParametersForEndpoint(endpointID uint64) ([]Parameter, error) {
	var out []Parameter
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketParameters).ForEach(func(k, v []byte) error {
			var p Parameter
			if err := json.Unmarshal(v, &p); err != nil {
				return err
			}
			if p.EndpointID == endpointID {
				out = append(out, p)
			}
			return nil
		})
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, err
}

// CreateProbeRun inserts a new ProbeRun row, stamping a stable
// uuid.NewString() external ID (survives across resume independent of the
// bbolt sequence, which is only ever exposed internally).
func (s *Store) CreateProbeRun(run ProbeRun) (uint64, error) {
	var id uint64
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketProbeRuns)
		seq, _ := b.NextSequence()
		id = seq
		run.ID = id
		if run.ExternalID == "" {
			run.ExternalID = uuid.NewString()
		}
		if run.StartedAt.IsZero() {
			run.StartedAt = time.Now().UTC()
		}
		if run.Status == "" {
			run.Status = RunRunning
		}
		return putJSON(b, idKey(id), run)
	})
	return id, err
}

// UpdateProbeRun overwrites a ProbeRun's mutable fields. FinishedAt is
// stamped automatically iff status is a terminal state (completed,
// stopped, error), matching update_probe_run.
func (s *Store) UpdateProbeRun(id uint64, status string, totalRequests, endpointsFound int, progress map[string]any) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketProbeRuns)
		key := idKey(id)
		raw := b.Get(key)
		if raw == nil {
			return fmt.Errorf("probe run %d not found", id)
		}
		var run ProbeRun
		if err := json.Unmarshal(raw, &run); err != nil {
			return err
		}
		run.Status = status
		run.TotalRequests = totalRequests
		run.EndpointsFound = endpointsFound
		run.Progress = progress
		if status == RunCompleted || status == RunStopped || status == RunError {
			now := time.Now().UTC()
			run.FinishedAt = &now
		}
		return putJSON(b, key, run)
	})
}

// GetLastProbeRun returns the most recently started ProbeRun for a
// Service, or nil if none exists.
func (s *Store) GetLastProbeRun(serviceID uint64) (*ProbeRun, error) {
	runs, err := s.GetProbeRuns(serviceID)
	if err != nil || len(runs) == 0 {
		return nil, err
	}
	return &runs[len(runs)-1], nil
}

// GetProbeRuns returns every ProbeRun for a Service, ordered by start
// time (insertion order).
func (s *Store) GetProbeRuns(serviceID uint64) ([]ProbeRun, error) {
	var out []ProbeRun
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketProbeRuns).ForEach(func(k, v []byte) error {
			var run ProbeRun
			if err := json.Unmarshal(v, &run); err != nil {
				return err
			}
			if run.ServiceID == serviceID {
				out = append(out, run)
			}
			return nil
		})
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, err
}

// GetServiceStats summarizes a Service's discovered surface for the
// list/status CLI commands, matching get_service_stats.
func (s *Store) GetServiceStats(serviceID uint64) (ServiceStats, error) {
	var stats ServiceStats
	endpoints, err := s.ListEndpointsForService(serviceID)
	if err != nil {
		return stats, err
	}
	stats.EndpointCount = len(endpoints)
	for _, ep := range endpoints {
		responses, err := s.ListResponsesForEndpoint(ep.ID)
		if err != nil {
			return stats, err
		}
		stats.ResponseCount += len(responses)
		params, err := s.ListParametersForEndpoint(ep.ID)
		if err != nil {
			return stats, err
		}
		stats.ParameterCount += len(params)
	}
	return stats, nil
}

func putJSON(b *bolt.Bucket, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Put(key, data)
}

func unionStrings(a, b []string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, s := range a {
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	for _, s := range b {
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

func unionInts(a, b []int) []int {
	seen := map[int]struct{}{}
	var out []int
	for _, n := range a {
		if _, ok := seen[n]; !ok {
			seen[n] = struct{}{}
			out = append(out, n)
		}
	}
	for _, n := range b {
		if _, ok := seen[n]; !ok {
			seen[n] = struct{}{}
			out = append(out, n)
		}
	}
	sort.Ints(out)
	return out
}

// truncateUTF8 truncates s to at most n bytes, cutting only at a full rune
// boundary so the result is always valid UTF-8 (invariant 4, §3).
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := 0
	for i := range s {
		if i > n {
			break
		}
		cut = i
	}
	return s[:cut]
}
