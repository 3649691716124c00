// Package parsers translates raw tool output into canonical knowledge
// entities. Every parser mints ids through pkg/ids; none may invent its
// own id scheme.
//
// Errors returned by a parser never cross the coordinator boundary as
// exceptions: the coordinator translates them into a parse_failed
// execution record and keeps the raw output.
package parsers

import (
	"fmt"
	"sync"
	"time"

	"sentra/internal/models"
	"sentra/pkg/ids"
)

// Context carries what a parser may need besides the raw text: the tool
// and target it ran against, the exact argv, and ids of upstream
// entities (a port-scan parser receives the host id, for example).
type Context struct {
	ToolID      string
	Target      string
	Argv        []string
	UpstreamIDs map[string]string
}

// Result is what a parser hands back. Entities and relationships are
// committed atomically by the store; metadata is informational; errors
// collects non-fatal oddities the parser chose to tolerate.
type Result struct {
	Entities      []models.Entity
	Relationships []models.EntityRelationship
	Metadata      map[string]interface{}
	Errors        []string
}

// Empty reports whether the parser found nothing at all.
func (r *Result) Empty() bool {
	return r == nil || len(r.Entities) == 0
}

// Parser is the contract every tool output parser implements.
type Parser interface {
	Parse(raw string, pctx Context) (*Result, error)
}

// Registry holds named parsers for coordinator lookup.
type Registry struct {
	mu      sync.RWMutex
	parsers map[string]Parser
}

func NewRegistry() *Registry {
	return &Registry{parsers: make(map[string]Parser)}
}

func (r *Registry) Register(name string, parser Parser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.parsers[name] = parser
}

// Lookup returns the parser for a name, falling back to the generic
// text parser so unbound tools still record history cleanly.
func (r *Registry) Lookup(name string) Parser {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if parser, ok := r.parsers[name]; ok {
		return parser
	}
	return &GenericParser{}
}

// NewDefaultRegistry wires every built-in parser under its binding name.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("ping", &PingParser{})
	r.Register("nmap_ping_sweep", &NmapSweepParser{})
	r.Register("nmap_port_scan", &NmapPortScanParser{})
	r.Register("gobuster_dir", &GobusterDirParser{})
	r.Register("dns_lookup", &DNSParser{})
	r.Register("whois", &WhoisParser{})
	r.Register("generic", &GenericParser{})
	return r
}

// Entity constructors shared by the parsers. All ids flow through
// pkg/ids, all timestamps through nowMilli.

func nowMilli() int64 {
	return time.Now().UnixMilli()
}

func newHostEntity(ip, toolID string, alive bool, confidence float64, extra map[string]interface{}) (models.Entity, error) {
	data := map[string]interface{}{
		"ip_address": ip,
		"is_alive":   alive,
	}
	for key, value := range extra {
		data[key] = value
	}
	return newEntity(ids.Host(ip), ids.KindHost, toolID, confidence, data)
}

func newPortEntity(ip string, port int, protocol, state, toolID string, confidence float64) (models.Entity, error) {
	data := map[string]interface{}{
		"host_id":  ids.Host(ip),
		"port":     port,
		"protocol": protocol,
		"state":    state,
	}
	return newEntity(ids.Port(ip, port, protocol), ids.KindPort, toolID, confidence, data)
}

func newServiceEntity(portID, name, toolID string, confidence float64, extra map[string]interface{}) (models.Entity, error) {
	data := map[string]interface{}{
		"port_id":      portID,
		"service_name": normalizeServiceName(name),
	}
	for key, value := range extra {
		data[key] = value
	}
	return newEntity(ids.Service(portID, name), ids.KindService, toolID, confidence, data)
}

func newWebResourceEntity(serviceID, url, kind, toolID string, statusCode, size int, confidence float64) (models.Entity, error) {
	data := map[string]interface{}{
		"service_id":  serviceID,
		"url":         url,
		"resource":    kind,
		"status_code": statusCode,
		"size":        size,
	}
	return newEntity(ids.WebResource(serviceID, url), ids.KindWebResource, toolID, confidence, data)
}

func newDNSEntity(domain, recordType, value, toolID string, confidence float64) (models.Entity, error) {
	data := map[string]interface{}{
		"domain":      domain,
		"record_type": recordType,
		"value":       value,
	}
	return newEntity(ids.DNS(domain), ids.KindDNS, toolID, confidence, data)
}

func newEntity(id, kind, toolID string, confidence float64, data map[string]interface{}) (models.Entity, error) {
	entity := models.Entity{
		ID:           id,
		Kind:         kind,
		Status:       models.StatusDiscovered,
		DiscoveredBy: toolID,
		CreatedAt:    nowMilli(),
		UpdatedAt:    nowMilli(),
		Confidence:   confidence,
	}
	if err := entity.SetData(data); err != nil {
		return models.Entity{}, fmt.Errorf("encode entity data: %w", err)
	}
	return entity, nil
}

func relate(parentID, childID, relType string) models.EntityRelationship {
	return models.EntityRelationship{
		ParentID:  parentID,
		ChildID:   childID,
		Type:      relType,
		CreatedAt: nowMilli(),
	}
}
