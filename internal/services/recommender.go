package services

import (
	"encoding/json"
	"fmt"
	"sort"

	"sentra/internal/dao"
	"sentra/internal/intent"
	"sentra/internal/policy"
	"sentra/pkg/ids"
)

// Suggestion is one proposed next step. Confirm-gated tactics are never
// auto-queued; they carry a warning for the operator instead.
type Suggestion struct {
	Kind          intent.Kind `json:"intent_kind"`
	Target        string      `json:"target"`
	Rationale     string      `json:"rationale"`
	Priority      int         `json:"priority"`
	NeedsApproval bool        `json:"needs_approval"`
}

// Recommender proposes follow-up steps from the knowledge graph. It
// consults execution history — not entity counts — to decide whether a
// step already ran, so a parse failure correctly re-queues the step.
type Recommender struct {
	store  dao.KnowledgeDAO
	policy *policy.ExecutionPolicy
}

func NewRecommender(store dao.KnowledgeDAO, p *policy.ExecutionPolicy) *Recommender {
	if p == nil {
		p = policy.Default()
	}
	return &Recommender{store: store, policy: p}
}

// Suggest ranks next steps across the current graph.
func (r *Recommender) Suggest(limit int) ([]Suggestion, error) {
	if limit <= 0 {
		limit = 5
	}

	var out []Suggestion

	hosts, err := r.store.EntitiesByKind(ids.KindHost)
	if err != nil {
		return nil, err
	}

	for i := range hosts {
		host := hosts[i]
		data, err := host.DataMap()
		if err != nil {
			continue
		}
		ip, _ := data["ip_address"].(string)
		if ip == "" {
			continue
		}
		alive, _ := data["is_alive"].(bool)
		if !alive {
			continue
		}

		scanned, err := r.store.HasSuccessfulParse("nmap_port_scan", ip)
		if err != nil {
			return nil, err
		}
		if !scanned {
			out = append(out, Suggestion{
				Kind:      intent.PortScan,
				Target:    ip,
				Rationale: fmt.Sprintf("host %s is alive but has no parsed port scan", ip),
				Priority:  90,
			})
			continue
		}

		ports, err := r.store.Children(host.ID, ids.RelHasPort)
		if err != nil {
			return nil, err
		}
		for j := range ports {
			portData, err := ports[j].DataMap()
			if err != nil {
				continue
			}
			portNum := jsonNumber(portData["port"])
			if portNum != 80 && portNum != 443 && portNum != 8080 {
				continue
			}
			enumerated, err := r.store.HasSuccessfulParse("gobuster_dir", webTarget(ip, portNum))
			if err != nil {
				return nil, err
			}
			if !enumerated {
				out = append(out, Suggestion{
					Kind:      intent.WebDirEnum,
					Target:    webTarget(ip, portNum),
					Rationale: fmt.Sprintf("web port %d open on %s with no directory enumeration", portNum, ip),
					Priority:  70,
				})
			}
		}

		services, err := servicesOfHost(r.store, host.ID)
		if err != nil {
			return nil, err
		}
		if len(services) > 0 {
			scanned, err := r.store.HasToolExecuted("nmap_vuln_scan", ip)
			if err != nil {
				return nil, err
			}
			if !scanned {
				out = append(out, Suggestion{
					Kind:      intent.VulnScan,
					Target:    ip,
					Rationale: fmt.Sprintf("%d identified services on %s without a vulnerability scan", len(services), ip),
					Priority:  60,
				})
			}
		}
	}

	for i := range out {
		tactic, ok := policy.TacticFor(out[i].Kind)
		if ok && r.policy.RequiresConfirmation(tactic) {
			out[i].NeedsApproval = true
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority > out[j].Priority })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func servicesOfHost(store dao.KnowledgeDAO, hostID string) ([]string, error) {
	ports, err := store.Children(hostID, ids.RelHasPort)
	if err != nil {
		return nil, err
	}
	var names []string
	for i := range ports {
		services, err := store.Children(ports[i].ID, ids.RelHasService)
		if err != nil {
			return nil, err
		}
		for j := range services {
			names = append(names, services[j].ID)
		}
	}
	return names, nil
}

func webTarget(ip string, port int) string {
	scheme := "http"
	if port == 443 {
		scheme = "https"
	}
	if port == 80 || port == 443 {
		return fmt.Sprintf("%s://%s", scheme, ip)
	}
	return fmt.Sprintf("%s://%s:%d", scheme, ip, port)
}

// jsonNumber copes with numbers decoded as float64 or json.Number.
func jsonNumber(value interface{}) int {
	switch n := value.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case json.Number:
		i, _ := n.Int64()
		return int(i)
	}
	return 0
}
