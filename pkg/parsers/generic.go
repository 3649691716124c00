package parsers

import (
	"regexp"
	"strings"

	"sentra/pkg/ids"
)

// GenericParser is the fallback for tools without a structured parser.
// It yields no entities: the invocation still gets a complete execution
// record with its raw output retained, it just adds no knowledge.
type GenericParser struct{}

func (p *GenericParser) Parse(raw string, pctx Context) (*Result, error) {
	trimmed := strings.TrimSpace(raw)
	result := &Result{
		Metadata: map[string]interface{}{
			"bytes": len(raw),
			"lines": strings.Count(raw, "\n"),
		},
	}
	if trimmed == "" {
		result.Metadata["empty"] = true
	}
	return result, nil
}

var whoisFieldPattern = regexp.MustCompile(`(?i)^(registrar|creation date|registry expiry date|name server|org(?:anisation|anization)?):\s*(.+)$`)

// WhoisParser extracts registration facts from whois output. Domains
// themselves become dns entities so follow-up lookups merge onto the
// same node.
type WhoisParser struct{}

func (p *WhoisParser) Parse(raw string, pctx Context) (*Result, error) {
	result := &Result{Metadata: map[string]interface{}{}}

	facts := map[string]interface{}{}
	var nameServers []interface{}

	for _, line := range strings.Split(raw, "\n") {
		m := whoisFieldPattern.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		key := strings.ToLower(m[1])
		value := strings.TrimSpace(m[2])
		if strings.HasPrefix(key, "name server") {
			nameServers = append(nameServers, strings.ToLower(value))
			continue
		}
		facts[strings.ReplaceAll(key, " ", "_")] = value
	}

	if len(facts) == 0 && len(nameServers) == 0 {
		// whois for unregistered domains still exits cleanly
		return result, nil
	}

	if len(nameServers) > 0 {
		facts["name_servers"] = nameServers
	}
	facts["record_type"] = "WHOIS"
	facts["domain"] = strings.ToLower(pctx.Target)
	facts["value"] = "registration"

	record, err := newEntity(
		ids.DNS(pctx.Target), ids.KindDNS, pctx.ToolID, 0.9, facts)
	if err != nil {
		return nil, err
	}
	result.Entities = append(result.Entities, record)
	result.Metadata["fields"] = len(facts)
	return result, nil
}
