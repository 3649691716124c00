package parsers

import (
	"fmt"
	"strings"

	"sentra/pkg/ids"
)

// NmapSweepParser reads `nmap -sn` host discovery output.
type NmapSweepParser struct{}

func (p *NmapSweepParser) Parse(raw string, pctx Context) (*Result, error) {
	result := &Result{Metadata: map[string]interface{}{}}

	var currentIP, currentName string
	flush := func(latency string) error {
		if currentIP == "" {
			return nil
		}
		extra := map[string]interface{}{}
		if currentName != "" {
			extra["hostnames"] = []interface{}{currentName}
		}
		if latency != "" {
			extra["latency"] = latency
		}
		host, err := newHostEntity(currentIP, pctx.ToolID, true, 1.0, extra)
		if err != nil {
			return err
		}
		result.Entities = append(result.Entities, host)
		currentIP, currentName = "", ""
		return nil
	}

	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)

		if strings.HasPrefix(line, "Nmap scan report for ") {
			currentIP, currentName = scanReportTarget(line)
			continue
		}
		if strings.HasPrefix(line, "Host is up") && currentIP != "" {
			latency := ""
			if open := strings.IndexByte(line, '('); open != -1 {
				if closing := strings.IndexByte(line[open:], ')'); closing != -1 {
					latency = line[open+1 : open+closing]
				}
			}
			if err := flush(latency); err != nil {
				return nil, err
			}
		}
	}

	if len(result.Entities) == 0 {
		if strings.Contains(raw, "0 hosts up") {
			return result, nil
		}
		return nil, fmt.Errorf("no live hosts found in nmap sweep output")
	}

	result.Metadata["hosts_alive"] = len(result.Entities)
	return result, nil
}

// NmapPortScanParser reads `nmap -sT`/`-sS`/`-sV` output: one host
// entity per scanned address that has at least one open port (addresses
// without open ports yield no entity), one port entity per open port, a service
// entity when nmap names one, and the has_port / has_service edges
// between them.
type NmapPortScanParser struct{}

func (p *NmapPortScanParser) Parse(raw string, pctx Context) (*Result, error) {
	result := &Result{Metadata: map[string]interface{}{}}

	var currentIP string
	hostEmitted := make(map[string]bool)
	openPorts := 0

	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)

		if strings.HasPrefix(line, "Nmap scan report for ") {
			currentIP, _ = scanReportTarget(line)
			continue
		}
		if currentIP == "" {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		port, protocol, ok := ParsePortTriple(fields[0])
		if !ok {
			continue
		}
		state := fields[1]
		if state != "open" {
			continue
		}

		if !hostEmitted[currentIP] {
			host, err := newHostEntity(currentIP, pctx.ToolID, true, 1.0, nil)
			if err != nil {
				return nil, err
			}
			result.Entities = append(result.Entities, host)
			hostEmitted[currentIP] = true
		}

		portEntity, err := newPortEntity(currentIP, port, protocol, state, pctx.ToolID, 1.0)
		if err != nil {
			return nil, err
		}
		result.Entities = append(result.Entities, portEntity)
		result.Relationships = append(result.Relationships,
			relate(ids.Host(currentIP), portEntity.ID, ids.RelHasPort))
		openPorts++

		if len(fields) >= 3 && fields[2] != "unknown" {
			serviceName := fields[2]
			extra := map[string]interface{}{}
			if len(fields) > 3 {
				version := strings.Join(fields[3:], " ")
				extra["version"] = version
				extra["product_tokens"] = tokensAsInterface(TokenizeBanner(version))
			}
			service, err := newServiceEntity(portEntity.ID, serviceName, pctx.ToolID, 0.9, extra)
			if err != nil {
				return nil, err
			}
			result.Entities = append(result.Entities, service)
			result.Relationships = append(result.Relationships,
				relate(portEntity.ID, service.ID, ids.RelHasService))
		}
	}

	if len(result.Entities) == 0 {
		if strings.Contains(raw, "0 hosts up") || strings.Contains(raw, "closed") || strings.Contains(raw, "filtered") {
			return result, nil
		}
		return nil, fmt.Errorf("no ports found in nmap output")
	}

	result.Metadata["open_ports"] = openPorts
	return result, nil
}

// scanReportTarget extracts the address (and optional reverse name)
// from a "Nmap scan report for" line. Both "report for 10.0.0.1" and
// "report for name (10.0.0.1)" occur.
func scanReportTarget(line string) (ip, name string) {
	rest := strings.TrimPrefix(line, "Nmap scan report for ")
	if open := strings.IndexByte(rest, '('); open != -1 {
		name = strings.TrimSpace(rest[:open])
		ip = strings.Trim(rest[open:], "()")
		return ip, name
	}
	return strings.TrimSpace(rest), ""
}

func tokensAsInterface(tokens []string) []interface{} {
	out := make([]interface{}, 0, len(tokens))
	for _, t := range tokens {
		out = append(out, t)
	}
	return out
}
