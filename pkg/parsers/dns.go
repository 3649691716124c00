package parsers

import (
	"fmt"
	"strings"

	"sentra/pkg/ids"
)

// DNSParser reads dig answer rows ("name ttl IN type value") into dns
// record entities, linking A/AAAA answers to host entities via
// resolves_to. Other layouts, such as nslookup's "Name:"/"Address:"
// lines, are not recognized.
type DNSParser struct{}

var dnsRecordTypes = map[string]bool{
	"A": true, "AAAA": true, "CNAME": true, "MX": true,
	"NS": true, "TXT": true, "SOA": true, "PTR": true, "SRV": true,
}

func (p *DNSParser) Parse(raw string, pctx Context) (*Result, error) {
	result := &Result{Metadata: map[string]interface{}{}}
	seen := make(map[string]bool)

	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, ";") {
			continue
		}

		// dig answer rows: "example.com.  300  IN  A  93.184.216.34"
		fields := strings.Fields(line)
		if len(fields) < 5 || fields[2] != "IN" || !dnsRecordTypes[fields[3]] {
			continue
		}

		domain := strings.TrimSuffix(fields[0], ".")
		recordType := fields[3]
		value := strings.Join(fields[4:], " ")

		key := domain + "|" + recordType + "|" + value
		if seen[key] {
			continue
		}
		seen[key] = true

		record, err := newDNSEntity(domain, recordType, value, pctx.ToolID, 1.0)
		if err != nil {
			return nil, err
		}
		result.Entities = append(result.Entities, record)

		if recordType == "A" || recordType == "AAAA" {
			ips := ExtractIPs(value)
			if len(ips) == 1 {
				host, err := newHostEntity(ips[0], pctx.ToolID, false, 0.8, nil)
				if err != nil {
					return nil, err
				}
				result.Entities = append(result.Entities, host)
				result.Relationships = append(result.Relationships,
					relate(record.ID, host.ID, ids.RelResolvesTo))
			}
		}
	}

	if len(result.Entities) == 0 {
		if strings.Contains(raw, "ANSWER: 0") || strings.Contains(strings.ToLower(raw), "can't find") {
			return result, nil
		}
		return nil, fmt.Errorf("no answer records found in dns output")
	}

	result.Metadata["records"] = len(result.Entities)
	return result, nil
}
