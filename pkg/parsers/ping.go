package parsers

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var pingTimePattern = regexp.MustCompile(`time[=<]([\d.]+)\s*ms`)

// PingParser detects liveness from ping output. Both the Linux
// ("64 bytes from 192.168.1.1: icmp_seq=1 ttl=64 time=0.5 ms") and
// Windows ("Reply from 192.168.1.1: bytes=32 time<1ms TTL=64") shapes
// are recognized.
type PingParser struct{}

func (p *PingParser) Parse(raw string, pctx Context) (*Result, error) {
	result := &Result{Metadata: map[string]interface{}{}}
	seen := make(map[string]bool)

	for _, line := range strings.Split(raw, "\n") {
		lower := strings.ToLower(line)
		if !strings.Contains(lower, "bytes from") && !strings.Contains(lower, "reply from") {
			continue
		}

		ips := ExtractIPs(line)
		if len(ips) == 0 {
			continue
		}
		ip := ips[0]
		if seen[ip] {
			continue
		}
		seen[ip] = true

		extra := map[string]interface{}{}
		if m := pingTimePattern.FindStringSubmatch(line); m != nil {
			if ms, err := strconv.ParseFloat(m[1], 64); err == nil {
				extra["response_time_ms"] = ms
			}
		}

		host, err := newHostEntity(ip, pctx.ToolID, true, 0.95, extra)
		if err != nil {
			return nil, err
		}
		result.Entities = append(result.Entities, host)
	}

	if len(result.Entities) == 0 {
		if strings.Contains(strings.ToLower(raw), "100% packet loss") {
			// Clean run, target silent. Empty output, not a parse failure.
			return result, nil
		}
		return nil, fmt.Errorf("no echo replies found in ping output")
	}

	result.Metadata["hosts_alive"] = len(result.Entities)
	return result, nil
}
