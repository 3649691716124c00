package parsers

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"sentra/pkg/ids"
)

// Gobuster dir lines look like:
//
//	/admin                (Status: 301) [Size: 178] [--> http://10.0.0.5/admin/]
//	/index.html           (Status: 200) [Size: 4523]
var gobusterLine = regexp.MustCompile(`^(/\S*)\s+\(Status:\s*(\d{3})\)(?:\s*\[Size:\s*(\d+)\])?`)

// GobusterDirParser reads gobuster directory enumeration output into
// web resource entities hanging off the scanned service.
type GobusterDirParser struct{}

func (p *GobusterDirParser) Parse(raw string, pctx Context) (*Result, error) {
	serviceID := pctx.UpstreamIDs["service_id"]
	if serviceID == "" {
		// No upstream service known: derive a stable one from the
		// target so re-runs still merge.
		serviceID = deriveServiceID(pctx.Target)
	}

	base := strings.TrimRight(pctx.Target, "/")
	result := &Result{Metadata: map[string]interface{}{}}

	for _, line := range strings.Split(raw, "\n") {
		m := gobusterLine.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}

		path := m[1]
		status, _ := strconv.Atoi(m[2])
		size := 0
		if m[3] != "" {
			size, _ = strconv.Atoi(m[3])
		}

		kind := "file"
		if strings.HasSuffix(path, "/") || status == 301 || status == 302 {
			kind = "directory"
		}

		url := CanonicalURL(base + path)
		resource, err := newWebResourceEntity(serviceID, url, kind, pctx.ToolID, status, size, 0.9)
		if err != nil {
			return nil, err
		}
		result.Entities = append(result.Entities, resource)

		if pctx.UpstreamIDs["service_id"] != "" {
			result.Relationships = append(result.Relationships,
				relate(serviceID, resource.ID, ids.RelHasWebResource))
		}
	}

	if len(result.Entities) == 0 {
		if strings.Contains(raw, "Finished") || strings.Contains(raw, "===") {
			return result, nil
		}
		return nil, fmt.Errorf("no results found in gobuster output")
	}

	result.Metadata["resources_found"] = len(result.Entities)
	return result, nil
}

// deriveServiceID builds the canonical service id for a URL target when
// no upstream scan supplied one: host + scheme default port + http.
func deriveServiceID(target string) string {
	host := target
	scheme := "http"
	if idx := strings.Index(target, "://"); idx != -1 {
		scheme = strings.ToLower(target[:idx])
		host = target[idx+3:]
	}
	if slash := strings.IndexByte(host, '/'); slash != -1 {
		host = host[:slash]
	}
	port := 80
	if scheme == "https" {
		port = 443
	}
	if colon := strings.LastIndexByte(host, ':'); colon != -1 && !strings.Contains(host, "]") {
		if n, err := strconv.Atoi(host[colon+1:]); err == nil {
			port = n
			host = host[:colon]
		}
	}
	return ids.Service(ids.Port(host, port, "tcp"), scheme)
}
