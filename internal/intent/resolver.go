package intent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	sentraerrors "sentra/pkg/errors"
	"sentra/pkg/logger"
)

const resolverPrompt = `You are an intent resolver for a security testing assistant.
Analyze the user's request and decide ONLY their intent.

RULES:
1. NEVER name a tool (nmap, gobuster, ...).
2. NEVER produce command arguments (-sS, -p, ...).
3. NEVER assign risk levels or privilege requirements.
4. Fill "target" only when the user names a SPECIFIC IP, CIDR range, domain or URL.
   Generic phrases like "the target" or "this network" leave target empty.
5. Respond with STRICT JSON only, no prose, matching:
   {"intent_type": "...", "target": "...", "params": {...}, "rationale": "...",
    "needs_clarification": false, "clarification_reason": ""}

INTENT TYPES: %s

PARAM KEYS (only when the user states them): count, ports, port, wordlist,
extensions, record_type, username, userlist, password, passlist, url, data.

If the request cannot be understood, use intent_type "unknown" with
needs_clarification true.`

// Resolver is the single entry point to the LLM collaborator. It makes
// one deterministic call per request; there are no prompt retries.
type Resolver struct {
	endpoint string
	model    string
	client   *http.Client
	logger   *logger.Logger
}

// NewResolver points at an OpenAI-compatible chat endpoint. The default
// collaborator is a local Ollama instance.
func NewResolver(endpoint, model string) *Resolver {
	if endpoint == "" {
		endpoint = "http://localhost:11434"
	}
	return &Resolver{
		endpoint: strings.TrimRight(endpoint, "/"),
		model:    model,
		client: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				IdleConnTimeout:     30 * time.Second,
				MaxIdleConnsPerHost: 10,
			},
		},
		logger: logger.NewLogger(logrus.InfoLevel),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Resolve turns user text into a typed Intent. targetHint, when the UI
// supplies one, is prepended as context. Any response that names tools
// or argv is rejected with ErrIntentSchemaViolation.
func (r *Resolver) Resolve(ctx context.Context, userText, targetHint string) (*Intent, error) {
	kindNames := make([]string, 0, len(Kinds()))
	for _, k := range Kinds() {
		kindNames = append(kindNames, string(k))
	}

	content := userText
	if targetHint != "" {
		content = fmt.Sprintf("[target: %s]\n%s", targetHint, userText)
	}

	payload := chatRequest{
		Model: r.model,
		Messages: []chatMessage{
			{Role: "system", Content: fmt.Sprintf(resolverPrompt, strings.Join(kindNames, ", "))},
			{Role: "user", Content: content},
		},
		Temperature: 0.1,
		MaxTokens:   300,
	}

	raw, err := r.call(ctx, payload)
	if err != nil {
		return nil, err
	}

	resolved, err := parseIntentJSON(raw)
	if err != nil {
		return nil, err
	}
	resolved.FilterParams()

	r.logger.WithFields(logger.Fields{
		"intent": resolved.Kind,
		"target": resolved.Target,
	}).Info("Intent resolved")

	return resolved, nil
}

// Available probes the collaborator without resolving anything.
func (r *Resolver) Available(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.endpoint+"/v1/models", nil)
	if err != nil {
		return false
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (r *Resolver) call(ctx context.Context, payload chatRequest) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		r.endpoint+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", sentraerrors.ErrCancelled
		}
		return "", fmt.Errorf("%w: %v", sentraerrors.ErrLlmUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: endpoint returned %d", sentraerrors.ErrLlmUnavailable, resp.StatusCode)
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("%w: %v", sentraerrors.ErrLlmUnavailable, err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("%w: empty completion", sentraerrors.ErrLlmUnavailable)
	}
	return parsed.Choices[0].Message.Content, nil
}

// Markers that mean the model ignored its constraints and produced tool
// knowledge. Such responses are rejected outright.
var forbiddenMarkers = regexp.MustCompile(
	`(?i)\b(nmap|gobuster|nikto|dirb|hydra|sqlmap|whois|dig|nslookup|curl|wget)\b|(^|\s)-{1,2}[a-zA-Z]`)

// parseIntentJSON extracts and validates the intent object from the raw
// completion text.
func parseIntentJSON(raw string) (*Intent, error) {
	jsonText := extractJSON(raw)

	var resolved Intent
	if err := json.Unmarshal([]byte(jsonText), &resolved); err != nil {
		return nil, fmt.Errorf("%w: %v", sentraerrors.ErrIntentSchemaViolation, err)
	}

	if !resolved.Kind.Valid() {
		return nil, fmt.Errorf("%w: %q", sentraerrors.ErrUnknownIntent, resolved.Kind)
	}

	// A response that smuggles tool names or flags into the target or
	// params violates the contract even if the JSON parses.
	suspect := []string{resolved.Target}
	for _, v := range resolved.Params {
		suspect = append(suspect, v)
	}
	for _, field := range suspect {
		if forbiddenMarkers.MatchString(field) {
			return nil, fmt.Errorf("%w: response names tools or arguments", sentraerrors.ErrIntentSchemaViolation)
		}
	}

	if resolved.Params == nil {
		resolved.Params = map[string]string{}
	}
	return &resolved, nil
}

// extractJSON pulls the first balanced JSON object out of the text,
// tolerating markdown fences.
func extractJSON(text string) string {
	if m := regexp.MustCompile("```(?:json)?\\s*(\\{[\\s\\S]*?\\})\\s*```").FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}

	start := strings.IndexByte(text, '{')
	if start == -1 {
		return text
	}
	depth := 0
	for i := start; i < len(text); i++ {
		switch text[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return text
}
