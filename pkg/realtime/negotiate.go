package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/voltdesk/voltdesk/pkg/core"
)

const defaultNegotiateTimeout = 10 * time.Second

// HTTPNegotiator asks a session-issuance endpoint for a short-lived
// credential and the realtime join address.
//
// The endpoint's response shape is not contractually stable: the
// credential arrives as "client_secret" (a string or an object with a
// "value"), and the join address under "realtimeUrl" or nested in "raw"
// as "sessionUrl"/"joinUrl". The negotiator tries each in order.
type HTTPNegotiator struct {
	Endpoint   string
	APIKey     string
	HTTPClient *http.Client
}

func (n *HTTPNegotiator) CreateSession(ctx context.Context) (SessionInfo, error) {
	if strings.TrimSpace(n.Endpoint) == "" {
		return SessionInfo{}, core.NewInvalidRequestError("session endpoint must not be empty")
	}
	client := n.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultNegotiateTimeout}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.Endpoint, nil)
	if err != nil {
		return SessionInfo{}, core.NewTransportError("negotiate", err)
	}
	if n.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+n.APIKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return SessionInfo{}, core.NewTransportError("negotiate", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return SessionInfo{}, core.NewTransportError("negotiate", err)
	}
	if resp.StatusCode != http.StatusOK {
		return SessionInfo{}, core.NewTransportError("negotiate",
			fmt.Errorf("session endpoint returned status %d: %s", resp.StatusCode, truncate(string(body), 200)))
	}

	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return SessionInfo{}, core.NewTransportError("negotiate", fmt.Errorf("decode session response: %w", err))
	}

	info := SessionInfo{
		SessionToken: extractSecret(decoded),
		JoinAddress:  extractJoinAddress(decoded),
	}
	if info.SessionToken == "" {
		return SessionInfo{}, core.NewTransportError("negotiate", fmt.Errorf("session response carries no client secret"))
	}
	if info.JoinAddress == "" {
		return SessionInfo{}, core.NewTransportError("negotiate", fmt.Errorf("session response carries no join address"))
	}
	return info, nil
}

func extractSecret(decoded map[string]any) string {
	switch v := decoded["client_secret"].(type) {
	case string:
		return strings.TrimSpace(v)
	case map[string]any:
		if s, ok := v["value"].(string); ok {
			return strings.TrimSpace(s)
		}
	}
	if raw, ok := decoded["raw"].(map[string]any); ok {
		return extractSecret(raw)
	}
	return ""
}

func extractJoinAddress(decoded map[string]any) string {
	for _, key := range []string{"realtimeUrl", "sessionUrl", "joinUrl"} {
		if s, ok := decoded[key].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	if raw, ok := decoded["raw"].(map[string]any); ok {
		return extractJoinAddress(raw)
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
