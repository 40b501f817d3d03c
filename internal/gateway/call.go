package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/chatbridge/chatbridge/internal/metrics"
)

var (
	// ErrTokenMismatch fires when a reply echoes a credential different
	// from the one sent. The reply body is untrusted in that case.
	ErrTokenMismatch = errors.New("gateway: response token mismatch")

	// ErrInvalidToken means the backend rejected the credential. The
	// stream is left alone; the host decides whether to re-authenticate.
	ErrInvalidToken = errors.New("gateway: credential rejected")
)

// APIError is a command the backend accepted but refused to execute.
type APIError struct {
	API string
	Msg string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gateway: %s failed: %s", e.API, e.Msg)
}

type callRequest struct {
	Token   string `json:"token"`
	APIName string `json:"apiName"`
	Data    string `json:"data,omitempty"`
}

type callResponse struct {
	Token string `json:"token"`
	Data  string `json:"data"`
}

type callPayload struct {
	Code json.RawMessage `json:"code"`
	Data json.RawMessage `json:"data"`
	Msg  string          `json:"msg"`
}

// Call issues one unary command. data is JSON-encoded into the request
// envelope; the decoded inner payload is returned on success.
func (g *Gateway) Call(ctx context.Context, apiName string, data any) (json.RawMessage, error) {
	start := time.Now()
	out, err := g.doCall(ctx, apiName, data)
	metrics.CallDuration.WithLabelValues(apiName).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.CallFailures.WithLabelValues(apiName).Inc()
	}
	return out, err
}

func (g *Gateway) doCall(ctx context.Context, apiName string, data any) (json.RawMessage, error) {
	req := callRequest{Token: g.token, APIName: apiName}
	if data != nil {
		encoded, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", apiName, err)
		}
		req.Data = string(encoded)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", apiName, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint+"/api", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", apiName, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", apiName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		g.logger.Error().Str("api", apiName).Msg("credential rejected")
		return nil, ErrInvalidToken
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("call %s: unexpected status %d", apiName, resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", apiName, err)
	}

	var envelope callResponse
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", apiName, err)
	}
	if envelope.Token != g.token {
		return nil, ErrTokenMismatch
	}

	var payload callPayload
	if err := json.Unmarshal([]byte(envelope.Data), &payload); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", apiName, err)
	}
	// Status codes arrive as a bare number or a quoted string depending
	// on the endpoint.
	if strings.Trim(string(payload.Code), `"`) != "1" {
		return nil, &APIError{API: apiName, Msg: payload.Msg}
	}
	return payload.Data, nil
}
