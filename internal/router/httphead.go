package router

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// peekBudget is the max number of bytes router will buffer from the
// public connection before giving up on finding a full request line +
// headers. The peek is always bounded; the router never buffers an
// unbounded request.
const peekBudget = 4096

// parsedHead is everything the router needs out of the client's
// request line and headers, without consuming the connection: the
// raw bytes are replayed to the backend by the splice stage.
type parsedHead struct {
	authToken string
	model     string
}

// peekRequestHead buffers up to peekBudget bytes from r without
// consuming them from the eventual splice (callers must use the same
// *bufio.Reader downstream so nothing already Peek'd is lost), parses
// the HTTP request line and headers via net/http.ReadRequest, and
// extracts the Authorization token and, best-effort, a JSON body
// "model" field for model-aware routing.
func peekRequestHead(br *bufio.Reader) (parsedHead, error) {
	buf, err := br.Peek(peekBudget)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return parsedHead{}, fmt.Errorf("router: peek request head: %w", err)
	}
	if len(buf) == 0 {
		return parsedHead{}, fmt.Errorf("router: empty request")
	}

	req, err := http.ReadRequest(bufio.NewReader(bytes.NewReader(buf)))
	if err != nil {
		return parsedHead{}, fmt.Errorf("router: parse request: %w", err)
	}

	head := parsedHead{authToken: extractToken(req.Header.Get("Authorization"))}
	if isChatCompletionsRequest(req) && req.ContentLength > 0 && req.Body != nil {
		head.model = bestEffortModel(req.Body)
	}
	return head, nil
}

// isChatCompletionsRequest gates model-aware routing on the one
// request shape it applies to: any other method or path is routed
// without inspecting the body, even if that body happens to contain a
// top-level "model" field.
func isChatCompletionsRequest(req *http.Request) bool {
	return req.Method == http.MethodPost && req.URL.Path == "/v1/chat/completions"
}

// extractToken accepts both "Bearer <token>" and a bare token, a
// deliberately tolerant Authorization parse.
func extractToken(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	if rest, ok := strings.CutPrefix(header, "Bearer "); ok {
		return strings.TrimSpace(rest)
	}
	return header
}

// bestEffortModel reads at most peekBudget bytes of body looking for a
// top-level "model" JSON field. Any failure (truncated body, non-JSON,
// field absent) yields "" and the router falls back to random
// selection — model extraction is advisory, never a hard requirement.
func bestEffortModel(body io.Reader) string {
	limited := io.LimitReader(body, peekBudget)
	data, err := io.ReadAll(limited)
	if err != nil {
		return ""
	}
	var partial struct {
		Model string `json:"model"`
	}
	if err := json.Unmarshal(data, &partial); err != nil {
		return ""
	}
	return partial.Model
}
