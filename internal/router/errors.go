package router

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// errorEnvelope is the canonical error body shared by the public
// router and the admin API: {"success":false,"data":null,
// "message":"<text>","timestamp":"<RFC3339>"}.
type errorEnvelope struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data"`
	Message   string      `json:"message"`
	Timestamp string      `json:"timestamp"`
}

// writeJSONError writes a minimal HTTP response carrying the
// canonical error envelope, since the public listener has no
// net/http.Server to hand the connection to — it is a raw net.Conn
// being rejected before any backend is chosen.
func writeJSONError(status int, message string) []byte {
	body, _ := json.Marshal(errorEnvelope{
		Success:   false,
		Data:      nil,
		Message:   message,
		Timestamp: time.Now().Format(time.RFC3339),
	})
	return []byte(fmt.Sprintf(
		"HTTP/1.1 %d %s\r\nContent-Type: application/json\r\nContent-Length: %d\r\nConnection: close\r\n\r\n%s",
		status, http.StatusText(status), len(body), body,
	))
}
