// Package clientside implements the tunneling agent: it dials the
// server's control port, authenticates, registers a client_id,
// advertises its model catalog on a heartbeat cadence, and answers
// RequestNewProxyConn by dialing back and splicing to a local service.
// Grounded on Summpot-prism's tunnel.Client reconnect-with-backoff loop
// (other_examples/d4ac065b_Summpot-prism__internal-tunnel-client.go.go)
// for the top-level Run shape, generalized from its QUIC/stream
// transport to this system's framed control connection.
package clientside

import (
	"encoding/json"
	"fmt"
	"os"
)

// tokenFile is the on-disk persistence format: a JSON object
// {"token": "<opaque>"} stored in the configured working directory so
// a restarted agent can reconnect without re-prompting for a password.
type tokenFile struct {
	Token string `json:"token"`
}

func loadToken(path string) (string, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	var tf tokenFile
	if err := json.Unmarshal(data, &tf); err != nil {
		return "", false
	}
	return tf.Token, tf.Token != ""
}

func saveToken(path, token string) error {
	data, err := json.MarshalIndent(tokenFile{Token: token}, "", "  ")
	if err != nil {
		return fmt.Errorf("clientside: marshal token: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("clientside: write token file: %w", err)
	}
	return nil
}
