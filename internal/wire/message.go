// Package wire defines the framed-JSON control-plane protocol shared by
// the server's three listeners and the client.
package wire

import (
	"encoding/json"
	"fmt"
)

// Type discriminates the payload carried by a Message.
type Type string

const (
	TypeLogin                Type = "Login"
	TypeLoginByToken         Type = "LoginByToken"
	TypeLoginResult          Type = "LoginResult"
	TypeRegister             Type = "Register"
	TypeRegisterResult       Type = "RegisterResult"
	TypeHeartbeat            Type = "Heartbeat"
	TypeSystemInfo           Type = "SystemInfo"
	TypeRequestNewProxyConn  Type = "RequestNewProxyConn"
	TypeNewProxyConn         Type = "NewProxyConn"
)

// Model is a single advertised capability. Only ID carries routing
// semantics; the rest is descriptive metadata passed through as-is.
type Model struct {
	ID      string `json:"id"`
	Object  string `json:"object,omitempty"`
	Created int64  `json:"created,omitempty"`
	OwnedBy string `json:"owned_by,omitempty"`
}

type LoginPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginByTokenPayload struct {
	Token string `json:"token"`
}

type LoginResultPayload struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Token   string `json:"token,omitempty"`
}

type RegisterPayload struct {
	ClientID string `json:"client_id"`
}

type RegisterResultPayload struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type HeartbeatPayload struct {
	Models []Model `json:"models,omitempty"`
}

type SystemInfoPayload struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	DiskPercent   float64 `json:"disk_percent"`
	ComputerName  string  `json:"computer_name"`
}

type RequestNewProxyConnPayload struct {
	PairID string `json:"pair_id"`
}

type NewProxyConnPayload struct {
	PairID string `json:"pair_id"`
}

// Message is the single envelope carried over every control-plane
// connection. Exactly one of the payload fields is populated,
// matching Type.
type Message struct {
	Type Type `json:"type"`

	Login               *LoginPayload               `json:"login,omitempty"`
	LoginByToken        *LoginByTokenPayload        `json:"login_by_token,omitempty"`
	LoginResult         *LoginResultPayload         `json:"login_result,omitempty"`
	Register            *RegisterPayload            `json:"register,omitempty"`
	RegisterResult      *RegisterResultPayload      `json:"register_result,omitempty"`
	Heartbeat           *HeartbeatPayload           `json:"heartbeat,omitempty"`
	SystemInfo          *SystemInfoPayload          `json:"system_info,omitempty"`
	RequestNewProxyConn *RequestNewProxyConnPayload `json:"request_new_proxy_conn,omitempty"`
	NewProxyConn        *NewProxyConnPayload        `json:"new_proxy_conn,omitempty"`
}

func NewLogin(email, password string) Message {
	return Message{Type: TypeLogin, Login: &LoginPayload{Email: email, Password: password}}
}

func NewLoginByToken(token string) Message {
	return Message{Type: TypeLoginByToken, LoginByToken: &LoginByTokenPayload{Token: token}}
}

func NewLoginResult(success bool, errMsg, token string) Message {
	return Message{Type: TypeLoginResult, LoginResult: &LoginResultPayload{Success: success, Error: errMsg, Token: token}}
}

func NewRegister(clientID string) Message {
	return Message{Type: TypeRegister, Register: &RegisterPayload{ClientID: clientID}}
}

func NewRegisterResult(success bool, errMsg string) Message {
	return Message{Type: TypeRegisterResult, RegisterResult: &RegisterResultPayload{Success: success, Error: errMsg}}
}

func NewHeartbeat(models []Model) Message {
	return Message{Type: TypeHeartbeat, Heartbeat: &HeartbeatPayload{Models: models}}
}

func NewSystemInfo(cpu, mem, disk float64, computerName string) Message {
	return Message{Type: TypeSystemInfo, SystemInfo: &SystemInfoPayload{
		CPUPercent: cpu, MemoryPercent: mem, DiskPercent: disk, ComputerName: computerName,
	}}
}

func NewRequestNewProxyConn(pairID string) Message {
	return Message{Type: TypeRequestNewProxyConn, RequestNewProxyConn: &RequestNewProxyConnPayload{PairID: pairID}}
}

func NewNewProxyConn(pairID string) Message {
	return Message{Type: TypeNewProxyConn, NewProxyConn: &NewProxyConnPayload{PairID: pairID}}
}

// Validate checks that the populated payload matches Type, catching
// malformed or tampered frames before a caller type-asserts a nil
// pointer.
func (m Message) Validate() error {
	present := func(ok bool) error {
		if !ok {
			return fmt.Errorf("wire: message type %q missing its payload", m.Type)
		}
		return nil
	}
	switch m.Type {
	case TypeLogin:
		return present(m.Login != nil)
	case TypeLoginByToken:
		return present(m.LoginByToken != nil)
	case TypeLoginResult:
		return present(m.LoginResult != nil)
	case TypeRegister:
		return present(m.Register != nil)
	case TypeRegisterResult:
		return present(m.RegisterResult != nil)
	case TypeHeartbeat:
		return present(m.Heartbeat != nil)
	case TypeSystemInfo:
		return present(m.SystemInfo != nil)
	case TypeRequestNewProxyConn:
		return present(m.RequestNewProxyConn != nil)
	case TypeNewProxyConn:
		return present(m.NewProxyConn != nil)
	default:
		return fmt.Errorf("wire: unknown message type %q", m.Type)
	}
}

// MarshalStrict is a thin wrapper kept for symmetry with UnmarshalStrict;
// it exists so callers don't reach for encoding/json directly and skip
// Validate.
func MarshalStrict(m Message) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(m)
}

func UnmarshalStrict(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("wire: decode: %w", err)
	}
	if err := m.Validate(); err != nil {
		return Message{}, err
	}
	return m, nil
}
