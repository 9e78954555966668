// Package `packets` builds and parses the values carried inside frames.
//
// Every value is a map. Server requests are tagged with "req", everything else
// with "action".
package packets

// Keys and tags used on the wire.
const (
	KeyReq        = "req"
	KeyAction     = "action"
	KeyType       = "type"
	KeyLogin      = "login"
	KeyPassword   = "password"
	KeyLogType    = "log_type"
	KeyMsg        = "msg"
	KeyServerName = "server_name"
	KeyFrom       = "from"

	ReqAuth = "auth"

	ActionLog     = "log"
	ActionNet     = "net"
	ActionMessage = "message"

	LogError = "error"
	LogInfo  = "info"
)

// AuthRequest asks the peer for its credentials.
func AuthRequest() map[string]any {
	return map[string]any{KeyReq: ReqAuth}
}

// Log builds a diagnostic message. `serverName` is omitted when empty.
func Log(logType string, msg string, serverName string) map[string]any {
	p := map[string]any{
		KeyAction:  ActionLog,
		KeyLogType: logType,
		KeyMsg:     msg,
	}
	if serverName != "" {
		p[KeyServerName] = serverName
	}
	return p
}

// Message builds a chat-like message from `from` to be delivered to a session.
func Message(from string, msg string) map[string]any {
	return map[string]any{
		KeyAction: ActionMessage,
		KeyFrom:   from,
		KeyMsg:    msg,
	}
}

// Credentials sent by a client in response to [AuthRequest].
type Credentials struct {
	Login    string
	Password string
}

// ParseCredentials extracts the login and password from a handshake response.
// Returns false unless `v` is a map with string "login" and "password" fields.
func ParseCredentials(v any) (Credentials, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return Credentials{}, false
	}
	login, ok := m[KeyLogin].(string)
	if !ok {
		return Credentials{}, false
	}
	password, ok := m[KeyPassword].(string)
	if !ok {
		return Credentials{}, false
	}
	return Credentials{Login: login, Password: password}, true
}

// Invocation is a parsed "net" request.
type Invocation struct {
	Method string
	Args   map[string]any
}

// Action returns the action tag of a request, or "" if there is none.
func Action(m map[string]any) string {
	a, _ := m[KeyAction].(string)
	return a
}

// ParseInvocation reads a "net" request. Every field other than "action" and
// "type" ends up in Args. Returns false if the method name is missing.
func ParseInvocation(m map[string]any) (Invocation, bool) {
	method, ok := m[KeyType].(string)
	if !ok || method == "" {
		return Invocation{}, false
	}
	args := make(map[string]any, len(m))
	for k, v := range m {
		if k == KeyAction || k == KeyType {
			continue
		}
		args[k] = v
	}
	return Invocation{Method: method, Args: args}, true
}
