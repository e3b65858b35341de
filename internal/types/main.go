package types

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// AuthMode selects how a host is authenticated.
type AuthMode string

const (
	AuthPassword AuthMode = "password"
	AuthKey      AuthMode = "key"
)

// Inventory holds the hosts to manage, in declaration order.
type Inventory struct {
	Hosts []Host
}

// Host represents one machine in the inventory. Exactly one of Password or
// KeyFile is set, matching Auth.
type Host struct {
	Name          string
	Address       string
	Port          int
	User          string
	Auth          AuthMode
	Password      string
	KeyFile       string
	KeyPassphrase string
	SudoPassword  string
}

// PasswordAuth reports whether the host uses username + password authentication.
func (h Host) PasswordAuth() bool {
	return h.Auth == AuthPassword
}

// PrivilegePassword is the password fed to sudo for elevated commands.
func (h Host) PrivilegePassword() string {
	if h.SudoPassword != "" {
		return h.SudoPassword
	}
	return h.Password
}

// Endpoint returns the dialable host:port, bracketing IPv6 literals.
func (h Host) Endpoint() string {
	return net.JoinHostPort(h.Address, strconv.Itoa(h.Port))
}

// Todo is one declared action: a module name and its raw parameters.
// Params is decoded by the module variant that handles Module.
type Todo struct {
	Module string    `yaml:"module"`
	Params yaml.Node `yaml:"params"`
}

// NewTodo builds a Todo from a plain parameter map.
func NewTodo(module string, params map[string]any) (Todo, error) {
	t := Todo{Module: module}
	if params == nil {
		return t, nil
	}
	if err := t.Params.Encode(params); err != nil {
		return Todo{}, fmt.Errorf("encode params for %s: %w", module, err)
	}
	return t, nil
}

// DecodeParams decodes the raw parameters into out. A todo without params
// leaves out untouched.
func (t Todo) DecodeParams(out any) error {
	if t.Params.Kind == 0 {
		return nil
	}
	return t.Params.Decode(out)
}

// Outcome is the result of one reconcile call.
type Outcome int

const (
	Unchanged Outcome = iota
	Changed
	Failed
)

// String returns the textual form used in logs: ok, changed or ko.
func (o Outcome) String() string {
	switch o {
	case Unchanged:
		return "ok"
	case Changed:
		return "changed"
	case Failed:
		return "ko"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Keyword is the uppercased form printed on the per-todo summary line.
func (o Outcome) Keyword() string {
	return strings.ToUpper(o.String())
}
