package ssh

import (
	"errors"
	"net"
	"strings"
)

// Failure kinds of a connection attempt. They are matched with errors.Is on
// the error returned by Dialer.Connect.
var (
	ErrBadHostKey   = errors.New("host key could not be verified")
	ErrAuthRejected = errors.New("authentication failed")
	ErrProtocol     = errors.New("ssh negotiation failed")
	ErrNetwork      = errors.New("socket could not be established")
)

// TransportError is a failure of the transport layer.
type TransportError struct {
	// Op is the failing step: dial, handshake, connect, exec, sftp.
	Op   string
	Kind error
	Err  error
}

func (e *TransportError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *TransportError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// Cause returns a human-readable sentence for a connection failure.
func Cause(err error) string {
	switch {
	case errors.Is(err, ErrBadHostKey):
		return "The host key could not be verified."
	case errors.Is(err, ErrAuthRejected):
		return "The authentication failed."
	case errors.Is(err, ErrProtocol):
		return "The SSH connection could not be established."
	case errors.Is(err, ErrNetwork):
		return "The socket could not be established."
	default:
		return err.Error()
	}
}

type hostKeyError struct {
	err error
}

func (e *hostKeyError) Error() string { return e.err.Error() }
func (e *hostKeyError) Unwrap() error { return e.err }

// classifyHandshake maps an error from the SSH handshake to a failure kind.
func classifyHandshake(err error) error {
	var hk *hostKeyError
	if errors.As(err, &hk) || strings.Contains(err.Error(), "knownhosts:") {
		return ErrBadHostKey
	}
	if strings.Contains(err.Error(), "unable to authenticate") {
		return ErrAuthRejected
	}
	// The socket is already up, so only a stalled peer counts as a network failure.
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrNetwork
	}
	return ErrProtocol
}
