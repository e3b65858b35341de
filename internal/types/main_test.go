package types

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHostEndpoint(t *testing.T) {
	tests := map[string]Host{
		"10.0.0.5:22":          {Address: "10.0.0.5", Port: 22},
		"db.internal:2222":     {Address: "db.internal", Port: 2222},
		"[::1]:22":             {Address: "::1", Port: 22},
		"[fe80::1%eth0]:22":    {Address: "fe80::1%eth0", Port: 22},
		"[2001:db8::10]:65535": {Address: "2001:db8::10", Port: 65535},
	}
	for want, host := range tests {
		require.Equal(t, want, host.Endpoint())
	}
}

func TestHostPrivilegePassword(t *testing.T) {
	require.Equal(t, "login", Host{Password: "login"}.PrivilegePassword())
	require.Equal(t, "root", Host{Password: "login", SudoPassword: "root"}.PrivilegePassword())
}

func TestOutcomeKeyword(t *testing.T) {
	require.Equal(t, "OK", Unchanged.Keyword())
	require.Equal(t, "CHANGED", Changed.Keyword())
	require.Equal(t, "KO", Failed.Keyword())
}
