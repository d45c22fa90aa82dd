//go:build !release

package testutils

import (
	"net"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

// AddressWithPort reserves a free loopback port and returns its address. The port is released before returning so
// there is a small window in which another process could take it.
func AddressWithPort(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	address := l.Addr().String()
	require.NoError(t, l.Close())
	return address
}

// FreePort is AddressWithPort for callers that configure host and port separately.
func FreePort(t *testing.T) int {
	t.Helper()
	_, sPort, err := net.SplitHostPort(AddressWithPort(t))
	require.NoError(t, err)
	port, err := strconv.Atoi(sPort)
	require.NoError(t, err)
	return port
}

