// Package netutil allocates host ports for disposable stacks.
package netutil

import (
	"errors"
	"fmt"
	"net"
	"strconv"
)

// DefaultAttempts bounds the upward probe from a preferred port.
const DefaultAttempts = 20

// ErrNoFreePort reports that no bindable port was found within the probe
// ceiling.
var ErrNoFreePort = errors.New("no free port available")

// EnsureAvailablePort probes for a bindable TCP port starting at preferred,
// stepping up by one on collision, for at most attempts probes. The port is
// free at the instant of return only; the stack controller re-binds it later
// and a late collision surfaces as a stack-start failure.
func EnsureAvailablePort(preferred, attempts int) (int, error) {
	if preferred <= 0 || preferred > 65535 {
		return 0, fmt.Errorf("invalid preferred port %d", preferred)
	}
	if attempts <= 0 {
		attempts = DefaultAttempts
	}
	for port := preferred; port < preferred+attempts && port <= 65535; port++ {
		ln, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
		if err != nil {
			continue
		}
		ln.Close()
		return port, nil
	}
	return 0, fmt.Errorf("%w near %d after %d attempts", ErrNoFreePort, preferred, attempts)
}
