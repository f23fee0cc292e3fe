//go:build !unix

package listener

import "syscall"

// setReuseAddr is a no-op on non-unix platforms; SO_REUSEADDR has no
// equivalent bind-time setsockopt worth wiring outside of production
// deployment targets, which are unix.
func setReuseAddr(network, address string, c syscall.RawConn) error {
	return nil
}
