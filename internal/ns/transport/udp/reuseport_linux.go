//go:build linux

package udp

import "golang.org/x/sys/unix"

// setReusePort enables SO_REUSEPORT on fd so multiple worker sockets can
// bind the same address and let the kernel load-balance incoming datagrams
// across them; each worker owns its own fd with no cross-worker sharing.
func setReusePort(fd uintptr) error {
	return unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
}
