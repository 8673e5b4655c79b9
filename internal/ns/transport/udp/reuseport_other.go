//go:build !linux

package udp

// setReusePort is a no-op outside Linux: SO_REUSEPORT-based worker pools
// and the batched recvmmsg/sendmmsg pipeline are both Linux-specific. On
// other platforms a second worker socket cannot bind the address the first
// one holds, so Listener.Run returns that bind error unless the Listener
// has a single worker.
func setReusePort(fd uintptr) error {
	return nil
}
