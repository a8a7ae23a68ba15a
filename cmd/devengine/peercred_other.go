//go:build !linux && !darwin && !freebsd && !netbsd && !openbsd
// +build !linux,!darwin,!freebsd,!netbsd,!openbsd

package main

import "net"

// peerUIDForConn has no peer-credential support on this platform;
// every socket peer is rejected.
func peerUIDForConn(c net.Conn) int {
	return -1
}
