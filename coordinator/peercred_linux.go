// Copyright 2026 The Foreman Authors
// SPDX-License-Identifier: Apache-2.0

//go:build linux

package coordinator

import (
	"fmt"
	"net"
	"os"

	"golang.org/x/sys/unix"
)

// checkPeerCredentials verifies that the connecting process runs as
// the same user as this one. The runtime directory is created 0700,
// but the directory could have been pre-created with looser
// permissions by something else; SO_PEERCRED closes that hole at the
// cost of one getsockopt per connection.
func checkPeerCredentials(conn net.Conn) error {
	unixConn, ok := conn.(*net.UnixConn)
	if !ok {
		return fmt.Errorf("connection is %T, not a Unix socket", conn)
	}

	raw, err := unixConn.SyscallConn()
	if err != nil {
		return fmt.Errorf("accessing raw connection: %w", err)
	}

	var credentials *unix.Ucred
	var sockoptErr error
	if err := raw.Control(func(fd uintptr) {
		credentials, sockoptErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	}); err != nil {
		return fmt.Errorf("reading peer credentials: %w", err)
	}
	if sockoptErr != nil {
		return fmt.Errorf("reading peer credentials: %w", sockoptErr)
	}

	if int(credentials.Uid) != os.Getuid() {
		return fmt.Errorf("peer uid %d does not match own uid %d", credentials.Uid, os.Getuid())
	}
	return nil
}
