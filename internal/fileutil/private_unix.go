//go:build !windows

// Package fileutil creates the files and directories that hold a mailbox
// so that only the current user can read them. On Unix the permission bits
// do that; on Windows a DACL granting access to the current user only is
// applied as well.
package fileutil

import "os"

// MkdirPrivate creates dir and any missing parents with mode 0700.
func MkdirPrivate(dir string) error {
	return os.MkdirAll(dir, privateDirMode)
}

// CreatePrivate opens path with flag|O_CREATE, creating it with mode 0600.
func CreatePrivate(path string, flag int) (*os.File, error) {
	return os.OpenFile(path, flag|os.O_CREATE, privateFileMode)
}
