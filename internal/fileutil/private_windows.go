//go:build windows

package fileutil

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/sys/windows"
)

// MkdirPrivate creates dir and any missing parents, then limits every
// directory it created to the current user. Children inherit the DACL.
func MkdirPrivate(dir string) error {
	var created []string
	for p := filepath.Clean(dir); ; {
		if _, err := os.Stat(p); err == nil {
			break
		}
		created = append(created, p)
		parent := filepath.Dir(p)
		if parent == p {
			break
		}
		p = parent
	}
	if err := os.MkdirAll(dir, privateDirMode); err != nil {
		return err
	}
	for _, p := range created {
		restrict(p, true)
	}
	return nil
}

// CreatePrivate opens path with flag|O_CREATE and limits it to the current
// user.
func CreatePrivate(path string, flag int) (*os.File, error) {
	f, err := os.OpenFile(path, flag|os.O_CREATE, privateFileMode)
	if err != nil {
		return nil, err
	}
	restrict(path, false)
	return f, nil
}

// restrict replaces the DACL of path with one granting GENERIC_ALL to the
// current user. Failures are logged; the mode bits already apply.
func restrict(path string, dir bool) {
	if err := setOwnerOnlyDACL(path, dir); err != nil {
		slog.Warn("restrict file access", "path", path, "err", err)
	}
}

func setOwnerOnlyDACL(path string, dir bool) error {
	user, err := windows.GetCurrentProcessToken().GetTokenUser()
	if err != nil {
		return fmt.Errorf("current user: %w", err)
	}
	var inherit uint32 = windows.NO_INHERITANCE
	if dir {
		inherit = windows.CONTAINER_INHERIT_ACE | windows.OBJECT_INHERIT_ACE
	}
	acl, err := windows.ACLFromEntries([]windows.EXPLICIT_ACCESS{{
		AccessPermissions: windows.GENERIC_ALL,
		AccessMode:        windows.SET_ACCESS,
		Inheritance:       inherit,
		Trustee: windows.TRUSTEE{
			TrusteeForm:  windows.TRUSTEE_IS_SID,
			TrusteeType:  windows.TRUSTEE_IS_USER,
			TrusteeValue: windows.TrusteeValueFromSID(user.User.Sid),
		},
	}}, nil)
	if err != nil {
		return fmt.Errorf("build ACL: %w", err)
	}
	info := windows.DACL_SECURITY_INFORMATION | windows.PROTECTED_DACL_SECURITY_INFORMATION
	return windows.SetNamedSecurityInfo(path, windows.SE_FILE_OBJECT,
		windows.SECURITY_INFORMATION(info), nil, nil, acl, nil)
}
