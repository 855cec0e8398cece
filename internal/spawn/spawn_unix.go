//go:build !windows

package spawn

import "syscall"

// detachAttr puts the child in its own session so it survives the master
// exiting and isn't sent signals targeted at the master's process group.
func detachAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setsid: true}
}
