//go:build !windows

package health

import (
	"errors"
	"syscall"
)

// alive sends signal 0. EPERM means the pid exists but belongs to someone else.
func alive(pid int) bool {
	err := syscall.Kill(pid, 0)
	return err == nil || errors.Is(err, syscall.EPERM)
}
