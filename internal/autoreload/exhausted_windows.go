// SPDX-License-Identifier: MPL-2.0

//go:build windows

package autoreload

import (
	"errors"
	"syscall"
)

// watcherExhausted reports Win32 failures that leave ReadDirectoryChangesW
// unusable: ERROR_TOO_MANY_OPEN_FILES, ERROR_INVALID_HANDLE and
// ERROR_NOT_ENOUGH_MEMORY.
func watcherExhausted(err error) bool {
	for _, errno := range []syscall.Errno{4, 6, 8} {
		if errors.Is(err, errno) {
			return true
		}
	}
	return false
}
