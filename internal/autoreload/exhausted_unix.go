// SPDX-License-Identifier: MPL-2.0

//go:build !windows

package autoreload

import (
	"errors"
	"syscall"
)

// watcherExhausted reports whether inotify ran out of watches or
// descriptors. Events are lost from then on, so only polling still sees
// module changes.
func watcherExhausted(err error) bool {
	for _, errno := range []syscall.Errno{syscall.ENOSPC, syscall.EMFILE, syscall.ENFILE} {
		if errors.Is(err, errno) {
			return true
		}
	}
	return false
}
