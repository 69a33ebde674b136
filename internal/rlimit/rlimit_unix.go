//go:build linux || darwin

package rlimit

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// RaiseOpenFiles поднимает мягкий лимит RLIMIT_NOFILE до want, но не выше
// жёсткого. Возвращает действующий мягкий лимит.
func RaiseOpenFiles(want uint64) (uint64, error) {
	var lim unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &lim); err != nil {
		return 0, fmt.Errorf("getrlimit: %w", err)
	}

	if lim.Cur >= want {
		return lim.Cur, nil
	}

	target := min(want, lim.Max)
	if target <= lim.Cur {
		return lim.Cur, nil
	}

	lim.Cur = target
	if err := unix.Setrlimit(unix.RLIMIT_NOFILE, &lim); err != nil {
		return 0, fmt.Errorf("setrlimit %d: %w", target, err)
	}

	return target, nil
}
