//go:build !linux && !darwin

package rlimit

func RaiseOpenFiles(want uint64) (uint64, error) {
	return 0, ErrUnsupported
}
