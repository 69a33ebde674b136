// Package rlimit поднимает лимит открытых файлов: каждое WebSocket
// соединение стенда держит дескриптор, а в совмещённом режиме - два.
package rlimit

import "errors"

var ErrUnsupported = errors.New("rlimit is not supported on this platform")

// Want возвращает лимит дескрипторов, достаточный для раунда из n соединений
// с обеими сторонами в одном процессе.
func Want(n int) uint64 {
	if n < 0 {
		n = 0
	}

	return uint64(2*n + 64)
}
