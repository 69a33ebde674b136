package ws

import "errors"

var (
	ErrConnectionClosed        = errors.New("connection closed")
	ErrConnectionEstablishment = errors.New("connection establishment failed")
	ErrProtocol                = errors.New("protocol error")
	ErrLivenessTimeout         = errors.New("heartbeat liveness timeout")
	ErrBind                    = errors.New("failed to bind listener")
)
