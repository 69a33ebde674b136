package ws

import (
	"fmt"

	"github.com/gorilla/websocket"
)

type FrameKind uint8

const (
	FrameUnknown FrameKind = iota
	FramePing
	FramePong
	FrameText
	FrameBinary
	FrameClose
	FrameError
)

func (k FrameKind) String() string {
	switch k {
	case FramePing:
		return "ping"
	case FramePong:
		return "pong"
	case FrameText:
		return "text"
	case FrameBinary:
		return "binary"
	case FrameClose:
		return "close"
	case FrameError:
		return "error"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// Frame - одна единица протокола WebSocket. Для Close в Payload лежит причина,
// для Error - причина транспортной ошибки в Err.
type Frame struct {
	Kind      FrameKind
	Payload   []byte
	CloseCode int
	Err       error
}

func NewPing(payload []byte) Frame {
	return Frame{Kind: FramePing, Payload: payload}
}

func NewPong(payload []byte) Frame {
	return Frame{Kind: FramePong, Payload: payload}
}

func NewText(payload []byte) Frame {
	return Frame{Kind: FrameText, Payload: payload}
}

func NewBinary(payload []byte) Frame {
	return Frame{Kind: FrameBinary, Payload: payload}
}

func NewClose(code int, reason string) Frame {
	return Frame{Kind: FrameClose, CloseCode: code, Payload: []byte(reason)}
}

func NewErrorFrame(err error) Frame {
	return Frame{Kind: FrameError, Err: err}
}

func (f Frame) Reason() string {
	return string(f.Payload)
}

func (f Frame) messageType() (int, bool) {
	switch f.Kind {
	case FrameText:
		return websocket.TextMessage, true
	case FrameBinary:
		return websocket.BinaryMessage, true
	case FramePing:
		return websocket.PingMessage, true
	case FramePong:
		return websocket.PongMessage, true
	case FrameClose:
		return websocket.CloseMessage, true
	default:
		return 0, false
	}
}

func frameFromMessage(messageType int, data []byte) Frame {
	switch messageType {
	case websocket.TextMessage:
		return NewText(data)
	case websocket.BinaryMessage:
		return NewBinary(data)
	default:
		return Frame{Kind: FrameUnknown, Payload: data}
	}
}
