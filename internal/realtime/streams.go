package realtime

// StreamSession carries session lifecycle notices for the connected device.
const StreamSession = "session"

// Events pushed on StreamSession.
const (
	EventConnected         = "session.connected"
	EventSessionTerminated = "session.terminated"
	EventPong              = "pong"
)

// CloseSessionTerminated is the WebSocket close code sent after a termination notice.
const CloseSessionTerminated = 4001
