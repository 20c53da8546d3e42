// internal/handlers/ws_codes.go
package handlers

import "github.com/coder/websocket"

// Application close codes sent on subscription sockets.
const (
	BadSubprotocolError websocket.StatusCode = 3000 // client did not negotiate the channel's subprotocol
	SlowConsumerError   websocket.StatusCode = 3005 // a write did not complete in time
)
