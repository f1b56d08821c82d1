// Package appnotify defines the downstream sink the session engine
// notifies the app through, and a Redis-backed implementation of it.
package appnotify

// Sink is the notify-capable downstream transport the session engine
// pushes app-frame bytes through, and reads inbound app-frame bytes
// from. The BLE GATT notify pump and characteristic write path that
// ultimately carry these bytes to and from the phone are out of scope
// here; a Sink only has to move already-fragmented chunks.
type Sink interface {
	// Notify delivers one already-fragmented chunk (at most the app
	// protocol's notify chunk size) to the app.
	Notify(chunk []byte) error

	// Recv returns the next inbound chunk written by the app, blocking
	// until one is available or the sink is closed. A nil, nil result
	// means the sink closed with nothing pending.
	Recv() ([]byte, error)

	Close() error
}
