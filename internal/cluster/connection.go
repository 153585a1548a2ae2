package cluster

// ConnectionState represents the current state of a secondary session's
// connection lifecycle.
type ConnectionState string

const (
	// StateDisconnected indicates no active connection; the worker is
	// either about to attempt a connect or waiting out a backoff.
	StateDisconnected ConnectionState = "disconnected"

	// StateConnecting indicates a connect attempt is in flight.
	StateConnecting ConnectionState = "connecting"

	// StateConnected indicates the transport session is established and
	// the handshake has completed.
	StateConnected ConnectionState = "connected"

	// StateStopped indicates the session's worker has given up (a
	// never-connected secondary exceeded its query timeout) and will not
	// retry until explicitly restarted.
	StateStopped ConnectionState = "stopped"
)
