package websocket

// NewServerConn returns a server-role Conn in the Connecting state. Feed it
// raw handshake bytes via ReceiveData, or call Accept directly with a
// request the host parsed itself, per §4.F.
func NewServerConn(opts Options) *Conn {
	return newConn(RoleServer, opts, nil)
}
