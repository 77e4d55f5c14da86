package stack

import (
	"net/netip"

	"github.com/kernio/netstack"
	"github.com/kernio/netstack/internal"
	"github.com/kernio/netstack/tcp"
)

// socket is a slot in the stack's fixed socket pool. Identifier 0 marks a
// free slot; live sockets always carry a non-zero identifier so that a stale
// [Socket] handle cannot operate on a recycled slot.
type socket struct {
	id    uint16
	proto netstack.IPProto
	lport uint16
	rport uint16
	rip   [4]byte
	conn  tcpConn
	rx    internal.Ring
}

// tcpConn is the connection record of a TCP socket: the state machine
// position and the two sequence space cursors.
type tcpConn struct {
	state tcp.State
	// snd is the sequence number of the next octet we will send (SND.NXT).
	snd tcp.Value
	// rcv is the sequence number of the next octet we expect (RCV.NXT).
	rcv tcp.Value
}

// Socket is a handle to a socket in the stack's pool. Handles are returned by
// [Stack.Socket] and become invalid after Close; all methods on an invalid
// handle fail with an error.
type Socket struct {
	stk *Stack
	idx int
	id  uint16
}

// Socket allocates a socket for the given protocol, one of
// [netstack.IPProtoUDP], [netstack.IPProtoTCP] or [netstack.IPProtoICMP].
// Returns [ErrNoSpace] when all slots are taken.
func (st *Stack) Socket(proto netstack.IPProto) (Socket, error) {
	switch proto {
	case netstack.IPProtoUDP, netstack.IPProtoTCP, netstack.IPProtoICMP:
	default:
		return Socket{}, errProtoUnsupport
	}
	for i := range st.socks {
		sock := &st.socks[i]
		if sock.id != 0 {
			continue
		}
		st.nextID++
		if st.nextID == 0 {
			st.nextID = 1
		}
		buf := sock.rx.Buf
		if buf == nil {
			buf = make([]byte, socketBufSize)
		}
		*sock = socket{id: st.nextID, proto: proto}
		sock.rx.Buf = buf
		return Socket{stk: st, idx: i, id: sock.id}, nil
	}
	return Socket{}, ErrNoSpace
}

// get returns the pool slot backing s, or nil if s was closed.
func (s Socket) get() *socket {
	if s.stk == nil || s.id == 0 {
		return nil
	}
	sock := &s.stk.socks[s.idx]
	if sock.id != s.id {
		return nil
	}
	return sock
}

// Bind sets the socket's local port. No uniqueness check is performed; when
// two sockets bind the same port the one earliest in the pool receives all
// traffic for it.
func (s Socket) Bind(port uint16) error {
	sock := s.get()
	if sock == nil {
		return errClosedSocket
	}
	sock.lport = port
	return nil
}

// Connect sets the socket's remote address. For UDP this only records the
// datagram destination. For TCP it starts the three-way handshake and the
// socket transitions to SYN-SENT; completion is observed by polling [Socket.State].
//
// When the remote hardware address is not cached yet Connect broadcasts an
// ARP request and fails with [ErrARPInProgress]; the caller retries the whole
// Connect call.
func (s Socket) Connect(addr netip.Addr, port uint16) error {
	sock := s.get()
	if sock == nil {
		return errClosedSocket
	}
	if !addr.Is4() {
		return errBadConfig
	}
	st := s.stk
	switch sock.proto {
	case netstack.IPProtoUDP:
		sock.rip = addr.As4()
		sock.rport = port
		if sock.lport == 0 {
			sock.lport = st.ephemeralPort()
		}
		return nil
	case netstack.IPProtoTCP:
		if sock.conn.state.IsPreestablished() || sock.conn.state.IsSynchronized() {
			return errInvalidState
		}
		// Resolve before allocating any connection state so that a retry
		// after ErrARPInProgress starts from scratch.
		if _, err := st.resolve(st.nextHop(addr.As4())); err != nil {
			return err
		}
		sock.rip = addr.As4()
		sock.rport = port
		if sock.lport == 0 {
			sock.lport = st.ephemeralPort()
		}
		return st.tcpOpen(sock)
	}
	return errUnsupportedOp
}

// Send transmits payload to the connected remote. UDP sends one datagram, TCP
// one segment. The data is on the wire when Send returns; nothing is queued
// and nothing is retransmitted.
func (s Socket) Send(payload []byte) error {
	sock := s.get()
	if sock == nil {
		return errClosedSocket
	}
	switch sock.proto {
	case netstack.IPProtoUDP:
		if sock.rport == 0 {
			return errNotConnected
		}
		return s.stk.sendUDP(sock, payload)
	case netstack.IPProtoTCP:
		if sock.conn.state != tcp.StateEstablished {
			return errInvalidState
		}
		return s.stk.tcpSendData(sock, payload)
	}
	return errUnsupportedOp
}

// Recv drains up to len(b) received bytes into b. Recv never blocks: it
// returns 0 when no data is buffered. Data that overflowed the socket's
// receive buffer before this call was discarded by the receive loop.
func (s Socket) Recv(b []byte) (int, error) {
	sock := s.get()
	if sock == nil {
		return 0, errClosedSocket
	}
	if sock.proto == netstack.IPProtoICMP {
		return 0, errUnsupportedOp
	}
	return sock.rx.Read(b), nil
}

// Close releases the socket back to the pool. An established TCP connection
// emits a FIN and its record is freed immediately without waiting for the
// terminating handshake to finish; the remote's closing segments will find no
// connection and be dropped.
func (s Socket) Close() error {
	sock := s.get()
	if sock == nil {
		return errClosedSocket
	}
	var err error
	if sock.proto == netstack.IPProtoTCP {
		err = s.stk.tcpClose(sock)
	}
	s.stk.freeSocket(sock)
	return err
}

// State returns the TCP connection state of the socket. Callers poll it to
// observe handshake completion after Connect. Non-TCP and closed sockets
// report CLOSED.
func (s Socket) State() tcp.State {
	sock := s.get()
	if sock == nil || sock.proto != netstack.IPProtoTCP {
		return tcp.StateClosed
	}
	return sock.conn.state
}

// LocalPort returns the socket's bound or ephemeral port, zero if unbound.
func (s Socket) LocalPort() uint16 {
	sock := s.get()
	if sock == nil {
		return 0
	}
	return sock.lport
}

func (st *Stack) freeSocket(sock *socket) {
	sock.id = 0
	sock.proto = 0
	sock.lport = 0
	sock.rport = 0
	sock.rip = [4]byte{}
	sock.conn = tcpConn{}
	sock.rx.Reset()
}

// ephemeralPort hands out ports from the dynamic range. Ports are not checked
// for collision with bound sockets, same as Bind.
func (st *Stack) ephemeralPort() uint16 {
	p := st.nextPort
	st.nextPort++
	if st.nextPort < 0x8000 {
		st.nextPort = 0x8000
	}
	return p
}
