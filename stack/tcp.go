package stack

import (
	"log/slog"

	"github.com/kernio/netstack"
	"github.com/kernio/netstack/internal"
	"github.com/kernio/netstack/ipv4"
	"github.com/kernio/netstack/tcp"
)

// tcpWindow is the window advertised on every outbound segment. It matches
// the socket receive buffer capacity and is never scaled or adjusted.
const tcpWindow = socketBufSize

// tcpOpen performs the active open: the SYN is sent and the socket enters
// SYN-SENT. The hardware address was resolved by the caller.
func (st *Stack) tcpOpen(sock *socket) error {
	sock.conn.snd = st.isn.Next(st.addr, sock.lport, sock.rip, sock.rport)
	sock.conn.rcv = 0
	err := st.sendTCP(sock, tcp.FlagSYN, nil)
	if err != nil {
		return err
	}
	sock.conn.snd++ // SYN occupies one sequence number.
	sock.conn.state = tcp.StateSynSent
	st.debug("tcp:open", slog.Uint64("lport", uint64(sock.lport)), internal.SlogAddr4("rip", &sock.rip))
	return nil
}

// tcpSendData transmits one data segment. The payload is acknowledged by the
// peer but never retransmitted: a lost segment stalls the connection.
func (st *Stack) tcpSendData(sock *socket, payload []byte) error {
	err := st.sendTCP(sock, tcp.FlagsPshAck, payload)
	if err != nil {
		return err
	}
	sock.conn.snd = tcp.Add(sock.conn.snd, tcp.Size(len(payload)))
	return nil
}

// tcpClose terminates the connection. A synchronized connection emits a
// FIN,ACK but the connection record is freed immediately rather than walking
// FIN-WAIT or LAST-ACK: the terminating handshake's remaining segments will
// find no connection and be dropped by the receive loop.
func (st *Stack) tcpClose(sock *socket) error {
	var err error
	// Synchronized connections and the half-open SYN-RECEIVED case announce
	// the close with a FIN,ACK; anything earlier just vanishes.
	if sock.conn.state.IsSynchronized() || sock.conn.state == tcp.StateSynRcvd {
		err = st.sendTCP(sock, tcp.FlagsFinAck, nil)
	}
	sock.conn = tcpConn{}
	return err
}

// sendTCP builds and transmits one segment carrying the connection's current
// cursors: SEQ from snd, ACK from rcv.
func (st *Stack) sendTCP(sock *socket, flags tcp.Flags, payload []byte) error {
	ifrm, pkt, err := st.beginIP(sock.rip, netstack.IPProtoTCP, netstack.SizeHeaderTCP+len(payload))
	if err != nil {
		return err
	}
	tfrm, err := tcp.NewFrame(pkt)
	if err != nil {
		return err
	}
	tfrm.SetSourcePort(sock.lport)
	tfrm.SetDestinationPort(sock.rport)
	tfrm.SetSegment(tcp.Segment{
		SEQ:     sock.conn.snd,
		ACK:     sock.conn.rcv,
		WND:     tcpWindow,
		DATALEN: tcp.Size(len(payload)),
		Flags:   flags,
	}, 5)
	tfrm.SetUrgentPtr(0)
	copy(tfrm.Payload(), payload)
	var crc netstack.CRC791
	ifrm.CRCWriteTCPPseudo(&crc)
	tfrm.SetCRC(tfrm.CalculateCRC(&crc))
	if internal.LogEnabled(st.log, internal.LevelTrace) {
		st.trace("tcp:send", slog.String("segment", tfrm.String()))
	}
	return st.finishIP(ifrm)
}

// recvTCP verifies and demuxes an inbound segment. An exact four-tuple match
// wins; failing that a SYN may land on a bound connectionless socket, which
// accepts it implicitly without any listen or accept call. Segments matching
// nothing are dropped silently.
func (st *Stack) recvTCP(ifrm ipv4.Frame) error {
	tfrm, err := tcp.NewFrame(ifrm.Payload())
	if err != nil {
		return err
	}
	tfrm.ValidateExceptCRC(&st.vld)
	if st.vld.HasError() {
		return st.vld.ErrPop()
	}
	var crc netstack.CRC791
	ifrm.CRCWriteTCPPseudo(&crc)
	if tfrm.CalculateCRC(&crc) != tfrm.CRC() {
		return netstack.ErrBadCRC
	}
	src := *ifrm.SourceAddr()
	seg := tfrm.Segment(len(tfrm.Payload()))
	sock := st.tcpDemux(src, tfrm.SourcePort(), tfrm.DestinationPort(), seg.Flags)
	if sock == nil {
		st.trace("tcp:drop-nosock", slog.Uint64("port", uint64(tfrm.DestinationPort())))
		return nil
	}
	if internal.LogEnabled(st.log, internal.LevelTrace) {
		st.trace("tcp:recv", slog.String("segment", tfrm.String()), slog.String("state", sock.conn.state.String()))
	}
	switch sock.conn.state {
	case tcp.StateClosed:
		return st.tcpAccept(sock, src, tfrm.SourcePort(), seg)
	case tcp.StateSynSent:
		return st.tcpRcvSynSent(sock, seg)
	case tcp.StateSynRcvd:
		return st.tcpRcvSynRcvd(sock, seg)
	case tcp.StateEstablished:
		return st.tcpRcvEstablished(sock, seg, tfrm.Payload())
	case tcp.StateFinWait1:
		return st.tcpRcvFinWait1(sock, seg)
	case tcp.StateFinWait2:
		return st.tcpRcvFinWait2(sock, seg)
	case tcp.StateLastAck:
		return st.tcpRcvLastAck(sock, seg)
	case tcp.StateCloseWait:
		// Data transfer is over; only the local close makes progress here.
		return nil
	}
	return nil
}

func (st *Stack) tcpDemux(src [4]byte, srcPort, dstPort uint16, flags tcp.Flags) *socket {
	for i := range st.socks {
		sock := &st.socks[i]
		if sock.id != 0 && sock.proto == netstack.IPProtoTCP &&
			sock.lport == dstPort && sock.rport == srcPort && sock.rip == src &&
			sock.conn.state != tcp.StateClosed {
			return sock
		}
	}
	if !flags.HasAll(tcp.FlagSYN) || flags.HasAny(tcp.FlagACK) {
		return nil
	}
	for i := range st.socks {
		sock := &st.socks[i]
		if sock.id != 0 && sock.proto == netstack.IPProtoTCP &&
			sock.lport == dstPort && sock.conn.state == tcp.StateClosed {
			return sock
		}
	}
	return nil
}

// tcpAccept is the implicit passive open: a SYN arriving at a bound socket
// adopts the sender as the socket's remote and answers SYN,ACK. There is no
// listen backlog; a second connection attempt while this one lives is dropped
// by the demux.
func (st *Stack) tcpAccept(sock *socket, src [4]byte, srcPort uint16, seg tcp.Segment) error {
	sock.rip = src
	sock.rport = srcPort
	sock.conn.rcv = tcp.Add(seg.SEQ, 1)
	sock.conn.snd = st.isn.Next(st.addr, sock.lport, sock.rip, sock.rport)
	err := st.sendTCP(sock, tcp.FlagsSynAck, nil)
	if err != nil {
		return err
	}
	sock.conn.snd++
	sock.conn.state = tcp.StateSynRcvd
	st.debug("tcp:accept", slog.Uint64("lport", uint64(sock.lport)), internal.SlogAddr4("rip", &src))
	return nil
}

func (st *Stack) tcpRcvSynSent(sock *socket, seg tcp.Segment) error {
	if !seg.Flags.HasAll(tcp.FlagsSynAck) || seg.ACK != sock.conn.snd {
		return nil
	}
	sock.conn.rcv = tcp.Add(seg.SEQ, 1)
	err := st.sendTCP(sock, tcp.FlagACK, nil)
	if err != nil {
		return err
	}
	sock.conn.state = tcp.StateEstablished
	st.debug("tcp:established", slog.Uint64("lport", uint64(sock.lport)))
	return nil
}

func (st *Stack) tcpRcvSynRcvd(sock *socket, seg tcp.Segment) error {
	if !seg.Flags.HasAll(tcp.FlagACK) || seg.ACK != sock.conn.snd {
		return nil
	}
	sock.conn.state = tcp.StateEstablished
	st.debug("tcp:established", slog.Uint64("lport", uint64(sock.lport)))
	return nil
}

// tcpRcvEstablished handles the data phase. Only exactly in-order segments
// are accepted: anything else is dropped without acknowledgment and must be
// supplied again by the peer's retransmission.
func (st *Stack) tcpRcvEstablished(sock *socket, seg tcp.Segment, payload []byte) error {
	if seg.SEQ != sock.conn.rcv {
		st.trace("tcp:drop-outoforder", slog.Uint64("seq", uint64(seg.SEQ)), slog.Uint64("want", uint64(sock.conn.rcv)))
		return nil
	}
	if seg.DATALEN > 0 {
		n := sock.rx.Write(payload)
		if n < len(payload) {
			st.warn("tcp:truncate", slog.Uint64("lport", uint64(sock.lport)), slog.Int("lost", len(payload)-n))
		}
		// The whole segment is acknowledged even when truncated; dropped
		// bytes are gone for good.
		sock.conn.rcv = tcp.Add(sock.conn.rcv, seg.DATALEN)
	}
	if seg.Flags.HasAny(tcp.FlagFIN) {
		sock.conn.rcv = tcp.Add(sock.conn.rcv, 1)
		err := st.sendTCP(sock, tcp.FlagACK, nil)
		sock.conn.state = tcp.StateCloseWait
		st.debug("tcp:closewait", slog.Uint64("lport", uint64(sock.lport)))
		return err
	}
	if seg.DATALEN > 0 {
		return st.sendTCP(sock, tcp.FlagACK, nil)
	}
	return nil
}

func (st *Stack) tcpRcvFinWait1(sock *socket, seg tcp.Segment) error {
	if seg.Flags.HasAny(tcp.FlagFIN) {
		// The peer closed too, whether or not this segment also acknowledges
		// our FIN (the two FINs may have crossed on the wire). TIME-WAIT has
		// no timer and collapses straight to CLOSED.
		sock.conn.rcv = tcp.Add(sock.conn.rcv, 1)
		err := st.sendTCP(sock, tcp.FlagACK, nil)
		sock.conn = tcpConn{}
		return err
	}
	if !seg.Flags.HasAll(tcp.FlagACK) || seg.ACK != sock.conn.snd {
		return nil
	}
	sock.conn.state = tcp.StateFinWait2
	return nil
}

func (st *Stack) tcpRcvFinWait2(sock *socket, seg tcp.Segment) error {
	if !seg.Flags.HasAny(tcp.FlagFIN) {
		return nil
	}
	sock.conn.rcv = tcp.Add(sock.conn.rcv, 1)
	err := st.sendTCP(sock, tcp.FlagACK, nil)
	sock.conn = tcpConn{}
	return err
}

func (st *Stack) tcpRcvLastAck(sock *socket, seg tcp.Segment) error {
	if !seg.Flags.HasAll(tcp.FlagACK) || seg.ACK != sock.conn.snd {
		return nil
	}
	sock.conn = tcpConn{}
	return nil
}
