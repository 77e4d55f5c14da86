package stack

import (
	"log/slog"

	"github.com/kernio/netstack"
	"github.com/kernio/netstack/udp"
)

// sendUDP transmits one datagram to the socket's connected remote. The UDP
// checksum is left zero, which marks it as not computed.
func (st *Stack) sendUDP(sock *socket, payload []byte) error {
	ifrm, pkt, err := st.beginIP(sock.rip, netstack.IPProtoUDP, netstack.SizeHeaderUDP+len(payload))
	if err != nil {
		return err
	}
	ufrm, err := udp.NewFrame(pkt)
	if err != nil {
		return err
	}
	ufrm.SetSourcePort(sock.lport)
	ufrm.SetDestinationPort(sock.rport)
	ufrm.SetLength(uint16(netstack.SizeHeaderUDP + len(payload)))
	ufrm.SetCRC(0)
	copy(ufrm.Payload(), payload)
	return st.finishIP(ifrm)
}

// recvUDP delivers an inbound datagram to the first socket bound to its
// destination port. Datagrams for ports nobody is bound to are dropped
// silently, as are bytes that do not fit the socket's receive buffer.
// Checksums are not verified since the stack never emits them either.
func (st *Stack) recvUDP(pkt []byte) error {
	ufrm, err := udp.NewFrame(pkt)
	if err != nil {
		return err
	}
	ufrm.ValidateSize(&st.vld)
	if st.vld.HasError() {
		return st.vld.ErrPop()
	}
	dstPort := ufrm.DestinationPort()
	for i := range st.socks {
		sock := &st.socks[i]
		if sock.id == 0 || sock.proto != netstack.IPProtoUDP || sock.lport != dstPort {
			continue
		}
		payload := ufrm.Payload()
		n := sock.rx.Write(payload)
		if n < len(payload) {
			st.warn("udp:truncate", slog.Uint64("port", uint64(dstPort)), slog.Int("lost", len(payload)-n))
		}
		return nil
	}
	st.trace("udp:drop-unbound", slog.Uint64("port", uint64(dstPort)))
	return nil
}
