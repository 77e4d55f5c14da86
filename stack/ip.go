package stack

import (
	"log/slog"

	"github.com/kernio/netstack"
	"github.com/kernio/netstack/internal"
	"github.com/kernio/netstack/ipv4"
	"github.com/kernio/netstack/ipv4/icmpv4"
)

// ipTTL is the time-to-live set on every outbound packet.
const ipTTL = 64

// beginIP resolves the destination's next hop and writes the Ethernet and
// IPv4 headers of an outbound packet into the transmit buffer. It returns the
// IP frame and its payload region of payloadLen bytes. The caller fills the
// payload and then calls finishIP. Returns [ErrARPInProgress] on a cache miss.
func (st *Stack) beginIP(dst [4]byte, proto netstack.IPProto, payloadLen int) (ipv4.Frame, []byte, error) {
	totalLen := netstack.SizeHeaderIPv4 + payloadLen
	if netstack.SizeHeaderEthernet+totalLen > mtu {
		return ipv4.Frame{}, nil, errPayloadTooLarge
	}
	dsthw, err := st.resolve(st.nextHop(dst))
	if err != nil {
		return ipv4.Frame{}, nil, err
	}
	pkt := st.beginEthernet(dsthw, netstack.EtherTypeIPv4)
	ifrm, err := ipv4.NewFrame(pkt)
	if err != nil {
		return ipv4.Frame{}, nil, err
	}
	ifrm.ClearHeader()
	ifrm.SetVersionAndIHL(4, 5)
	ifrm.SetTotalLength(uint16(totalLen))
	st.ipID++
	ifrm.SetID(st.ipID)
	ifrm.SetTTL(ipTTL)
	ifrm.SetProtocol(proto)
	*ifrm.SourceAddr() = st.addr
	*ifrm.DestinationAddr() = dst
	return ifrm, ifrm.RawData()[netstack.SizeHeaderIPv4:totalLen], nil
}

// finishIP computes the header checksum and transmits the packet prepared by
// beginIP.
func (st *Stack) finishIP(ifrm ipv4.Frame) error {
	ifrm.SetCRC(ifrm.CalculateHeaderCRC())
	if internal.LogEnabled(st.log, internal.LevelTrace) {
		st.trace("ip:send", slog.String("packet", ifrm.String()))
	}
	return st.transmit(netstack.SizeHeaderEthernet + int(ifrm.TotalLength()))
}

// recvIP handles an inbound IPv4 packet. Packets failing validation return an
// error; packets not addressed to the stack or carrying unknown transport
// protocols are dropped silently.
func (st *Stack) recvIP(pkt []byte) error {
	ifrm, err := ipv4.NewFrame(pkt)
	if err != nil {
		return err
	}
	ifrm.ValidateExceptCRC(&st.vld)
	if st.vld.HasError() {
		return st.vld.ErrPop()
	}
	ifrm.ValidateHeaderCRC(&st.vld)
	if st.vld.HasError() {
		return st.vld.ErrPop()
	}
	dst := *ifrm.DestinationAddr()
	if dst != st.addr && dst != [4]byte{255, 255, 255, 255} {
		st.trace("ip:drop-notours", internal.SlogAddr4("dst", &dst))
		return nil
	}
	st.lastSrc = *ifrm.SourceAddr()
	if internal.LogEnabled(st.log, internal.LevelTrace) {
		st.trace("ip:recv", slog.String("packet", ifrm.String()))
	}
	switch ifrm.Protocol() {
	case netstack.IPProtoICMP:
		return st.recvICMP(ifrm.Payload())
	case netstack.IPProtoUDP:
		return st.recvUDP(ifrm.Payload())
	case netstack.IPProtoTCP:
		return st.recvTCP(ifrm)
	}
	st.trace("ip:drop-proto", slog.String("proto", ifrm.Protocol().String()))
	return nil
}

// recvICMP answers echo requests. The reply is addressed to the source of the
// last received IP packet, which in a single flow of control is the packet
// that carried the request. All other message types are dropped.
func (st *Stack) recvICMP(pkt []byte) error {
	frm, err := icmpv4.NewFrame(pkt)
	if err != nil {
		return err
	}
	if frm.CalculateCRC() != frm.CRC() {
		return netstack.ErrBadCRC
	}
	if frm.Type() != icmpv4.TypeEcho {
		st.trace("icmp:drop-type", slog.Uint64("type", uint64(frm.Type())))
		return nil
	}
	echo := icmpv4.FrameEcho{Frame: frm}
	st.debug("icmp:echo",
		internal.SlogAddr4("from", &st.lastSrc),
		slog.Uint64("id", uint64(echo.Identifier())),
		slog.Uint64("seq", uint64(echo.SequenceNumber())),
	)
	return st.sendEcho(st.lastSrc, icmpv4.TypeEchoReply, echo.Identifier(), echo.SequenceNumber(), echo.Data())
}

// SendEcho transmits an ICMP echo request carrying the given identifier,
// sequence number and payload. The matching reply, if any, surfaces through
// the receive loop's logging only; there is no echo socket type with delivery.
func (st *Stack) SendEcho(dst [4]byte, id, seq uint16, payload []byte) error {
	return st.sendEcho(dst, icmpv4.TypeEcho, id, seq, payload)
}

func (st *Stack) sendEcho(dst [4]byte, typ icmpv4.Type, id, seq uint16, payload []byte) error {
	ifrm, pkt, err := st.beginIP(dst, netstack.IPProtoICMP, netstack.SizeHeaderICMP+len(payload))
	if err != nil {
		return err
	}
	frm, err := icmpv4.NewFrame(pkt)
	if err != nil {
		return err
	}
	echo := icmpv4.FrameEcho{Frame: frm}
	echo.SetType(typ)
	echo.SetCode(0)
	echo.SetIdentifier(id)
	echo.SetSequenceNumber(seq)
	copy(echo.Data(), payload)
	echo.SetCRC(echo.CalculateCRC())
	return st.finishIP(ifrm)
}
