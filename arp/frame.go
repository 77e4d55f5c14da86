// Package arp implements the Address Resolution Protocol codec and the
// fixed-size neighbor cache that maps IPv4 addresses to Ethernet hardware
// addresses. Only the Ethernet/IPv4 address pair is supported so all field
// offsets are fixed and the packet is always 28 bytes.
package arp

import (
	"encoding/binary"

	"github.com/kernio/netstack"
)

// NewFrame returns a Frame with data set to buf.
// An error is returned if the buffer size is smaller than 28.
func NewFrame(buf []byte) (Frame, error) {
	if len(buf) < netstack.SizeHeaderARPv4 {
		return Frame{buf: nil}, errShortARP
	}
	return Frame{buf: buf}, nil
}

// Frame encapsulates the raw data of an ARP packet
// and provides methods for manipulating, validating and
// retrieving fields. See [RFC826].
//
// [RFC826]: https://tools.ietf.org/html/rfc826
type Frame struct {
	buf []byte
}

// RawData returns the underlying slice with which the frame was created.
func (afrm Frame) RawData() []byte { return afrm.buf }

// Hardware returns the network link protocol type and address length. Ethernet is 1.
func (afrm Frame) Hardware() (hwType uint16, length uint8) {
	return binary.BigEndian.Uint16(afrm.buf[0:2]), afrm.buf[4]
}

// SetHardware sets the network link protocol type and address length fields.
func (afrm Frame) SetHardware(hwType uint16, length uint8) {
	binary.BigEndian.PutUint16(afrm.buf[0:2], hwType)
	afrm.buf[4] = length
}

// Protocol returns the internet protocol type and address length. See [netstack.EtherType].
func (afrm Frame) Protocol() (protoType netstack.EtherType, length uint8) {
	return netstack.EtherType(binary.BigEndian.Uint16(afrm.buf[2:4])), afrm.buf[5]
}

// SetProtocol sets the protocol type and address length fields of the ARP frame.
func (afrm Frame) SetProtocol(protoType netstack.EtherType, length uint8) {
	binary.BigEndian.PutUint16(afrm.buf[2:4], uint16(protoType))
	afrm.buf[5] = length
}

// Operation returns the ARP header operation field. See [netstack.ARPOp].
func (afrm Frame) Operation() netstack.ARPOp {
	return netstack.ARPOp(binary.BigEndian.Uint16(afrm.buf[6:8]))
}

// SetOperation sets the ARP header operation field.
func (afrm Frame) SetOperation(op netstack.ARPOp) {
	binary.BigEndian.PutUint16(afrm.buf[6:8], uint16(op))
}

// Sender4 returns the sender hardware (MAC) and IPv4 addresses of the ARP packet.
// In a request the hardware address is the host asking the question. In a reply
// it is the address the request was looking for.
func (afrm Frame) Sender4() (hardwareAddr *[6]byte, proto *[4]byte) {
	return (*[6]byte)(afrm.buf[8:14]), (*[4]byte)(afrm.buf[14:18])
}

// Target4 returns the target hardware (MAC) and IPv4 addresses of the ARP packet.
// In a request the hardware address is ignored. In a reply it is the address of
// the host that originated the request.
func (afrm Frame) Target4() (hardwareAddr *[6]byte, proto *[4]byte) {
	return (*[6]byte)(afrm.buf[18:24]), (*[4]byte)(afrm.buf[24:28])
}

// SwapTargetSender swaps the sender and target address fields in place,
// the first step of turning a received request into a reply.
func (afrm Frame) SwapTargetSender() {
	hwSender, protoSender := afrm.Sender4()
	hwTarget, protoTarget := afrm.Target4()
	*hwSender, *hwTarget = *hwTarget, *hwSender
	*protoSender, *protoTarget = *protoTarget, *protoSender
}

// ClearHeader zeros out the fixed header contents.
func (afrm Frame) ClearHeader() {
	for i := range afrm.buf[:8] {
		afrm.buf[i] = 0
	}
}

// ValidateSize checks the frame's address length fields against the
// Ethernet/IPv4 layout this stack speaks and accumulates errors on mismatch.
func (afrm Frame) ValidateSize(v *netstack.Validator) {
	htype, hlen := afrm.Hardware()
	if htype != HardwareTypeEthernet || hlen != 6 {
		v.AddError(errBadHardware)
	}
	ptype, plen := afrm.Protocol()
	if ptype != netstack.EtherTypeIPv4 || plen != 4 {
		v.AddError(errBadProtocol)
	}
}
