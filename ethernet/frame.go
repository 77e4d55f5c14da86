// Package ethernet implements the Ethernet II frame codec used as the link
// layer of the stack. Frames carry no preamble or FCS; the first byte is the
// start of the destination address and the buffer ends where the payload ends.
package ethernet

import (
	"encoding/binary"

	"github.com/kernio/netstack"
)

// NewFrame returns a Frame with data set to buf.
// An error is returned if the buffer size is smaller than 14.
func NewFrame(buf []byte) (Frame, error) {
	if len(buf) < netstack.SizeHeaderEthernet {
		return Frame{buf: nil}, errShort
	}
	return Frame{buf: buf}, nil
}

// Frame encapsulates the raw data of an Ethernet frame
// without including preamble (first byte is start of destination address)
// and provides methods for manipulating, validating and
// retrieving fields and payload data. See [IEEE 802.3].
//
// [IEEE 802.3]: https://standards.ieee.org/ieee/802.3/7071/
type Frame struct {
	buf []byte
}

// RawData returns the underlying slice with which the frame was created.
func (efrm Frame) RawData() []byte { return efrm.buf }

// HeaderLength returns the length of the Ethernet frame header. Always 14;
// VLAN tagged frames are not processed by this stack.
func (efrm Frame) HeaderLength() int { return netstack.SizeHeaderEthernet }

// Payload returns the data portion of the Ethernet frame.
func (efrm Frame) Payload() []byte {
	return efrm.buf[netstack.SizeHeaderEthernet:]
}

// DestinationHardwareAddr returns the target's MAC/hardware address for the Ethernet frame.
func (efrm Frame) DestinationHardwareAddr() (dst *[6]byte) {
	return (*[6]byte)(efrm.buf[0:6])
}

// IsBroadcast returns true if the destination is the broadcast address ff:ff:ff:ff:ff:ff, false otherwise.
func (efrm Frame) IsBroadcast() bool {
	return efrm.buf[0] == 0xff && efrm.buf[1] == 0xff && efrm.buf[2] == 0xff &&
		efrm.buf[3] == 0xff && efrm.buf[4] == 0xff && efrm.buf[5] == 0xff
}

// SourceHardwareAddr returns the sender's MAC/hardware address of the Ethernet frame.
func (efrm Frame) SourceHardwareAddr() (src *[6]byte) {
	return (*[6]byte)(efrm.buf[6:12])
}

// EtherTypeOrSize returns the EtherType/Size field of the Ethernet frame.
// Caller should check if the field is actually a valid EtherType or if it
// represents the payload size with [netstack.EtherType.IsSize].
func (efrm Frame) EtherTypeOrSize() netstack.EtherType {
	return netstack.EtherType(binary.BigEndian.Uint16(efrm.buf[12:14]))
}

// SetEtherType sets the EtherType field of the Ethernet frame.
func (efrm Frame) SetEtherType(v netstack.EtherType) {
	binary.BigEndian.PutUint16(efrm.buf[12:14], uint16(v))
}

// ClearHeader zeros out the header contents.
func (efrm Frame) ClearHeader() {
	for i := range efrm.buf[:netstack.SizeHeaderEthernet] {
		efrm.buf[i] = 0
	}
}

// ValidateSize checks the frame's size field against the actual buffer length
// and accumulates an error on finding an inconsistency.
func (efrm Frame) ValidateSize(v *netstack.Validator) {
	sz := efrm.EtherTypeOrSize()
	if sz.IsSize() && len(efrm.buf)-netstack.SizeHeaderEthernet < int(sz) {
		v.AddError(errShort)
	}
}

// String returns a human readable representation of the frame header for debugging.
func (efrm Frame) String() string {
	b := make([]byte, 0, 48)
	b = AppendAddr(b, *efrm.SourceHardwareAddr())
	b = append(b, '>')
	b = AppendAddr(b, *efrm.DestinationHardwareAddr())
	b = append(b, ' ')
	b = append(b, efrm.EtherTypeOrSize().String()...)
	return string(b)
}
