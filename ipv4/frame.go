// Package ipv4 implements the IPv4 header codec, its RFC 791 header checksum
// and the pseudo-header checksum seeding used by the transport layers.
// Fragmentation is not performed; packets with options are still addressable
// through the IHL-aware accessors.
package ipv4

import (
	"encoding/binary"
	"fmt"
	"net/netip"

	"github.com/kernio/netstack"
)

// NewFrame returns a new Frame with data set to buf.
// An error is returned if the buffer size is smaller than 20.
// Users should still call [Frame.ValidateSize] before working
// with payload/options of frames to avoid panics.
func NewFrame(buf []byte) (Frame, error) {
	if len(buf) < netstack.SizeHeaderIPv4 {
		return Frame{buf: nil}, errShort
	}
	return Frame{buf: buf}, nil
}

// Frame encapsulates the raw data of an IPv4 packet
// and provides methods for manipulating, validating and
// retrieving fields and payload data. See [RFC791].
//
// [RFC791]: https://tools.ietf.org/html/rfc791
type Frame struct {
	buf []byte
}

// RawData returns the underlying slice with which the frame was created.
func (ifrm Frame) RawData() []byte { return ifrm.buf }

// HeaderLength returns the length of the IPv4 header as calculated using IHL. It includes IP options.
func (ifrm Frame) HeaderLength() int {
	return int(ifrm.ihl()) * 4
}

func (ifrm Frame) ihl() uint8     { return ifrm.buf[0] & 0xf }
func (ifrm Frame) version() uint8 { return ifrm.buf[0] >> 4 }

// VersionAndIHL returns the version and IHL fields in the IPv4 header. Version should always be 4.
func (ifrm Frame) VersionAndIHL() (version, IHL uint8) {
	v := ifrm.buf[0]
	return v >> 4, v & 0xf
}

// SetVersionAndIHL sets the version and IHL fields in the IPv4 header. Version should always be 4.
func (ifrm Frame) SetVersionAndIHL(version, IHL uint8) { ifrm.buf[0] = version<<4 | IHL&0xf }

// ToS returns the Type of Service field. See [ToS].
func (ifrm Frame) ToS() ToS { return ToS(ifrm.buf[1]) }

// SetToS sets ToS field. See [Frame.ToS].
func (ifrm Frame) SetToS(tos ToS) { ifrm.buf[1] = byte(tos) }

// TotalLength defines the entire packet size in bytes, including IP header and data.
// The minimum size is 20 bytes (IPv4 header without data) and the maximum is 65,535 bytes.
func (ifrm Frame) TotalLength() uint16 {
	return binary.BigEndian.Uint16(ifrm.buf[2:4])
}

// SetTotalLength sets TotalLength field. See [Frame.TotalLength].
func (ifrm Frame) SetTotalLength(tl uint16) { binary.BigEndian.PutUint16(ifrm.buf[2:4], tl) }

// ID is an identification field primarily used for uniquely
// identifying the group of fragments of a single IP datagram.
func (ifrm Frame) ID() uint16 {
	return binary.BigEndian.Uint16(ifrm.buf[4:6])
}

// SetID sets ID field. See [Frame.ID].
func (ifrm Frame) SetID(id uint16) { binary.BigEndian.PutUint16(ifrm.buf[4:6], id) }

// Flags returns the [Flags] of the IP packet.
func (ifrm Frame) Flags() Flags {
	return Flags(binary.BigEndian.Uint16(ifrm.buf[6:8]))
}

// SetFlags sets the IPv4 flags field. See [Flags].
func (ifrm Frame) SetFlags(flags Flags) {
	binary.BigEndian.PutUint16(ifrm.buf[6:8], uint16(flags))
}

// TTL is the eight-bit time to live field limiting a datagram's lifetime to
// prevent network failure in the event of a routing loop.
func (ifrm Frame) TTL() uint8 { return ifrm.buf[8] }

// SetTTL sets the IP frame's TTL field. See [Frame.TTL].
func (ifrm Frame) SetTTL(ttl uint8) { ifrm.buf[8] = ttl }

// Protocol field defines the protocol used in the data portion of the IP datagram.
// TCP is 6, UDP is 17. See [netstack.IPProto].
func (ifrm Frame) Protocol() netstack.IPProto { return netstack.IPProto(ifrm.buf[9]) }

// SetProtocol sets protocol field. See [Frame.Protocol] and [netstack.IPProto].
func (ifrm Frame) SetProtocol(proto netstack.IPProto) { ifrm.buf[9] = uint8(proto) }

// CRC returns the checksum field of the IPv4 header.
func (ifrm Frame) CRC() uint16 {
	return binary.BigEndian.Uint16(ifrm.buf[10:12])
}

// SetCRC sets the CRC field of the IP packet. See [Frame.CRC].
func (ifrm Frame) SetCRC(cs uint16) {
	binary.BigEndian.PutUint16(ifrm.buf[10:12], cs)
}

// CalculateHeaderCRC calculates the RFC 791 checksum over the header with the
// checksum field itself skipped.
func (ifrm Frame) CalculateHeaderCRC() uint16 {
	var crc netstack.CRC791
	crc.Write(ifrm.buf[0:10])
	crc.Write(ifrm.buf[12:ifrm.HeaderLength()])
	return crc.Sum16()
}

// CRCWriteTCPPseudo seeds crc with the TCP pseudo-header fields of this packet:
// both addresses, the protocol number and the TCP segment length.
func (ifrm Frame) CRCWriteTCPPseudo(crc *netstack.CRC791) {
	crc.Write(ifrm.SourceAddr()[:])
	crc.Write(ifrm.DestinationAddr()[:])
	crc.AddUint16(uint16(ifrm.Protocol()))
	crc.AddUint16(ifrm.TotalLength() - 4*uint16(ifrm.ihl()))
}

// CRCWriteUDPPseudo seeds crc with the UDP pseudo-header fields of this packet.
func (ifrm Frame) CRCWriteUDPPseudo(crc *netstack.CRC791) {
	crc.Write(ifrm.SourceAddr()[:])
	crc.Write(ifrm.DestinationAddr()[:])
	crc.AddUint16(uint16(ifrm.Protocol()))
	crc.AddUint16(ifrm.TotalLength() - 4*uint16(ifrm.ihl()))
}

// SourceAddr returns pointer to the source IPv4 address in the IP header.
func (ifrm Frame) SourceAddr() *[4]byte {
	return (*[4]byte)(ifrm.buf[12:16])
}

// DestinationAddr returns pointer to the destination IPv4 address in the IP header.
func (ifrm Frame) DestinationAddr() *[4]byte {
	return (*[4]byte)(ifrm.buf[16:20])
}

// Payload returns the contents of the IPv4 packet, which may be zero sized.
// Be sure to call [Frame.ValidateSize] beforehand to avoid panic.
func (ifrm Frame) Payload() []byte {
	off := ifrm.HeaderLength()
	l := ifrm.TotalLength()
	return ifrm.buf[off:l]
}

// Options returns the options portion of the IPv4 header. May be zero lengthed.
// Be sure to call [Frame.ValidateSize] beforehand to avoid panic.
func (ifrm Frame) Options() []byte {
	off := ifrm.HeaderLength()
	return ifrm.buf[netstack.SizeHeaderIPv4:off]
}

// ClearHeader zeros out the fixed(non-variable) header contents.
func (ifrm Frame) ClearHeader() {
	for i := range ifrm.buf[:netstack.SizeHeaderIPv4] {
		ifrm.buf[i] = 0
	}
}

//
// Validation API.
//

// ValidateSize checks the frame's size fields and compares with the actual buffer
// of the frame. It accumulates errors on finding an inconsistency.
func (ifrm Frame) ValidateSize(v *netstack.Validator) {
	ihl := ifrm.ihl()
	tl := ifrm.TotalLength()
	if tl < netstack.SizeHeaderIPv4 || tl < 4*uint16(ihl) {
		v.AddError(errBadTL)
	}
	if int(tl) > len(ifrm.RawData()) {
		v.AddError(errShort)
	}
	if ihl < 5 {
		v.AddError(errBadIHL)
	}
}

// ValidateExceptCRC checks for invalid frame values but does not check CRC.
func (ifrm Frame) ValidateExceptCRC(v *netstack.Validator) {
	ifrm.ValidateSize(v)
	if ifrm.version() != 4 {
		v.AddError(errBadVersion)
	}
}

// ValidateHeaderCRC recomputes the header checksum and accumulates an error on mismatch.
func (ifrm Frame) ValidateHeaderCRC(v *netstack.Validator) {
	if ifrm.CalculateHeaderCRC() != ifrm.CRC() {
		v.AddError(errBadCRC)
	}
}

func (ifrm Frame) String() string {
	dst := netip.AddrFrom4(*ifrm.DestinationAddr())
	src := netip.AddrFrom4(*ifrm.SourceAddr())
	hl := ifrm.HeaderLength()
	tl := int(ifrm.TotalLength())
	return fmt.Sprintf("IP %s SRC=%s DST=%s LEN=%d OPT=%d TTL=%d ID=%d ToS=0x%x",
		ifrm.Protocol().String(), src.String(), dst.String(), tl, hl-netstack.SizeHeaderIPv4, ifrm.TTL(), ifrm.ID(), uint8(ifrm.ToS()))
}
