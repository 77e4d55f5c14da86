// Package icmpv4 implements the ICMP message codec. The stack only generates
// and answers echo messages but the codec names the control message types a
// host may receive.
package icmpv4

import (
	"encoding/binary"
	"errors"

	"github.com/kernio/netstack"
)

type Type uint8

const (
	TypeEchoReply Type = 0 // echo reply
	TypeEcho      Type = 8 // echo

	TypeDestinationUnreachable Type = 3  // destination unreachable
	TypeSourceQuench           Type = 4  // source quench
	TypeRedirect               Type = 5  // redirect
	TypeTimeExceeded           Type = 11 // time exceeded
	TypeParameterProblem       Type = 12 // parameter problem
)

type CodeDestinationUnreachable uint8

const (
	CodeNetUnreachable   CodeDestinationUnreachable = iota // net unreachable
	CodeHostUnreachable                                    // host unreachable
	CodeProtoUnreachable                                   // protocol unreachable
	CodePortUnreachable                                    // port unreachable
)

var errShortFrame = errors.New("icmpv4: short frame")

func NewFrame(buf []byte) (Frame, error) {
	if len(buf) < netstack.SizeHeaderICMP {
		return Frame{}, errShortFrame
	}
	return Frame{buf: buf}, nil
}

type Frame struct {
	buf []byte
}

func (frm Frame) RawData() []byte { return frm.buf }

func (frm Frame) Type() Type { return Type(frm.buf[0]) }

func (frm Frame) SetType(t Type) { frm.buf[0] = uint8(t) }

func (frm Frame) Code() uint8 { return frm.buf[1] }

func (frm Frame) SetCode(code uint8) { frm.buf[1] = code }

// CRC returns the checksum field of the frame.
func (frm Frame) CRC() uint16 {
	return binary.BigEndian.Uint16(frm.buf[2:4])
}

// SetCRC sets the checksum field of the frame.
func (frm Frame) SetCRC(crc uint16) {
	binary.BigEndian.PutUint16(frm.buf[2:4], crc)
}

// CalculateCRC returns the checksum of the whole ICMP message, treating the
// checksum field as zero as per RFC 792.
func (frm Frame) CalculateCRC() uint16 {
	var crc netstack.CRC791
	crc.AddUint16(binary.BigEndian.Uint16(frm.buf[0:2]))
	return crc.PayloadSum16(frm.buf[4:])
}

// FrameEcho views an ICMP frame as an echo or echo reply message.
type FrameEcho struct {
	Frame
}

func (frm FrameEcho) Identifier() uint16 {
	return binary.BigEndian.Uint16(frm.buf[4:6])
}

func (frm FrameEcho) SetIdentifier(id uint16) {
	binary.BigEndian.PutUint16(frm.buf[4:6], id)
}

func (frm FrameEcho) SequenceNumber() uint16 {
	return binary.BigEndian.Uint16(frm.buf[6:8])
}

func (frm FrameEcho) SetSequenceNumber(seq uint16) {
	binary.BigEndian.PutUint16(frm.buf[6:8], seq)
}

// Data returns the optional echo payload following the identifier and sequence fields.
func (frm FrameEcho) Data() []byte {
	return frm.buf[8:]
}
