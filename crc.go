package netstack

import (
	"encoding/binary"
)

// CRC791 implements the checksum function defined by RFC 791 and reused by
// ICMP, UDP and TCP: the 16-bit ones' complement of the ones' complement sum
// of all 16-bit words of the covered data. An uneven trailing octet is
// zero-padded on its least significant side.
//
// The zero value of CRC791 is ready to use.
type CRC791 struct {
	sum uint32
}

func checksum16(sum uint32) uint16 {
	sum = (sum & 0xffff) + sum>>16
	// the max value of sum at this point is 0x1fffe, so one more fold is enough.
	return ^uint16(sum + sum>>16)
}

// Write adds the bytes in buff to the running checksum. buff must be of even
// length or Write panics; an odd-length tail is handled by [CRC791.PayloadSum16].
func (c *CRC791) Write(buff []byte) {
	if len(buff)&1 != 0 {
		panic("netstack: odd length checksum write")
	}
	for i := 0; i < len(buff); i += 2 {
		c.sum += uint32(binary.BigEndian.Uint16(buff[i:]))
	}
}

// AddUint32 adds a 32-bit value to the running checksum interpreted as big endian (network order).
func (c *CRC791) AddUint32(value uint32) {
	c.AddUint16(uint16(value >> 16))
	c.AddUint16(uint16(value))
}

// AddUint16 adds a 16-bit value to the running checksum interpreted as big endian (network order).
func (c *CRC791) AddUint16(value uint16) {
	c.sum += uint32(value)
}

// Sum16 calculates the checksum over the data written to c thus far.
func (c *CRC791) Sum16() uint16 {
	return checksum16(c.sum)
}

// PayloadSum16 returns the checksum resulting from adding buff, which may be
// of odd length, to the running checksum. c itself is left unmodified.
func (c *CRC791) PayloadSum16(buff []byte) uint16 {
	odd := len(buff) & 1
	sum := c.sum
	for i := 0; i < len(buff)-odd; i += 2 {
		sum += uint32(binary.BigEndian.Uint16(buff[i:]))
	}
	if odd > 0 {
		sum += uint32(buff[len(buff)-1]) << 8
	}
	return checksum16(sum)
}

// Reset zeros out the CRC791, resetting it to the initial state.
func (c *CRC791) Reset() { *c = CRC791{} }
