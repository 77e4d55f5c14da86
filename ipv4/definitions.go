package ipv4

import "errors"

// ToS represents the Traffic Class (a.k.a Type of Service). It is 8 bits long.
// 6 MSB are Differentiated Services; 2 LSB are Explicit Congestion Notification.
type ToS uint8

// DS returns the top 6 bits of the IPv4 ToS holding the Differentiated Services
// field which is used to classify packets.
func (tos ToS) DS() uint8 { return uint8(tos) >> 2 }

// ECN is the Explicit Congestion Notification field.
func (tos ToS) ECN() uint8 { return uint8(tos & 0b11) }

// Flags holds fragmentation field data of an IPv4 header. It is 16 bits long.
type Flags uint16

const (
	// FlagOffsetMask selects the 13-bit fragment offset.
	FlagOffsetMask    Flags = 1<<13 - 1
	flagReserved      Flags = 1 << 15
	FlagDontFragment  Flags = 1 << 14
	FlagMoreFragments Flags = 1 << 13
)

// DontFragment specifies whether the datagram can not be fragmented.
func (f Flags) DontFragment() bool { return f&FlagDontFragment != 0 }

// MoreFragments is cleared for unfragmented packets and for the last fragment.
func (f Flags) MoreFragments() bool { return f&FlagMoreFragments != 0 }

// FragmentOffset specifies the offset of a fragment relative to the beginning
// of the original unfragmented datagram, in units of 8 bytes.
func (f Flags) FragmentOffset() uint16 { return uint16(f & FlagOffsetMask) }

var (
	errBadTL      = errors.New("ipv4: bad total length")
	errShort      = errors.New("ipv4: short data")
	errBadIHL     = errors.New("ipv4: bad IHL")
	errBadVersion = errors.New("ipv4: bad version")
	errBadCRC     = errors.New("ipv4: bad header checksum")
)
