package tcp

import (
	"encoding/binary"

	"golang.org/x/crypto/blake2s"
)

// ISNGenerator produces initial sequence numbers for new connections.
// A keyed hash over the connection four-tuple spreads ISNs between peers in
// the shape RFC 6528 suggests, mixed with a linear congruential step so
// repeated connections to the same peer do not reuse sequence space.
//
// The zero value must be seeded with [ISNGenerator.Reset] before use.
type ISNGenerator struct {
	secret  [blake2s.Size]byte
	counter uint32
}

// Reset seeds the generator. Seeding twice with the same secret yields the
// same ISN sequence, which tests rely on.
func (g *ISNGenerator) Reset(secret [32]byte) {
	g.secret = secret
	g.counter = binary.BigEndian.Uint32(secret[0:4])
}

// Next returns the ISN for a connection between laddr:lport and raddr:rport
// and advances the generator.
func (g *ISNGenerator) Next(laddr [4]byte, lport uint16, raddr [4]byte, rport uint16) Value {
	h, err := blake2s.New256(g.secret[:])
	if err != nil {
		panic(err) // Key is always a valid length.
	}
	var four [12]byte
	copy(four[0:4], laddr[:])
	copy(four[4:8], raddr[:])
	binary.BigEndian.PutUint16(four[8:10], lport)
	binary.BigEndian.PutUint16(four[10:12], rport)
	h.Write(four[:])
	sum := h.Sum(nil)

	g.counter = g.counter*1664525 + 1013904223
	return Value(binary.BigEndian.Uint32(sum[0:4]) + g.counter)
}
