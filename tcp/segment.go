package tcp

import (
	"strconv"
)

// Segment represents an incoming/outgoing TCP segment in the sequence space.
type Segment struct {
	SEQ     Value // sequence number of first octet of segment. If SYN is set it is the initial sequence number (ISN) and the first data octet is ISN+1.
	ACK     Value // acknowledgment number. If ACK is set it is sequence number of first octet the sender of the segment is expecting to receive next.
	DATALEN Size  // The number of octets occupied by the data (payload) not counting SYN and FIN.
	WND     Size  // segment window
	Flags   Flags // TCP flags.
}

// LEN returns the length of the segment in octets including SYN and FIN flags.
func (seg *Segment) LEN() Size {
	add := Size(seg.Flags>>0) & 1 // Add FIN bit.
	add += Size(seg.Flags>>1) & 1 // Add SYN bit.
	return seg.DATALEN + add
}

// Last returns the sequence number of the last octet of the segment.
func (seg *Segment) Last() Value {
	seglen := seg.LEN()
	if seglen == 0 {
		return seg.SEQ
	}
	return Add(seg.SEQ, seglen) - 1
}

func (seg Segment) String() string {
	b := make([]byte, 0, 48)
	b = appendVal(b, "SEQ", seg.SEQ)
	b = appendVal(b, "ACK", seg.ACK)
	if seg.DATALEN > 0 {
		b = appendVal(b, "DATA", Value(seg.DATALEN))
	}
	b = append(b, seg.Flags.String()...)
	return string(b)
}

func appendVal(buf []byte, name string, v Value) []byte {
	buf = append(buf, '<')
	buf = append(buf, name...)
	buf = append(buf, '=')
	buf = strconv.AppendUint(buf, uint64(v), 10)
	buf = append(buf, '>')
	return buf
}
