// Package netstack holds the wire-level vocabulary shared by every layer of
// the protocol stack: EtherType and IP protocol numbers, the ARP operation
// codes, the RFC 791 checksum and the frame validation helpers.
package netstack

// EtherType is the type field of an Ethernet frame identifying the payload protocol.
type EtherType uint16

// IsSize returns true if the EtherType is actually the size of the payload
// and should NOT be interpreted as an EtherType.
func (et EtherType) IsSize() bool { return et <= 1500 }

// Ethernet type flags.
const (
	EtherTypeIPv4      EtherType = 0x0800
	EtherTypeARP       EtherType = 0x0806
	EtherTypeWakeOnLAN EtherType = 0x0842
	EtherTypeRARP      EtherType = 0x8035
	EtherTypeVLAN      EtherType = 0x8100
	EtherTypeIPv6      EtherType = 0x86DD
	EtherTypePPPoE     EtherType = 0x8864
	EtherTypeLLDP      EtherType = 0x88CC
)

func (et EtherType) String() string {
	switch et {
	case EtherTypeIPv4:
		return "IPv4"
	case EtherTypeARP:
		return "ARP"
	case EtherTypeWakeOnLAN:
		return "wake on LAN"
	case EtherTypeRARP:
		return "RARP"
	case EtherTypeVLAN:
		return "VLAN"
	case EtherTypeIPv6:
		return "IPv6"
	case EtherTypePPPoE:
		return "PPPoE session"
	case EtherTypeLLDP:
		return "LLDP"
	}
	if et.IsSize() {
		return "size"
	}
	return "unknown"
}

// Header sizes of the fixed, optionless wire formats handled by the stack.
const (
	SizeHeaderEthernet = 14
	SizeHeaderARPv4    = 28
	SizeHeaderIPv4     = 20
	SizeHeaderICMP     = 8
	SizeHeaderUDP      = 8
	SizeHeaderTCP      = 20
)

// IPProto represents the IP protocol number.
type IPProto uint8

// IP protocol numbers.
const (
	IPProtoICMP IPProto = 1   // Internet Control Message [RFC792]
	IPProtoIGMP IPProto = 2   // Internet Group Management [RFC1112]
	IPProtoTCP  IPProto = 6   // Transmission Control [RFC793]
	IPProtoUDP  IPProto = 17  // User Datagram [RFC768]
	IPProtoGRE  IPProto = 47  // Generic Routing Encapsulation [RFC2784]
	IPProtoESP  IPProto = 50  // Encap Security Payload [RFC4303]
	IPProtoAH   IPProto = 51  // Authentication Header [RFC4302]
	IPProtoSCTP IPProto = 132 // Stream Control Transmission Protocol
)

func (proto IPProto) String() string {
	switch proto {
	case IPProtoICMP:
		return "ICMP"
	case IPProtoIGMP:
		return "IGMP"
	case IPProtoTCP:
		return "TCP"
	case IPProtoUDP:
		return "UDP"
	case IPProtoGRE:
		return "GRE"
	case IPProtoESP:
		return "ESP"
	case IPProtoAH:
		return "AH"
	case IPProtoSCTP:
		return "SCTP"
	}
	return "unknown"
}

// ARPOp represents the type of ARP packet, either request or reply/response.
type ARPOp uint16

const (
	ARPRequest ARPOp = 1
	ARPReply   ARPOp = 2
)

func (op ARPOp) String() string {
	switch op {
	case ARPRequest:
		return "request"
	case ARPReply:
		return "reply"
	}
	return "unknown"
}
