package arp

import "errors"

// HardwareTypeEthernet is the hardware type field value for Ethernet links.
const HardwareTypeEthernet uint16 = 1

var (
	errShortARP    = errors.New("ARP packet too short")
	errBadHardware = errors.New("bad ARP hardware type/length")
	errBadProtocol = errors.New("bad ARP protocol type/length")
)
