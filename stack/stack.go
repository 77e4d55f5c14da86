// Package stack composes the link, network and transport layers into a single
// host network stack driven by a network interface driver. The driver calls
// [Stack.Recv] for every inbound Ethernet frame and the stack calls the
// driver's [Transmitter] for every outbound one.
//
// The stack assumes a single flow of control: the driver's receive loop and
// all socket calls run from the same goroutine, so no locking is performed
// anywhere. Blocking is never done either; operations that cannot make
// progress return immediately with an error or a zero count and the caller
// polls.
package stack

import (
	"errors"
	"log/slog"
	"net/netip"

	"github.com/kernio/netstack"
	"github.com/kernio/netstack/arp"
	"github.com/kernio/netstack/ethernet"
	"github.com/kernio/netstack/internal"
	"github.com/kernio/netstack/tcp"
)

// Transmitter is the driver side of the stack. Transmit sends a single
// Ethernet frame on the wire. The buffer is owned by the stack and is reused
// after Transmit returns.
type Transmitter interface {
	Transmit(frame []byte) error
}

// mtu is the interface MTU including the Ethernet header.
const mtu = 1514

// numSockets is the fixed size of the socket pool.
const numSockets = 64

// socketBufSize is the receive ring capacity of every socket.
const socketBufSize = 8192

var (
	// ErrARPInProgress is returned by operations needing a hardware address the
	// stack has not resolved yet. A request was broadcast; the caller retries
	// the whole operation after giving the reply time to arrive.
	ErrARPInProgress = errors.New("stack: ARP resolution in progress")
	// ErrNoSpace is returned when the socket pool is exhausted.
	ErrNoSpace = errors.New("stack: out of sockets")

	errClosedSocket    = errors.New("stack: use of closed socket")
	errInvalidState    = errors.New("stack: operation invalid in current state")
	errNotConnected    = errors.New("stack: socket not connected")
	errUnsupportedOp   = errors.New("stack: operation not supported by protocol")
	errProtoUnsupport  = errors.New("stack: unsupported socket protocol")
	errPayloadTooLarge = errors.New("stack: payload exceeds MTU")
	errBadConfig       = errors.New("stack: invalid configuration")
)

// Config holds the addressing of the interface the stack runs on.
type Config struct {
	// HardwareAddr is the interface's MAC address.
	HardwareAddr [6]byte
	// Addr is the interface's IPv4 address and subnet prefix.
	Addr netip.Prefix
	// Gateway is the router used for destinations outside the subnet.
	Gateway netip.Addr
	// Secret seeds initial sequence number generation. Should differ per boot.
	Secret [32]byte
	// Logger receives stack events. May be nil to disable logging.
	Logger *slog.Logger
}

// Stack is a single-interface IPv4 host stack with ARP, ICMP echo, UDP and a
// minimal TCP. The zero value is not usable; see [New].
type Stack struct {
	trans Transmitter
	logger
	mac  [6]byte
	addr [4]byte
	mask [4]byte
	gw   [4]byte
	// lastSrc is the source address of the last valid IP packet received.
	// ICMP echo replies are addressed to it.
	lastSrc  [4]byte
	arpCache arp.Cache
	isn      tcp.ISNGenerator
	ipID     uint16
	// nextPort feeds ephemeral port assignment.
	nextPort uint16
	// nextID feeds socket identifier assignment. Identifier 0 means free slot.
	nextID uint16
	vld    netstack.Validator
	socks  [numSockets]socket
	txbuf  [mtu]byte
}

// New returns a Stack transmitting through trans and configured with cfg.
func New(trans Transmitter, cfg Config) (*Stack, error) {
	if trans == nil || !cfg.Addr.Addr().Is4() || !cfg.Addr.IsValid() {
		return nil, errBadConfig
	}
	gw := cfg.Gateway
	if gw.IsValid() && !gw.Is4() {
		return nil, errBadConfig
	}
	st := &Stack{
		trans:  trans,
		logger: logger{log: cfg.Logger},
		mac:    cfg.HardwareAddr,
		addr:   cfg.Addr.Addr().As4(),
	}
	if gw.IsValid() {
		st.gw = gw.As4()
	}
	bits := cfg.Addr.Bits()
	mask := ^uint32(0) << (32 - bits)
	st.mask = [4]byte{byte(mask >> 24), byte(mask >> 16), byte(mask >> 8), byte(mask)}
	st.isn.Reset(cfg.Secret)
	st.nextPort = 0x8000 | internal.Prand16(uint16(cfg.Secret[4])<<8|uint16(cfg.Secret[5]))>>2
	st.info("stack:up",
		internal.SlogAddr6("mac", &st.mac),
		slog.String("addr", cfg.Addr.String()),
	)
	return st, nil
}

// Addr returns the stack's IPv4 address.
func (st *Stack) Addr() netip.Addr { return netip.AddrFrom4(st.addr) }

// HardwareAddr returns the stack's MAC address.
func (st *Stack) HardwareAddr() [6]byte { return st.mac }

// Recv processes one inbound Ethernet frame. The driver calls Recv for every
// frame received on the interface; frames not addressed to the stack or
// carrying protocols it does not speak are dropped without error.
func (st *Stack) Recv(frame []byte) error {
	efrm, err := ethernet.NewFrame(frame)
	if err != nil {
		return err
	}
	dst := efrm.DestinationHardwareAddr()
	if !efrm.IsBroadcast() && *dst != st.mac {
		st.trace("stack:drop-notours", internal.SlogAddr6("dsthw", dst))
		return nil
	}
	etype := efrm.EtherTypeOrSize()
	efrm.ValidateSize(&st.vld)
	if st.vld.HasError() {
		return st.vld.ErrPop()
	}
	switch etype {
	case netstack.EtherTypeARP:
		return st.recvARP(efrm.Payload())
	case netstack.EtherTypeIPv4:
		return st.recvIP(efrm.Payload())
	}
	st.trace("stack:drop-ethertype", slog.String("ethertype", etype.String()))
	return nil
}

// beginEthernet writes the Ethernet header for an outbound frame into the
// transmit buffer and returns the payload region.
func (st *Stack) beginEthernet(dsthw [6]byte, etype netstack.EtherType) []byte {
	efrm, _ := ethernet.NewFrame(st.txbuf[:])
	*efrm.DestinationHardwareAddr() = dsthw
	*efrm.SourceHardwareAddr() = st.mac
	efrm.SetEtherType(etype)
	return efrm.Payload()
}

func (st *Stack) transmit(totalLen int) error {
	err := st.trans.Transmit(st.txbuf[:totalLen])
	if err != nil {
		st.error("stack:transmit", slog.String("err", err.Error()))
	}
	return err
}
