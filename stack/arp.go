package stack

import (
	"github.com/kernio/netstack"
	"github.com/kernio/netstack/arp"
	"github.com/kernio/netstack/ethernet"
	"github.com/kernio/netstack/internal"
)

// nextHop returns the IP address the given destination is reached through:
// the destination itself when on the local subnet, the gateway otherwise.
func (st *Stack) nextHop(dst [4]byte) [4]byte {
	for i := range dst {
		if dst[i]&st.mask[i] != st.addr[i]&st.mask[i] {
			return st.gw
		}
	}
	return dst
}

// resolve returns the hardware address for an on-link IP address. On a cache
// miss a request is broadcast and [ErrARPInProgress] returned; the caller
// retries once the reply has been processed by the receive loop.
func (st *Stack) resolve(ip [4]byte) ([6]byte, error) {
	hw, ok := st.arpCache.Lookup(ip)
	if ok {
		return hw, nil
	}
	if err := st.sendARPRequest(ip); err != nil {
		return hw, err
	}
	return hw, ErrARPInProgress
}

func (st *Stack) sendARPRequest(ip [4]byte) error {
	payload := st.beginEthernet(ethernet.BroadcastAddr(), netstack.EtherTypeARP)
	afrm, err := arp.NewFrame(payload)
	if err != nil {
		return err
	}
	afrm.SetHardware(arp.HardwareTypeEthernet, 6)
	afrm.SetProtocol(netstack.EtherTypeIPv4, 4)
	afrm.SetOperation(netstack.ARPRequest)
	senderHW, senderIP := afrm.Sender4()
	*senderHW = st.mac
	*senderIP = st.addr
	targetHW, targetIP := afrm.Target4()
	*targetHW = [6]byte{}
	*targetIP = ip
	st.debug("arp:request", internal.SlogAddr4("for", &ip))
	return st.transmit(netstack.SizeHeaderEthernet + netstack.SizeHeaderARPv4)
}

// recvARP handles an inbound ARP packet. The sender mapping is learned from
// every valid packet regardless of operation or target; requests for our
// address additionally get a reply.
func (st *Stack) recvARP(pkt []byte) error {
	afrm, err := arp.NewFrame(pkt)
	if err != nil {
		return err
	}
	afrm.ValidateSize(&st.vld)
	if st.vld.HasError() {
		return st.vld.ErrPop()
	}
	senderHW, senderIP := afrm.Sender4()
	st.arpCache.Learn(*senderIP, *senderHW)
	st.trace("arp:learn", internal.SlogAddr4("ip", senderIP), internal.SlogAddr6("hw", senderHW))

	op := afrm.Operation()
	_, targetIP := afrm.Target4()
	if op != netstack.ARPRequest || *targetIP != st.addr {
		return nil
	}
	// Build the reply from the request in the transmit buffer.
	payload := st.beginEthernet(*senderHW, netstack.EtherTypeARP)
	reply, _ := arp.NewFrame(payload)
	copy(reply.RawData()[:netstack.SizeHeaderARPv4], afrm.RawData())
	reply.SetOperation(netstack.ARPReply)
	reply.SwapTargetSender()
	replyHW, _ := reply.Sender4()
	*replyHW = st.mac
	st.debug("arp:reply", internal.SlogAddr4("to", senderIP))
	return st.transmit(netstack.SizeHeaderEthernet + netstack.SizeHeaderARPv4)
}
