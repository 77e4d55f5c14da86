package stack

import (
	"net/netip"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/kernio/netstack"
	"github.com/kernio/netstack/tcp"
)

// pump shuttles queued frames between two stacks until both are quiet, like
// a cable connecting their interfaces.
func pump(t *testing.T, a *Stack, ra *recorder, b *Stack, rb *recorder) {
	t.Helper()
	for len(ra.frames)+len(rb.frames) > 0 {
		out := ra.frames
		ra.frames = nil
		for _, f := range out {
			if err := b.Recv(f); err != nil {
				t.Fatalf("b.Recv: %v", err)
			}
		}
		out = rb.frames
		rb.frames = nil
		for _, f := range out {
			if err := a.Recv(f); err != nil {
				t.Fatalf("a.Recv: %v", err)
			}
		}
	}
}

func TestTwoStackConversation(t *testing.T) {
	recA := &recorder{}
	a, err := New(recA, Config{
		HardwareAddr: hostMAC,
		Addr:         netip.PrefixFrom(netip.AddrFrom4(hostIP), 24),
		Secret:       [32]byte{0: 1},
	})
	if err != nil {
		t.Fatal(err)
	}
	recB := &recorder{}
	b, err := New(recB, Config{
		HardwareAddr: peerMAC,
		Addr:         netip.PrefixFrom(netip.AddrFrom4(peerIP), 24),
		Secret:       [32]byte{0: 2},
	})
	if err != nil {
		t.Fatal(err)
	}

	server, err := b.Socket(netstack.IPProtoTCP)
	if err != nil {
		t.Fatal(err)
	}
	if err := server.Bind(8080); err != nil {
		t.Fatal(err)
	}

	client, err := a.Socket(netstack.IPProtoTCP)
	if err != nil {
		t.Fatal(err)
	}
	// First attempt stalls on neighbor resolution; the broadcast request and
	// its reply travel the wire, then the retry succeeds.
	err = client.Connect(netip.AddrFrom4(peerIP), 8080)
	if err != ErrARPInProgress {
		t.Fatalf("first connect got %v; want ErrARPInProgress", err)
	}
	pump(t, a, recA, b, recB)
	if err := client.Connect(netip.AddrFrom4(peerIP), 8080); err != nil {
		t.Fatal(err)
	}
	pump(t, a, recA, b, recB)
	if client.State() != tcp.StateEstablished {
		t.Fatalf("client state %v; want ESTABLISHED", client.State())
	}
	if server.State() != tcp.StateEstablished {
		t.Fatalf("server state %v; want ESTABLISHED", server.State())
	}

	// Data in both directions.
	const question = "what time is it?"
	const answer = "beer o'clock"
	if err := client.Send([]byte(question)); err != nil {
		t.Fatal(err)
	}
	pump(t, a, recA, b, recB)
	var buf [128]byte
	n, err := server.Recv(buf[:])
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(question, string(buf[:n])); diff != "" {
		t.Fatalf("server stream (-want +got):\n%s", diff)
	}
	if err := server.Send([]byte(answer)); err != nil {
		t.Fatal(err)
	}
	pump(t, a, recA, b, recB)
	n, err = client.Recv(buf[:])
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(answer, string(buf[:n])); diff != "" {
		t.Fatalf("client stream (-want +got):\n%s", diff)
	}

	// Client hangs up. Its record is freed on the spot while the server walks
	// to CLOSE-WAIT on receiving the FIN.
	if err := client.Close(); err != nil {
		t.Fatal(err)
	}
	pump(t, a, recA, b, recB)
	if server.State() != tcp.StateCloseWait {
		t.Fatalf("server state %v; want CLOSE-WAIT", server.State())
	}
	// Server closes too; its FIN finds no connection on the client side and
	// the wire goes quiet.
	if err := server.Close(); err != nil {
		t.Fatal(err)
	}
	pump(t, a, recA, b, recB)
	if client.State() != tcp.StateClosed || server.State() != tcp.StateClosed {
		t.Fatal("sockets not closed")
	}
}

func TestTwoStackEcho(t *testing.T) {
	recA := &recorder{}
	a, _ := New(recA, Config{
		HardwareAddr: hostMAC,
		Addr:         netip.PrefixFrom(netip.AddrFrom4(hostIP), 24),
	})
	recB := &recorder{}
	b, _ := New(recB, Config{
		HardwareAddr: peerMAC,
		Addr:         netip.PrefixFrom(netip.AddrFrom4(peerIP), 24),
	})
	// Prime resolution in both directions with one request/reply exchange.
	_, err := a.resolve(peerIP)
	if err != ErrARPInProgress {
		t.Fatalf("got %v; want ErrARPInProgress", err)
	}
	pump(t, a, recA, b, recB)

	if err := a.SendEcho(peerIP, 0x1111, 1, []byte("probe")); err != nil {
		t.Fatal(err)
	}
	// B answers the request; nothing more happens once A sees the reply.
	frame := recA.pop(t)
	if err := b.Recv(frame); err != nil {
		t.Fatal(err)
	}
	reply := recB.pop(t)
	if err := a.Recv(reply); err != nil {
		t.Fatal(err)
	}
	if len(recA.frames) != 0 || len(recB.frames) != 0 {
		t.Fatal("echo exchange did not quiesce")
	}
}
