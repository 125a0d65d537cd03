package probe

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net"
	"sync/atomic"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"golang.org/x/net/ipv4"
)

const (
	icmpNetwork   = "ip4:icmp"
	icmpReadBuf   = 1500
	icmpPayload   = "lanscope-liveness"
	ipv4HeaderMin = 20
)

// ICMPProber sends one ICMP echo request per probe over a raw socket and waits
// for the matching echo reply. The reply TTL comes from the IPv4 header when
// the socket delivers it, otherwise from the IP_TTL control message.
type ICMPProber struct {
	id  uint16
	seq atomic.Uint32
}

// NewICMPProber creates a prober with a random echo identifier.
func NewICMPProber() *ICMPProber {
	return &ICMPProber{id: uint16(rand.UintN(1 << 16))}
}

// CheckICMP reports whether raw ICMP sockets can be opened by this process.
func CheckICMP() error {
	conn, err := net.ListenPacket(icmpNetwork, "0.0.0.0")
	if err != nil {
		return err
	}
	return conn.Close()
}

// Probe implements Prober.
func (p *ICMPProber) Probe(ctx context.Context, ip string, timeout time.Duration) Reachability {
	dst := net.ParseIP(ip).To4()
	if dst == nil {
		return Reachability{}
	}

	conn, err := net.ListenPacket(icmpNetwork, "0.0.0.0")
	if err != nil {
		return Reachability{}
	}
	defer conn.Close()

	pc := ipv4.NewPacketConn(conn)
	_ = pc.SetControlMessage(ipv4.FlagTTL, true)
	if err := pc.SetDeadline(probeDeadline(ctx, timeout)); err != nil {
		return Reachability{}
	}

	seq := uint16(p.seq.Add(1))
	msg, err := encodeEchoRequest(p.id, seq, []byte(icmpPayload))
	if err != nil {
		return Reachability{}
	}

	start := time.Now()
	if _, err := pc.WriteTo(msg, nil, &net.IPAddr{IP: dst}); err != nil {
		return Reachability{}
	}

	buf := make([]byte, icmpReadBuf)
	for ctx.Err() == nil {
		n, cm, peer, err := pc.ReadFrom(buf)
		if err != nil {
			return Reachability{}
		}
		if addr, ok := peer.(*net.IPAddr); ok && !addr.IP.Equal(dst) {
			continue
		}
		reply, ok := decodeEchoReply(buf[:n])
		if !ok || reply.id != p.id || reply.seq != seq {
			continue
		}

		r := Reachability{Alive: true, Latency: time.Since(start), TTL: reply.ttl}
		if r.TTL == 0 && cm != nil {
			r.TTL = cm.TTL
		}
		return r
	}
	return Reachability{}
}

func encodeEchoRequest(id, seq uint16, payload []byte) ([]byte, error) {
	echo := &layers.ICMPv4{
		TypeCode: layers.CreateICMPv4TypeCode(layers.ICMPv4TypeEchoRequest, 0),
		Id:       id,
		Seq:      seq,
	}
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, echo, gopacket.Payload(payload)); err != nil {
		return nil, fmt.Errorf("failed to encode echo request: %w", err)
	}
	return buf.Bytes(), nil
}

type echoReply struct {
	id  uint16
	seq uint16
	ttl int
}

// decodeEchoReply accepts either a bare ICMP message or one still carrying its
// IPv4 header, as raw sockets differ by platform.
func decodeEchoReply(b []byte) (echoReply, bool) {
	var reply echoReply

	first := layers.LayerTypeICMPv4
	if len(b) >= ipv4HeaderMin && b[0]>>4 == 4 {
		first = layers.LayerTypeIPv4
	}
	packet := gopacket.NewPacket(b, first, gopacket.NoCopy)

	if ipLayer, ok := packet.Layer(layers.LayerTypeIPv4).(*layers.IPv4); ok {
		reply.ttl = int(ipLayer.TTL)
	}
	icmp, ok := packet.Layer(layers.LayerTypeICMPv4).(*layers.ICMPv4)
	if !ok || icmp.TypeCode.Type() != layers.ICMPv4TypeEchoReply {
		return echoReply{}, false
	}
	reply.id = icmp.Id
	reply.seq = icmp.Seq
	return reply, true
}
