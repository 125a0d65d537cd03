package probe

import (
	"net"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serializeReply(t *testing.T, withIP bool, ttl uint8, id, seq uint16) []byte {
	t.Helper()
	echo := &layers.ICMPv4{
		TypeCode: layers.CreateICMPv4TypeCode(layers.ICMPv4TypeEchoReply, 0),
		Id:       id,
		Seq:      seq,
	}
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{ComputeChecksums: true, FixLengths: true}

	var err error
	if withIP {
		ip := &layers.IPv4{
			Version:  4,
			IHL:      5,
			TTL:      ttl,
			Protocol: layers.IPProtocolICMPv4,
			SrcIP:    net.IPv4(192, 168, 1, 1),
			DstIP:    net.IPv4(192, 168, 1, 50),
		}
		err = gopacket.SerializeLayers(buf, opts, ip, echo, gopacket.Payload("x"))
	} else {
		err = gopacket.SerializeLayers(buf, opts, echo, gopacket.Payload("x"))
	}
	require.NoError(t, err)
	return buf.Bytes()
}

func TestEncodeEchoRequest(t *testing.T) {
	b, err := encodeEchoRequest(0x1234, 7, []byte(icmpPayload))
	require.NoError(t, err)

	packet := gopacket.NewPacket(b, layers.LayerTypeICMPv4, gopacket.Default)
	icmp, ok := packet.Layer(layers.LayerTypeICMPv4).(*layers.ICMPv4)
	require.True(t, ok)
	assert.Equal(t, uint8(layers.ICMPv4TypeEchoRequest), icmp.TypeCode.Type())
	assert.Equal(t, uint16(0x1234), icmp.Id)
	assert.Equal(t, uint16(7), icmp.Seq)
	assert.NotZero(t, icmp.Checksum)
	assert.Equal(t, []byte(icmpPayload), icmp.Payload)
}

func TestDecodeEchoReply(t *testing.T) {
	t.Run("bare icmp", func(t *testing.T) {
		reply, ok := decodeEchoReply(serializeReply(t, false, 0, 9, 3))
		require.True(t, ok)
		assert.Equal(t, echoReply{id: 9, seq: 3}, reply)
	})

	t.Run("with ipv4 header", func(t *testing.T) {
		reply, ok := decodeEchoReply(serializeReply(t, true, 128, 9, 4))
		require.True(t, ok)
		assert.Equal(t, echoReply{id: 9, seq: 4, ttl: 128}, reply)
	})

	t.Run("echo request is ignored", func(t *testing.T) {
		b, err := encodeEchoRequest(1, 1, nil)
		require.NoError(t, err)
		_, ok := decodeEchoReply(b)
		assert.False(t, ok)
	})

	t.Run("garbage", func(t *testing.T) {
		_, ok := decodeEchoReply([]byte{0x03})
		assert.False(t, ok)
	})
}

func TestICMPProber_InvalidAddress(t *testing.T) {
	r := NewICMPProber().Probe(t.Context(), "not-an-ip", 0)
	assert.False(t, r.Alive)
}
