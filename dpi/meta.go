package dpi

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
)

const (
	etherHeaderLen = 14
	etherTypeIPv4  = 0x0800
	etherTypeIPv6  = 0x86dd

	protoTCP = 6
	protoUDP = 17
)

// PacketMeta holds best-effort parsed L2/L3/L4 header information. Parsing is
// advisory only and never influences the drop/accept verdict.
type PacketMeta struct {
	SrcMAC    string `json:"src_mac,omitempty"`
	DstMAC    string `json:"dst_mac,omitempty"`
	EtherType uint16 `json:"ether_type,omitempty"`
	SrcIP     string `json:"src_ip,omitempty"`
	DstIP     string `json:"dst_ip,omitempty"`
	Protocol  string `json:"protocol,omitempty"`
	SrcPort   uint16 `json:"src_port,omitempty"`
	DstPort   uint16 `json:"dst_port,omitempty"`
	Length    int    `json:"length"`
}

// ParsePacketMeta attempts to decode packet headers. It accepts either a raw
// Ethernet frame or a bare IPv4/IPv6 packet, and degrades gracefully: on any
// failure it returns whatever it decoded so far plus the error.
func ParsePacketMeta(packet []byte) (PacketMeta, error) {
	meta := PacketMeta{Length: len(packet)}
	if len(packet) == 0 {
		return meta, errors.New("empty packet")
	}

	payload := packet
	if version := packet[0] >> 4; version != 4 && version != 6 {
		// Not a bare IP packet; try Ethernet framing.
		if len(packet) < etherHeaderLen {
			return meta, fmt.Errorf("unrecognized packet header (%d bytes)", len(packet))
		}
		meta.DstMAC = net.HardwareAddr(packet[0:6]).String()
		meta.SrcMAC = net.HardwareAddr(packet[6:12]).String()
		meta.EtherType = binary.BigEndian.Uint16(packet[12:14])
		payload = packet[etherHeaderLen:]
		if meta.EtherType != etherTypeIPv4 && meta.EtherType != etherTypeIPv6 {
			return meta, fmt.Errorf("unsupported ethertype 0x%04x", meta.EtherType)
		}
	}

	return parseIP(meta, payload)
}

func parseIP(meta PacketMeta, payload []byte) (PacketMeta, error) {
	if len(payload) == 0 {
		return meta, errors.New("missing network layer")
	}

	switch payload[0] >> 4 {
	case 4:
		ihl := int(payload[0]&0x0f) * 4
		if ihl < 20 || len(payload) < ihl {
			return meta, fmt.Errorf("short ipv4 header (ihl %d, %d bytes)", ihl, len(payload))
		}
		meta.SrcIP = net.IP(payload[12:16]).String()
		meta.DstIP = net.IP(payload[16:20]).String()
		return parseTransport(meta, payload[9], payload[ihl:])
	case 6:
		if len(payload) < 40 {
			return meta, fmt.Errorf("short ipv6 header (%d bytes)", len(payload))
		}
		meta.SrcIP = net.IP(payload[8:24]).String()
		meta.DstIP = net.IP(payload[24:40]).String()
		return parseTransport(meta, payload[6], payload[40:])
	default:
		return meta, fmt.Errorf("unknown ip version %d", payload[0]>>4)
	}
}

func parseTransport(meta PacketMeta, proto byte, payload []byte) (PacketMeta, error) {
	switch proto {
	case protoTCP:
		meta.Protocol = "tcp"
	case protoUDP:
		meta.Protocol = "udp"
	default:
		meta.Protocol = fmt.Sprintf("ip-proto-%d", proto)
		return meta, nil
	}

	if len(payload) < 4 {
		return meta, fmt.Errorf("short %s header (%d bytes)", meta.Protocol, len(payload))
	}
	meta.SrcPort = binary.BigEndian.Uint16(payload[0:2])
	meta.DstPort = binary.BigEndian.Uint16(payload[2:4])
	return meta, nil
}
