package capture

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/rsclarke/netwatch/internal/models"
)

// DecodePcap classifies every IP packet in a pcap stream written by
// tcpdump -w. Packets without a network layer are skipped. A truncated
// final record ends decoding without error.
func DecodePcap(r io.Reader, iface string) ([]models.TrafficRecord, error) {
	reader, err := pcapgo.NewReader(r)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("read pcap header: %w", err)
	}

	var records []models.TrafficRecord
	for {
		data, ci, err := reader.ReadPacketData()
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return records, nil
		}
		if err != nil {
			return records, fmt.Errorf("read packet: %w", err)
		}

		packet := gopacket.NewPacket(data, reader.LinkType(), gopacket.Lazy)
		rec, ok := classifyPacket(packet, iface)
		if !ok {
			continue
		}
		rec.Timestamp = ci.Timestamp.Local().Format(models.TimestampLayout)
		records = append(records, rec)
	}
}

func classifyPacket(packet gopacket.Packet, iface string) (models.TrafficRecord, bool) {
	rec := models.TrafficRecord{Interface: iface}

	switch ip := packet.NetworkLayer().(type) {
	case *layers.IPv4:
		rec.SourceAddress = ip.SrcIP.String()
		rec.DestinationAddress = ip.DstIP.String()
		rec.Protocol = "IP"
	case *layers.IPv6:
		rec.SourceAddress = ip.SrcIP.String()
		rec.DestinationAddress = ip.DstIP.String()
		rec.Protocol = "IP6"
	default:
		return rec, false
	}

	var dstPort string
	switch l := packet.TransportLayer().(type) {
	case *layers.TCP:
		rec.Protocol = "TCP"
		dstPort = strconv.Itoa(int(l.DstPort))
		rec.HasPayload = len(l.LayerPayload()) > 0
	case *layers.UDP:
		rec.Protocol = "UDP"
		dstPort = strconv.Itoa(int(l.DstPort))
		rec.HasPayload = len(l.LayerPayload()) > 0
	default:
		if icmp := packet.Layer(layers.LayerTypeICMPv4); icmp != nil {
			rec.Protocol = "ICMP"
			rec.HasPayload = len(icmp.LayerPayload()) > 0
		} else if icmp := packet.Layer(layers.LayerTypeICMPv6); icmp != nil {
			rec.Protocol = "ICMP6"
			rec.HasPayload = len(icmp.LayerPayload()) > 0
		}
	}
	rec.IsEncrypted = dstPort == EncryptedPort

	return rec, true
}
