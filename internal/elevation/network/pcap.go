//go:build pcap
// +build pcap

package network

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"

	"github.com/gstavrinos/elevation-mapping/internal/elevation"
)

// ReadPCAPFile replays point batch datagrams from a PCAP capture into the
// batches channel, applying the same topic filter as the live listener.
// This function is only available when building with the 'pcap' build tag.
func ReadPCAPFile(ctx context.Context, pcapFile string, udpPort int, topic string, batches chan<- elevation.PointBatch, stats StatsInterface) error {
	if stats == nil {
		stats = &noopStats{}
	}

	handle, err := pcap.OpenOffline(pcapFile)
	if err != nil {
		return fmt.Errorf("failed to open PCAP file %s: %w", pcapFile, err)
	}
	defer handle.Close()

	filterStr := fmt.Sprintf("udp port %d", udpPort)
	if err := handle.SetBPFFilter(filterStr); err != nil {
		return fmt.Errorf("failed to set BPF filter '%s': %w", filterStr, err)
	}
	log.Printf("PCAP BPF filter set: %s", filterStr)

	packetSource := gopacket.NewPacketSource(handle, handle.LinkType())
	packetCount := 0
	totalPoints := 0
	startTime := time.Now()

	for {
		select {
		case <-ctx.Done():
			log.Printf("PCAP reader stopping due to context cancellation (processed %d packets)", packetCount)
			return ctx.Err()
		case packet := <-packetSource.Packets():
			if packet == nil {
				elapsed := time.Since(startTime)
				log.Printf("PCAP file reading complete: %d packets processed in %v", packetCount, elapsed)
				return nil
			}

			packetCount++

			udpLayer := packet.Layer(layers.LayerTypeUDP)
			if udpLayer == nil {
				continue
			}
			udp, ok := udpLayer.(*layers.UDP)
			if !ok {
				continue
			}
			payload := udp.Payload
			if len(payload) == 0 {
				continue
			}

			stats.AddPacket(len(payload))

			batchTopic, batch, err := ParseBatch(payload)
			if err != nil {
				stats.AddRejected()
				log.Printf("Error parsing PCAP packet %d: %v", packetCount, err)
				continue
			}
			if topic != "" && batchTopic != topic {
				stats.AddRejected()
				continue
			}

			// Replay uses capture timestamps so the watchdog and the
			// transform lookups see a consistent timeline.
			batch.Stamp = packet.Metadata().Timestamp

			stats.AddPoints(len(batch.Points))
			totalPoints += len(batch.Points)

			select {
			case <-ctx.Done():
				return ctx.Err()
			case batches <- batch:
			}

			if packetCount%10000 == 0 {
				elapsed := time.Since(startTime)
				log.Printf("PCAP progress: %d packets, %d points in %v (%.0f pkt/s)",
					packetCount, totalPoints, elapsed, float64(packetCount)/elapsed.Seconds())
			}
		}
	}
}
