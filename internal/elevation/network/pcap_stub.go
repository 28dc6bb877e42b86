//go:build !pcap
// +build !pcap

package network

import (
	"context"
	"fmt"

	"github.com/gstavrinos/elevation-mapping/internal/elevation"
)

// ReadPCAPFile is a stub implementation when PCAP support is disabled.
// Build with -tags=pcap to enable PCAP file replay.
func ReadPCAPFile(ctx context.Context, pcapFile string, udpPort int, topic string, batches chan<- elevation.PointBatch, stats StatsInterface) error {
	return fmt.Errorf("PCAP support not enabled: rebuild with -tags=pcap to enable PCAP file replay")
}
