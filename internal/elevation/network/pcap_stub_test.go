//go:build !pcap
// +build !pcap

package network

import (
	"context"
	"strings"
	"testing"
)

// TestReadPCAPFile_Stub tests the stub implementation returns an error.
func TestReadPCAPFile_Stub(t *testing.T) {
	err := ReadPCAPFile(context.Background(), "test.pcap", 9876, "/topic", nil, nil)
	if err == nil {
		t.Fatal("Expected error from stub implementation")
	}
	if !strings.HasPrefix(err.Error(), "PCAP support not enabled") {
		t.Errorf("Expected 'PCAP support not enabled' error, got %q", err.Error())
	}
}
