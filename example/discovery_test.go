//go:build live

package example

import (
	"context"
	"testing"
	"time"

	sdk "github.com/nexus-edge/tuyalan"
)

// TestDiscovery runs against real broadcast traffic on the local network.
// Build with -tags live to run it.
func TestDiscovery(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	scanner := sdk.NewScanner(sdk.ScannerConfig{Timeout: 10 * time.Second})
	found, err := scanner.Scan(ctx)
	if err != nil {
		t.Fatal(err)
	}
	for ip, dev := range found {
		t.Logf("%s: %+v", ip, dev)
	}
}
