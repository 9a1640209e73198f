//go:build live

package example

import (
	"context"
	"testing"
	"time"

	sdk "github.com/nexus-edge/tuyalan"
)

// TestPing exercises a data-point refresh round-trip against a real device. Fill in
// the connection details below and build with -tags live to run it.
func TestPing(t *testing.T) {
	dev := sdk.NewDevice(sdk.DeviceConfig{
		Host:     "127.0.0.1",
		Port:     6668,
		DeviceID: "PUT_DEV_ID",
		LocalKey: []byte("PUT_LOCAL_KEY"),
		Version:  sdk.Version34,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := dev.Connect(ctx); err != nil {
		t.Fatal(err)
	}
	defer dev.Disconnect(context.Background())

	status, err := dev.Refresh(ctx)
	if err != nil {
		t.Fatal(err)
	}
	t.Logf("status: %+v", status)
}
