package tuyalan

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseDPResponse_TopLevelDps(t *testing.T) {
	dps, err := parseDPResponse([]byte(`{"dps":{"1":true,"2":"idle"}}`))
	require.NoError(t, err)
	require.Equal(t, true, dps["1"])
	require.Equal(t, "idle", dps["2"])
}

func TestParseDPResponse_NestedDataDps(t *testing.T) {
	dps, err := parseDPResponse([]byte(`{"data":{"dps":{"1":false}}}`))
	require.NoError(t, err)
	require.Equal(t, false, dps["1"])
}

func TestParseDPResponse_BareObject(t *testing.T) {
	dps, err := parseDPResponse([]byte(`{"1":42}`))
	require.NoError(t, err)
	require.Equal(t, float64(42), dps["1"])
}

func TestParseDPResponse_EmptyPayload(t *testing.T) {
	dps, err := parseDPResponse(nil)
	require.NoError(t, err)
	require.Empty(t, dps)
}

func TestParseDPResponse_InvalidJSON(t *testing.T) {
	_, err := parseDPResponse([]byte(`not json`))
	require.Error(t, err)
}

func TestStatus_CloneIsIndependent(t *testing.T) {
	s := Status{"1": true}
	clone := s.clone()
	clone["1"] = false
	require.Equal(t, true, s["1"])
}

func TestStatus_MergeOverwritesAndAdds(t *testing.T) {
	s := Status{"1": true, "2": "on"}
	merged := s.merge(Status{"2": "off", "3": 5})
	require.Equal(t, true, merged["1"])
	require.Equal(t, "off", merged["2"])
	require.Equal(t, 5, merged["3"])
	// original unchanged.
	require.Equal(t, "on", s["2"])
}

func newTestDevice(t *testing.T, dev *fakeDevice, cfgOverride func(*DeviceConfig)) *Device {
	t.Helper()
	host, port := dev.addr()
	cfg := DeviceConfig{
		Host:            host,
		Port:            port,
		DeviceID:        testDeviceID,
		LocalKey:        []byte(testLocalKey),
		Version:         dev.version,
		ConnectTimeout:  time.Second,
		ResponseTimeout: 500 * time.Millisecond,
		RetryPolicy:     RetryNone,
	}
	if cfgOverride != nil {
		cfgOverride(&cfg)
	}
	d := NewDevice(cfg)
	require.NoError(t, d.Connect(context.Background()))
	return d
}

func TestDevice_RefreshUpdatesSnapshot(t *testing.T) {
	dev := newFakeDevice(t, Version33)
	defer dev.close()
	dev.serve(t, func(req *Message) *Message {
		zero := int32(0)
		return &Message{Command: req.Command, Seq: req.Seq, ReturnCode: &zero, Payload: []byte(`{"dps":{"1":true,"2":100}}`)}
	})

	d := newTestDevice(t, dev, nil)
	defer d.Disconnect(context.Background())

	status, err := d.Refresh(context.Background())
	require.NoError(t, err)
	require.Equal(t, true, status["1"])
	require.Equal(t, float64(100), status["2"])
	require.Equal(t, status, d.Snapshot())
}

func TestDevice_SetDpsOptimisticMerge(t *testing.T) {
	dev := newFakeDevice(t, Version33)
	defer dev.close()
	dev.serve(t, func(req *Message) *Message {
		zero := int32(0)
		return &Message{Command: req.Command, Seq: req.Seq, ReturnCode: &zero}
	})

	d := newTestDevice(t, dev, nil)
	defer d.Disconnect(context.Background())

	status, err := d.SetDp(context.Background(), "1", false)
	require.NoError(t, err)
	require.Equal(t, false, status["1"])
}

func TestDevice_ConsumeUnsolicitedAppliesPushes(t *testing.T) {
	dev := newFakeDevice(t, Version33)
	defer dev.close()
	dev.serve(t, func(req *Message) *Message { return nil })

	d := newTestDevice(t, dev, nil)
	defer d.Disconnect(context.Background())

	d.conn.dispatch(&Message{Command: CmdStatus, Seq: 0, Payload: []byte(`{"dps":{"9":"pushed"}}`)})

	require.Eventually(t, func() bool {
		return d.Snapshot()["9"] == "pushed"
	}, time.Second, 10*time.Millisecond)
}

func TestDevice_RefreshFailsWhenDisconnected(t *testing.T) {
	d := NewDevice(DeviceConfig{
		Host: "127.0.0.1", Port: 1, DeviceID: testDeviceID,
		LocalKey: []byte(testLocalKey), Version: Version33, RetryPolicy: RetryNone,
	})
	_, err := d.Refresh(context.Background())
	require.ErrorIs(t, err, ErrNotConnected)
}
