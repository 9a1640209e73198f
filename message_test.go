package tuyalan

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const (
	testDeviceID = "bf4e86355fde4faab6l043"
	testLocalKey = "JvEuI)cyLCdpGFf:"
)

func testPayload() []byte {
	return []byte(`{"gwId":"` + testDeviceID + `","devId":"` + testDeviceID + `","dps":"{\"test\":\"data\"}"}`)
}

func TestEncode_ConcreteVectors(t *testing.T) {
	cipher := NewCipher([]byte(testLocalKey), false)
	msg := Message{Command: CmdStatus, Seq: 1, Payload: testPayload()}

	cases := []struct {
		version Version
		hex     string
	}{
		{Version31, "000055aa0000000100000008000000667b2267774964223a226266346538363335356664653466616162366c303433222c226465764964223a226266346538363335356664653466616162366c303433222c22647073223a227b5c22746573745c223a5c22646174615c227d227d7629b7a40000aa55"},
		{Version32, "000055aa000000010000000800000077332e3200000000000000000000000098a8e8ecc8cf616028577abc964ec2d59b7c61ca0bd45945a1d1398ab2bf97307fd554ecd0ee4ef4c75a2fea1f7bb96ef68f9a56d49ed257c96e94b82348541244761418064623a5f6da70164c45656c9f1173dfa75c1ff66cc9c1b7e756993744ad97ed0000aa55"},
		{Version33, "000055aa000000010000000800000077332e3300000000000000000000000098a8e8ecc8cf616028577abc964ec2d59b7c61ca0bd45945a1d1398ab2bf97307fd554ecd0ee4ef4c75a2fea1f7bb96ef68f9a56d49ed257c96e94b82348541244761418064623a5f6da70164c45656c9f1173dfa75c1ff66cc9c1b7e756993781d1e6930000aa55"},
		{Version34, "000055aa000000010000000800000094c253bd6a4db8481844b219147c365ab1402f72a7fc83e8597a6c1a47f4912c2f8719267af2c176661beb729dd69252d6c4ec3ed05a3cbe7b18826e455d87a7509b7c61ca0bd45945a1d1398ab2bf9730c543d1bd63e8cfd88edfaec091ccbc325a48e44c64f23952560e4697540c3cd1c33113cbc906b66daa5316e5242e9c603ea0da2281c98bf5dc794e02908ad8040000aa55"},
	}

	for _, tc := range cases {
		t.Run(string(tc.version), func(t *testing.T) {
			out, err := Encode(msg, cipher, tc.version)
			require.NoError(t, err)
			require.Equal(t, tc.hex, hexEncode(out))
		})
	}
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	cipher := NewCipher([]byte(testLocalKey), false)
	msg := Message{Command: CmdStatus, Seq: 1, Payload: testPayload()}

	for _, v := range []Version{Version32, Version33, Version34} {
		t.Run(string(v), func(t *testing.T) {
			encoded, err := Encode(msg, cipher, v)
			require.NoError(t, err)

			decoded, err := Decode(encoded, cipher, v)
			require.NoError(t, err)
			require.Equal(t, msg.Command, decoded.Command)
			require.Equal(t, msg.Seq, decoded.Seq)
			require.Equal(t, msg.Payload, decoded.Payload)
		})
	}
}

func TestEncode_V31Control_Unsupported(t *testing.T) {
	cipher := NewCipher([]byte(testLocalKey), false)
	_, err := Encode(Message{Command: CmdControl, Seq: 1, Payload: []byte("{}")}, cipher, Version31)
	require.ErrorIs(t, err, ErrUnsupportedCommandVariant)
}

func TestDecode_ConcreteControlVector(t *testing.T) {
	cipher := NewCipher([]byte(testLocalKey), false)
	data, err := hexDecode("000055aa00000001000000070000000c00000000a505a9140000aa55")
	require.NoError(t, err)

	msg, err := Decode(data, cipher, Version33)
	require.NoError(t, err)
	require.Equal(t, CmdControl, msg.Command)
	require.Equal(t, int32(1), msg.Seq)
	require.NotNil(t, msg.ReturnCode)
	require.Equal(t, int32(0), *msg.ReturnCode)
	require.Empty(t, msg.Payload)
}

func TestDecode_RejectsBadPrefix(t *testing.T) {
	cipher := NewCipher([]byte(testLocalKey), false)
	data, err := hexDecode("00000000000000010000000700000004000000000000aa55")
	require.NoError(t, err)
	_, err = Decode(data, cipher, Version33)
	require.ErrorIs(t, err, ErrMalformedFrame)
}

func TestDecode_RejectsUnknownVersion(t *testing.T) {
	cipher := NewCipher([]byte(testLocalKey), false)
	_, err := Decode([]byte{0, 0, 0, 0}, cipher, Version("3.5"))
	require.ErrorIs(t, err, ErrUnsupportedVersion)
}
