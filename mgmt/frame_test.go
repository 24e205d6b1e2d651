package mgmt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameEncodeDecodeRoundTrip(t *testing.T) {
	cases := []struct {
		name  string
		frame Frame
	}{
		{"empty payload", NewCommand(OpSetPowered, 0, nil)},
		{"single byte", NewCommand(OpSetPowered, 0, SetStatePayload(1))},
		{"discoverable", NewCommand(OpSetDiscoverable, 2, SetDiscoverablePayload(DiscoverableLimited, 180))},
		{"index none", NewCommand(OpReadVersionInfo, IndexNone, nil)},
		{"local name", NewCommand(OpSetLocalName, 0, SetLocalNamePayload("periph", "p"))},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			raw := c.frame.Encode()
			require.Len(t, raw, HeaderSize+len(c.frame.Payload))

			decoded, err := DecodeFrame(raw)
			require.NoError(t, err)
			assert.Equal(t, c.frame.Code, decoded.Code)
			assert.Equal(t, c.frame.Index, decoded.Index)
			assert.Equal(t, c.frame.Payload, decoded.Payload)
		})
	}
}

func TestDecodeFrameMalformed(t *testing.T) {
	cases := []struct {
		name string
		raw  []byte
	}{
		{"empty", nil},
		{"short header", []byte{0x05, 0x00, 0x00}},
		{"declared length exceeds buffer", []byte{0x05, 0x00, 0x00, 0x00, 0x04, 0x00, 0x01}},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := DecodeFrame(c.raw)
			assert.ErrorIs(t, err, ErrMalformedFrame)
		})
	}
}

func TestDecodeFrameIgnoresTrailingBytes(t *testing.T) {
	raw := NewCommand(OpSetPowered, 0, SetStatePayload(1)).Encode()
	raw = append(raw, 0xAA, 0xBB)

	decoded, err := DecodeFrame(raw)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01}, decoded.Payload)
}

func TestTruncateNameIdempotent(t *testing.T) {
	for _, s := range []string{"", "short", strings.Repeat("x", 248), strings.Repeat("y", 300)} {
		once := TruncateName(s)
		assert.Equal(t, once, TruncateName(once))
		assert.LessOrEqual(t, len(once), MaxNameLength)
		assert.True(t, strings.HasPrefix(s, once))
	}
}

func TestTruncateShortNameIdempotent(t *testing.T) {
	for _, s := range []string{"", "tiny", strings.Repeat("z", 64)} {
		once := TruncateShortName(s)
		assert.Equal(t, once, TruncateShortName(once))
		assert.LessOrEqual(t, len(once), MaxShortNameLength)
		assert.True(t, strings.HasPrefix(s, once))
	}
}

func TestSetLocalNamePayloadFixedWidth(t *testing.T) {
	cases := []struct {
		name      string
		localName string
		shortName string
	}{
		{"empty", "", ""},
		{"typical", "sensor-7", "sns7"},
		{"max length", strings.Repeat("a", 248), strings.Repeat("b", 10)},
		{"overlong", strings.Repeat("c", 400), strings.Repeat("d", 40)},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			b := SetLocalNamePayload(c.localName, c.shortName)
			require.Len(t, b, 260)

			name, short, err := ParseLocalNamePayload(b)
			require.NoError(t, err)
			assert.Equal(t, TruncateName(c.localName), name)
			assert.Equal(t, TruncateShortName(c.shortName), short)
		})
	}
}

// A 300-character name must encode to exactly 249 bytes of name field:
// the first 248 input characters followed by a NUL, zero-padded short name
// field after it.
func TestSetLocalNamePayloadTruncation(t *testing.T) {
	input := strings.Repeat("n", 300)
	b := SetLocalNamePayload(input, "")

	require.Len(t, b, 260)
	assert.Equal(t, []byte(input[:248]), b[:248])
	assert.EqualValues(t, 0, b[248])
	for i := 249; i < 260; i++ {
		assert.EqualValues(t, 0, b[i], "short name field must be zero-padded at offset %d", i)
	}
}

func TestSetDiscoverablePayloadRoundTrip(t *testing.T) {
	b := SetDiscoverablePayload(DiscoverableLimited, 300)
	require.Len(t, b, 3)

	mode, timeout, err := ParseDiscoverablePayload(b)
	require.NoError(t, err)
	assert.Equal(t, DiscoverableLimited, mode)
	assert.EqualValues(t, 300, timeout)

	_, _, err = ParseDiscoverablePayload([]byte{0x01})
	assert.ErrorIs(t, err, ErrMalformedFrame)
}

func TestAdvertisingPayloadRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		adv  AdvertisingData
	}{
		{"empty blocks", AdvertisingData{Instance: 1}},
		{"adv only", AdvertisingData{
			Instance: 1,
			Flags:    0x41,
			Duration: 2,
			Timeout:  60,
			AdvData:  []byte{0x02, 0x01, 0x06},
		}},
		{"adv and scan response", AdvertisingData{
			Instance: 2,
			AdvData:  []byte{0x02, 0x01, 0x06, 0x03, 0x03, 0x0F, 0x18},
			ScanRsp:  []byte{0x05, 0x09, 't', 'e', 's', 't'},
		}},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			b, err := c.adv.Payload()
			require.NoError(t, err)
			require.Len(t, b, 11+len(c.adv.AdvData)+len(c.adv.ScanRsp))
			assert.EqualValues(t, len(c.adv.AdvData), b[9])
			assert.EqualValues(t, len(c.adv.ScanRsp), b[10])

			decoded, err := ParseAdvertisingPayload(b)
			require.NoError(t, err)
			assert.Equal(t, c.adv, decoded)
		})
	}
}

func TestAdvertisingPayloadTooLarge(t *testing.T) {
	_, err := AdvertisingData{Instance: 1, AdvData: make([]byte, 256)}.Payload()
	assert.ErrorIs(t, err, ErrPayloadTooLarge)

	_, err = AdvertisingData{Instance: 1, ScanRsp: make([]byte, 300)}.Payload()
	assert.ErrorIs(t, err, ErrPayloadTooLarge)
}

func TestParseControllerInfo(t *testing.T) {
	b := make([]byte, 280)
	copy(b[0:6], []byte{0x11, 0x22, 0x33, 0x44, 0x55, 0x66})
	b[6] = 0x08                       // bluetooth version
	b[7], b[8] = 0x0F, 0x00           // manufacturer
	b[9] = byte(SettingPowered)       // supported settings (low byte)
	b[13] = byte(SettingPowered)      // current settings (low byte)
	copy(b[20:], "periph\x00")        // name
	copy(b[20+249:], "p\x00")         // short name

	ci, err := ParseControllerInfo(b)
	require.NoError(t, err)
	assert.Equal(t, [6]byte{0x11, 0x22, 0x33, 0x44, 0x55, 0x66}, ci.Address)
	assert.EqualValues(t, 0x08, ci.BluetoothVersion)
	assert.EqualValues(t, 0x0F, ci.Manufacturer)
	assert.Equal(t, SettingPowered, ci.CurrentSettings)
	assert.Equal(t, "periph", ci.Name)
	assert.Equal(t, "p", ci.ShortName)

	_, err = ParseControllerInfo(b[:100])
	assert.ErrorIs(t, err, ErrMalformedFrame)
}
