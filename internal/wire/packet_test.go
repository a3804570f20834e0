package wire

import (
	"encoding/binary"
	"math"
	"net"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/lidar.poi/internal/poi"
)

func TestPacketSize(t *testing.T) {
	assert.Equal(t, PacketSize, binary.Size(Packet{}))
}

func TestEncodeLayout(t *testing.T) {
	p := NewPacket(TypeData, StationLidar1, IPv4ToUint32(net.IPv4(172, 22, 39, 90)))
	p.Seq = 0x01020304
	p.OnTimeMillis = 99
	p.Distance = 1234.5
	p.Angle = 90.25
	p.StartBit = true
	p.Quality = 47

	b, err := Encode(p)
	require.NoError(t, err)
	require.Len(t, b, PacketSize)

	assert.Equal(t, Magic, binary.LittleEndian.Uint32(b[0:]))
	assert.Equal(t, uint32(TypeData), binary.LittleEndian.Uint32(b[4:]))
	assert.Equal(t, uint32(StationLidar1), binary.LittleEndian.Uint32(b[8:]))
	assert.Equal(t, []byte{172, 22, 39, 90}, b[12:16])
	assert.Equal(t, []byte{4, 3, 2, 1}, b[16:20])
	assert.Equal(t, uint32(99), binary.LittleEndian.Uint32(b[20:]))
	assert.Equal(t, float32(1234.5), math.Float32frombits(binary.LittleEndian.Uint32(b[24:])))
	assert.Equal(t, float32(90.25), math.Float32frombits(binary.LittleEndian.Uint32(b[28:])))
	assert.Equal(t, byte(1), b[32])
	assert.Equal(t, byte(47), b[33])

	got, err := Decode(b)
	require.NoError(t, err)
	if diff := cmp.Diff(p, got); diff != "" {
		t.Errorf("Decode mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeErrors(t *testing.T) {
	_, err := Decode(make([]byte, PacketSize-1))
	assert.ErrorIs(t, err, ErrShortPacket)

	b, err := Encode(NewPacket(TypeDebug, StationBase, 0))
	require.NoError(t, err)
	b[0] ^= 0xff
	_, err = Decode(b)
	assert.ErrorIs(t, err, ErrBadMagic)
}

func TestDecodeIgnoresTrailingBytes(t *testing.T) {
	b, err := Encode(NewPacket(TypeData, StationLidar1, 0))
	require.NoError(t, err)
	p, err := Decode(append(b, 0xde, 0xad))
	require.NoError(t, err)
	assert.Equal(t, TypeData, p.Type)
}

func TestIPv4Conversion(t *testing.T) {
	ip := net.IPv4(10, 0, 0, 7)
	v := IPv4ToUint32(ip)
	assert.Equal(t, uint32(7<<24|10), v)
	assert.True(t, ip.Equal(Uint32ToIPv4(v)))
	assert.Zero(t, IPv4ToUint32(net.ParseIP("::1")))
}

func TestPOIPacket(t *testing.T) {
	s := poi.Snapshot{Angle: 42.5, Distance: 800, TimesSeen: 1000}
	p := POIPacket(s, 5, 1234, 0)
	assert.Equal(t, TypePOI, p.Type)
	assert.Equal(t, Magic, p.Magic)
	assert.Equal(t, float32(42.5), p.Angle)
	assert.Equal(t, float32(800), p.Distance)
	assert.Equal(t, uint8(255), p.Quality)
	assert.EqualValues(t, 5, p.Seq)

	cleared := POIPacket(poi.ClearedSnapshot(), 6, 0, 0)
	assert.Less(t, cleared.Angle, float32(0))
}

func TestTypeString(t *testing.T) {
	assert.Equal(t, "data", TypeData.String())
	assert.Equal(t, "type(9)", Type(9).String())
}
