// Package wire encodes and decodes the fixed-layout UDP datagram broadcast by
// the sensor node: a packed little-endian struct of 34 bytes.
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"net"

	"github.com/banshee-data/lidar.poi/internal/poi"
)

// Magic identifies a datagram from the sensor network.
const Magic uint32 = 13092783

// DefaultPort is the UDP port the sensor node broadcasts on.
const DefaultPort = 4211

// PacketSize is the encoded length of a Packet.
const PacketSize = 34

// Type is the packet type field.
type Type uint32

const (
	TypeDebug Type = 0
	TypeData  Type = 1
	TypePOI   Type = 2 // reported by this service, not by the sensor node
)

func (t Type) String() string {
	switch t {
	case TypeDebug:
		return "debug"
	case TypeData:
		return "data"
	case TypePOI:
		return "poi"
	}
	return fmt.Sprintf("type(%d)", uint32(t))
}

// Station identifies the sender.
type Station uint32

const (
	StationBase   Station = 0
	StationLidar1 Station = 1
)

var (
	ErrShortPacket = errors.New("wire: short packet")
	ErrBadMagic    = errors.New("wire: bad magic number")
)

// Packet is one datagram. Field order and widths are the wire layout.
type Packet struct {
	Magic        uint32
	Type         Type
	From         Station
	FromIP       uint32
	Seq          uint32
	OnTimeMillis uint32
	Distance     float32 // mm
	Angle        float32 // degrees
	StartBit     bool    // first reading of a new rotation
	Quality      uint8
}

// NewPacket returns a zeroed packet with the header filled in.
func NewPacket(t Type, from Station, fromIP uint32) Packet {
	return Packet{Magic: Magic, Type: t, From: from, FromIP: fromIP}
}

// Encode returns the wire form of p.
func Encode(p Packet) ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, PacketSize))
	if err := binary.Write(buf, binary.LittleEndian, &p); err != nil {
		return nil, fmt.Errorf("encode packet: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode parses one datagram. Trailing bytes beyond PacketSize are ignored.
func Decode(b []byte) (Packet, error) {
	var p Packet
	if len(b) < PacketSize {
		return p, fmt.Errorf("%w: %d bytes, want %d", ErrShortPacket, len(b), PacketSize)
	}
	if err := binary.Read(bytes.NewReader(b[:PacketSize]), binary.LittleEndian, &p); err != nil {
		return p, fmt.Errorf("decode packet: %w", err)
	}
	if p.Magic != Magic {
		return p, fmt.Errorf("%w: %d", ErrBadMagic, p.Magic)
	}
	return p, nil
}

// IPv4ToUint32 packs an IPv4 address the way the sensor firmware does, first
// octet in the low byte. Non-IPv4 addresses yield 0.
func IPv4ToUint32(ip net.IP) uint32 {
	v4 := ip.To4()
	if v4 == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(v4)
}

// Uint32ToIPv4 reverses IPv4ToUint32.
func Uint32ToIPv4(v uint32) net.IP {
	ip := make(net.IP, 4)
	binary.LittleEndian.PutUint32(ip, v)
	return ip
}

// POIPacket builds the outbound report for a point of interest. A cleared
// snapshot is sent with a negative angle so receivers can tell "nothing
// tracked" from a POI at 0°. Quality carries the POI's sample count,
// capped at 255.
func POIPacket(s poi.Snapshot, seq, onTimeMillis uint32, fromIP uint32) Packet {
	p := NewPacket(TypePOI, StationBase, fromIP)
	p.Seq = seq
	p.OnTimeMillis = onTimeMillis
	p.Angle = float32(s.Angle)
	p.Distance = float32(math.Min(s.Distance, math.MaxFloat32))
	p.Quality = uint8(min(s.TimesSeen, math.MaxUint8))
	return p
}
