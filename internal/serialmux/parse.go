package serialmux

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/banshee-data/lidar.poi/internal/wire"
)

// ErrNotReading is returned for console lines that carry no reading, such
// as rotation summaries and boot messages.
var ErrNotReading = errors.New("not a reading")

// ParseReading parses one console line from the sensor node into a data
// packet. Two formats are accepted:
//
//	angle,distance,quality,seq[,start]
//	N: 7	t: 1200	T: 1	A: 12.50	 D: 800.00	 S: 0	 Q: 47
//
// The second is the node's per-reading log output.
func ParseReading(line string) (wire.Packet, error) {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
		return wire.Packet{}, ErrNotReading
	case strings.HasPrefix(line, "N:"):
		return parseLogLine(line)
	case strings.Count(line, ",") >= 3:
		return parseCSV(line)
	}
	return wire.Packet{}, ErrNotReading
}

func parseCSV(line string) (wire.Packet, error) {
	fields := strings.Split(line, ",")
	if len(fields) > 5 {
		return wire.Packet{}, fmt.Errorf("too many fields in %q", line)
	}
	p := wire.NewPacket(wire.TypeData, wire.StationLidar1, 0)
	var err error
	if p.Angle, err = parseFloat32(fields[0]); err != nil {
		return p, fmt.Errorf("angle: %w", err)
	}
	if p.Distance, err = parseFloat32(fields[1]); err != nil {
		return p, fmt.Errorf("distance: %w", err)
	}
	if p.Quality, err = parseUint8(fields[2]); err != nil {
		return p, fmt.Errorf("quality: %w", err)
	}
	if p.Seq, err = parseUint32(fields[3]); err != nil {
		return p, fmt.Errorf("seq: %w", err)
	}
	if len(fields) == 5 {
		if p.StartBit, err = strconv.ParseBool(strings.TrimSpace(fields[4])); err != nil {
			return p, fmt.Errorf("start: %w", err)
		}
	}
	return p, nil
}

func parseLogLine(line string) (wire.Packet, error) {
	p := wire.NewPacket(wire.TypeData, wire.StationLidar1, 0)
	seen := 0
	for _, field := range strings.Split(line, "\t") {
		key, val, ok := strings.Cut(strings.TrimSpace(field), ":")
		if !ok {
			continue
		}
		val = strings.TrimSpace(val)
		var err error
		switch key {
		case "N":
			p.Seq, err = parseUint32(val)
		case "t":
			p.OnTimeMillis, err = parseUint32(val)
		case "T":
			var typ uint32
			typ, err = parseUint32(val)
			p.Type = wire.Type(typ)
		case "A":
			p.Angle, err = parseFloat32(val)
		case "D":
			p.Distance, err = parseFloat32(val)
		case "S":
			p.StartBit, err = strconv.ParseBool(val)
		case "Q":
			p.Quality, err = parseUint8(val)
		default:
			continue
		}
		if err != nil {
			return p, fmt.Errorf("field %s: %w", key, err)
		}
		seen++
	}
	if seen < 7 {
		return p, fmt.Errorf("incomplete reading %q", line)
	}
	return p, nil
}

func parseFloat32(s string) (float32, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 32)
	return float32(f), err
}

func parseUint32(s string) (uint32, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 32)
	return uint32(v), err
}

func parseUint8(s string) (uint8, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 8)
	return uint8(v), err
}

// Router accepts decoded packets. *network.Listener implements it, so
// serial readings share sequence tracking and scan logging with UDP.
type Router interface {
	Route(p wire.Packet)
}

// Feed parses lines until the channel closes or ctx ends, routing each
// reading. Lines that are not readings are skipped; malformed readings are
// passed to onError when it is non-nil. It returns the number routed.
func Feed(ctx context.Context, lines <-chan string, r Router, onError func(line string, err error)) int {
	routed := 0
	for {
		select {
		case <-ctx.Done():
			return routed
		case line, ok := <-lines:
			if !ok {
				return routed
			}
			p, err := ParseReading(line)
			if errors.Is(err, ErrNotReading) {
				continue
			}
			if err != nil {
				if onError != nil {
					onError(line, err)
				}
				continue
			}
			r.Route(p)
			routed++
		}
	}
}
