package network

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// PacketHandler consumes one UDP payload. *Listener implements it.
type PacketHandler interface {
	HandlePacket(payload []byte) error
}

type linkSource interface {
	gopacket.PacketDataSource
	LinkType() layers.LinkType
}

func openCapture(f *os.File) (linkSource, error) {
	r, err := pcapgo.NewReader(f)
	if err == nil {
		return r, nil
	}
	if _, serr := f.Seek(0, 0); serr != nil {
		return nil, serr
	}
	ng, ngErr := pcapgo.NewNgReader(f, pcapgo.DefaultNgReaderOptions)
	if ngErr != nil {
		return nil, fmt.Errorf("not a pcap (%v) or pcapng (%v) file", err, ngErr)
	}
	return ng, nil
}

// ReadPCAPFile replays the UDP payloads sent to port from a pcap or pcapng
// capture through handler. Port 0 accepts every UDP datagram. Handler
// errors are logged and skipped. It returns the number of payloads handled.
func ReadPCAPFile(ctx context.Context, path string, port int, handler PacketHandler) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open PCAP file %s: %w", path, err)
	}
	defer f.Close()

	src, err := openCapture(f)
	if err != nil {
		return 0, fmt.Errorf("failed to read PCAP file %s: %w", path, err)
	}

	packets := gopacket.NewPacketSource(src, src.LinkType())
	packets.DecodeOptions = gopacket.Lazy
	handled, failed := 0, 0
	for {
		select {
		case <-ctx.Done():
			log.Printf("[PCAP] stopping after %d payloads", handled)
			return handled, ctx.Err()
		case pkt, ok := <-packets.Packets():
			if !ok || pkt == nil {
				log.Printf("[PCAP] replay of %s complete: %d payloads, %d rejected", path, handled, failed)
				return handled, nil
			}
			udp, ok := pkt.Layer(layers.LayerTypeUDP).(*layers.UDP)
			if !ok || len(udp.Payload) == 0 {
				continue
			}
			if port != 0 && int(udp.DstPort) != port {
				continue
			}
			handled++
			if err := handler.HandlePacket(udp.Payload); err != nil {
				failed++
			}
		}
	}
}
