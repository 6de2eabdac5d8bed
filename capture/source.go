package capture

import (
	"log/slog"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcap"
)

type PacketSource interface {
	Packets() chan gopacket.Packet
}

var _ PacketSource = (*gopacket.PacketSource)(nil)

func NewPacketSourceLive(device, filter string) (PacketSource, error) {
	slog.Info("starting capture", "device", device, "filter", filter)
	handle, err := pcap.OpenLive(device, 65535, true, pcap.BlockForever)
	if err != nil {
		return nil, err
	}
	return newPacketSource(handle, filter)
}

// NewPacketSourceFile replays a pcap dump. Its channel closes at the end of
// the file.
func NewPacketSourceFile(fileName, filter string) (PacketSource, error) {
	slog.Info("reading pcap dump", "file", fileName, "filter", filter)
	handle, err := pcap.OpenOffline(fileName)
	if err != nil {
		return nil, err
	}
	return newPacketSource(handle, filter)
}

func newPacketSource(handle *pcap.Handle, filter string) (PacketSource, error) {
	if filter != "" {
		if err := handle.SetBPFFilter(filter); err != nil {
			handle.Close()
			return nil, err
		}
	}
	return gopacket.NewPacketSource(handle, handle.LinkType()), nil
}
