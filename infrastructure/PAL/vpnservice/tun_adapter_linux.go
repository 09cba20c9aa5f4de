//go:build linux

package vpnservice

import (
	"errors"

	"golang.zx2c4.com/wireguard/tun"
)

// tunOffset is the headroom the wireguard tun driver needs in front of the
// packet for its virtio header.
const tunOffset = 16

const maxPacketLength = 9000

// tunAdapter wraps a wireguard/tun Device behind plain single-packet
// Read/Write with pre-allocated buffers, so no per-packet heap allocations
// happen on the forwarding path.
type tunAdapter struct {
	device      tun.Device
	readBuffer  []byte
	writeBuffer []byte
	readSizes   []int
}

func newTunAdapter(device tun.Device) *tunAdapter {
	return &tunAdapter{
		device:      device,
		readBuffer:  make([]byte, tunOffset+maxPacketLength),
		writeBuffer: make([]byte, tunOffset+maxPacketLength),
		readSizes:   make([]int, 1),
	}
}

// Read copies one IP packet from the device into p.
func (a *tunAdapter) Read(p []byte) (int, error) {
	bufs := [][]byte{a.readBuffer}
	a.readSizes[0] = 0
	if _, err := a.device.Read(bufs, a.readSizes, tunOffset); err != nil {
		return 0, err
	}
	n := a.readSizes[0]
	if n > len(p) {
		return 0, errors.New("destination slice too small")
	}
	copy(p, a.readBuffer[tunOffset:tunOffset+n])
	return n, nil
}

// Write sends one IP packet to the device.
func (a *tunAdapter) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, errors.New("empty packet")
	}
	if len(p)+tunOffset > len(a.writeBuffer) {
		return 0, errors.New("packet exceeds max size")
	}
	copy(a.writeBuffer[tunOffset:], p)
	if _, err := a.device.Write([][]byte{a.writeBuffer[:tunOffset+len(p)]}, tunOffset); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (a *tunAdapter) Close() error { return a.device.Close() }

func (a *tunAdapter) Fd() (int, error) {
	file := a.device.File()
	if file == nil {
		return 0, errors.New("tun device exposes no file")
	}
	return int(file.Fd()), nil
}
