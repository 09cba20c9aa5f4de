package ppn

import "io"

// PacketPipe is an OS-level packet endpoint handed to the datapath: either
// the tunnel interface or a per-network protected socket. The session owns
// every pipe it receives and is the only component allowed to close it.
type PacketPipe interface {
	io.ReadWriteCloser

	// Fd returns the underlying descriptor, used to correlate the pipe with
	// datapath failure reports.
	Fd() (int, error)
}
