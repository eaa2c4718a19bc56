package protocol

// Per-command overhead subtracted from the device buffers.
const (
	parallelReadOverhead  = 1 // status byte
	parallelWriteOverhead = 9 // opcode + address + count
	spiRxOverhead         = 5 // opcode + count
	spiTxOverhead         = 1 // status byte
)

// Capabilities holds the buffer limits negotiated at session start.
type Capabilities struct {
	MaxRxSize uint32
	MaxTxSize uint32

	MaxParallelRead  int
	MaxParallelWrite int
	MaxSPITransmit   int
}

// NewCapabilities derives the transfer limits from the device buffer sizes.
// Limits never go below zero, even for buffers smaller than the overhead.
func NewCapabilities(maxRx, maxTx uint32) Capabilities {
	return Capabilities{
		MaxRxSize:        maxRx,
		MaxTxSize:        maxTx,
		MaxParallelRead:  limit(maxTx, parallelReadOverhead),
		MaxParallelWrite: limit(maxRx, parallelWriteOverhead),
		MaxSPITransmit:   min(limit(maxRx, spiRxOverhead), limit(maxTx, spiTxOverhead)),
	}
}

func limit(size uint32, overhead int) int {
	n := int(size) - overhead
	if n < 0 {
		return 0
	}
	return n
}
