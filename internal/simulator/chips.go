package simulator

import "encoding/binary"

// ParallelChip is byte-wide memory on the parallel bus.
type ParallelChip struct {
	Memory []byte

	// Reads and Writes record the byte count of every transfer.
	Reads  []int
	Writes []int
}

// NewParallelChip creates a chip of size bytes, initialized to 0xFF.
func NewParallelChip(size int) *ParallelChip {
	return &ParallelChip{Memory: filled(size, 0xFF)}
}

func (c *ParallelChip) read(address uint32, count int) ([]byte, bool) {
	end := int(address) + count
	if end > len(c.Memory) {
		return nil, false
	}
	c.Reads = append(c.Reads, count)
	return append([]byte(nil), c.Memory[address:end]...), true
}

func (c *ParallelChip) write(address uint32, data []byte) bool {
	end := int(address) + len(data)
	if end > len(c.Memory) {
		return false
	}
	c.Writes = append(c.Writes, len(data))
	copy(c.Memory[address:end], data)
	return true
}

// SPI EEPROM instruction set (25xx family).
const (
	spiWRSR  = 0x01
	spiWRITE = 0x02
	spiREAD  = 0x03
	spiWRDI  = 0x04
	spiRDSR  = 0x05
	spiWREN  = 0x06

	statusWEL = 0x02
)

// SPIEEPROM models a page-oriented 25xx SPI EEPROM with a 16-bit address.
// Like the real part, a WRITE that runs past the end of a page wraps to the
// start of the same page, and a WRITE without a preceding WREN is ignored.
type SPIEEPROM struct {
	Memory   []byte
	PageSize int

	// Writes records the data length of every accepted WRITE.
	Writes []int
	// Transactions counts chip-select cycles.
	Transactions int

	wel    bool
	status byte
}

// NewSPIEEPROM creates an erased EEPROM of size bytes.
func NewSPIEEPROM(size, pageSize int) *SPIEEPROM {
	return &SPIEEPROM{Memory: filled(size, 0xFF), PageSize: pageSize}
}

// Transfer implements SPIDevice.
func (e *SPIEEPROM) Transfer(mosi []byte) []byte {
	e.Transactions++
	miso := make([]byte, len(mosi))
	if len(mosi) == 0 {
		return miso
	}

	switch mosi[0] {
	case spiWREN:
		e.wel = true
	case spiWRDI:
		e.wel = false
	case spiRDSR:
		for i := 1; i < len(miso); i++ {
			miso[i] = e.statusByte()
		}
	case spiWRSR:
		if e.wel && len(mosi) > 1 {
			e.status = mosi[1] &^ statusWEL
			e.wel = false
		}
	case spiREAD:
		if len(mosi) < 3 || len(e.Memory) == 0 {
			break
		}
		address := int(binary.BigEndian.Uint16(mosi[1:3]))
		for i := 3; i < len(mosi); i++ {
			miso[i] = e.Memory[(address+i-3)%len(e.Memory)]
		}
	case spiWRITE:
		if len(mosi) < 3 || !e.wel || len(e.Memory) == 0 {
			break
		}
		address := int(binary.BigEndian.Uint16(mosi[1:3])) % len(e.Memory)
		data := mosi[3:]
		pageSize := e.pageSize()
		page := address - address%pageSize
		for i, b := range data {
			offset := (address - page + i) % pageSize
			e.Memory[(page+offset)%len(e.Memory)] = b
		}
		e.Writes = append(e.Writes, len(data))
		e.wel = false
	}
	return miso
}

// pageSize treats a missing or oversized page as one page spanning the
// whole array.
func (e *SPIEEPROM) pageSize() int {
	if e.PageSize <= 0 || e.PageSize > len(e.Memory) {
		return len(e.Memory)
	}
	return e.PageSize
}

func (e *SPIEEPROM) statusByte() byte {
	if e.wel {
		return e.status | statusWEL
	}
	return e.status
}

func filled(size int, value byte) []byte {
	b := make([]byte, size)
	for i := range b {
		b[i] = value
	}
	return b
}
