package protocol

import "time"

// Default serial baud rate used by the programmer firmware
const DefaultBaudRate = 115200

// DefaultTimeout bounds how long a single receive waits for the device.
const DefaultTimeout = 2 * time.Second
