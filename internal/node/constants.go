package node

import "time"

const (
	ReadBufferSize   = 4096
	KillGracePeriod  = 500 * time.Millisecond
	DefaultShell     = "/bin/sh"
	InterruptChar    = 0x03 // ETX, the terminal's VINTR
	DefaultTermValue = "dumb"
)
