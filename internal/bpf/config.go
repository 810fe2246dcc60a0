package bpf

import (
	"github.com/cen-ngc5139/nfsd-trace/internal/config"
)

// Cfg mirrors struct config in the kernel program and is written into the
// CFG constant before load.
type Cfg struct {
	EnableDebug uint8
}

func boolToUint8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

func GetConfig(flags config.Configuration) Cfg {
	return Cfg{
		EnableDebug: boolToUint8(flags.Features.Debug),
	}
}
