//go:build !linux

package netmon

import (
	"errors"
	"log"
)

// NewOperstateMonitor needs sysfs; on other platforms callers should fall
// back to NewProbeMonitor.
func NewOperstateMonitor(iface string, logger *log.Logger) (Monitor, error) {
	return nil, errors.New("netmon: operstate monitoring requires linux")
}
