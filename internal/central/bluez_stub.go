//go:build !linux

package central

import "errors"

// NewSystem is only implemented on Linux (BlueZ over D-Bus).
func NewSystem() (Central, error) {
	return nil, errors.New("central: no BLE central available on this platform")
}
