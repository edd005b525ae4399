package licensing

import (
	"fmt"
	"time"
)

// KeyGenerator derives a license key from a device identifier and an expiry.
type KeyGenerator func(deviceIDStr string, expiresAt time.Time) string

// PlaceholderKey is the default key scheme. It is a readable, unsigned token
// that encodes the device and the expiry in Unix seconds; it only needs to be
// distinct per (device, expiry) and carries no integrity guarantee.
func PlaceholderKey(deviceIDStr string, expiresAt time.Time) string {
	return fmt.Sprintf("LIC::%s::%d", deviceIDStr, expiresAt.Unix())
}
