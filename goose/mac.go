package goose

import (
	"encoding/hex"
	"fmt"
	"net"
	"strings"
)

// MACToBytes parses a MAC written with colons, hyphens or no separator.
func MACToBytes(s string) ([]byte, error) {
	raw := strings.NewReplacer(":", "", "-", "").Replace(s)
	b, err := hex.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidMAC, s, err)
	}
	if len(b) != 6 {
		return nil, fmt.Errorf("%w: %q has %d bytes", ErrInvalidMAC, s, len(b))
	}
	return b, nil
}

// ParseMAC is MACToBytes returning a net.HardwareAddr.
func ParseMAC(s string) (net.HardwareAddr, error) {
	b, err := MACToBytes(s)
	return net.HardwareAddr(b), err
}

// BytesToMAC formats as upper-case colon separated hex, e.g. "01:0C:CD:01:00:01".
func BytesToMAC(b []byte) string {
	var sb strings.Builder
	for i, v := range b {
		if i > 0 {
			sb.WriteByte(':')
		}
		fmt.Fprintf(&sb, "%02X", v)
	}
	return sb.String()
}

// BytesToHexString formats as "0x" followed by upper-case hex, e.g. "0x88B8".
func BytesToHexString(b []byte) string {
	return "0x" + strings.ToUpper(hex.EncodeToString(b))
}
