package fragments

import (
	"encoding/binary"

	"golang.org/x/sys/cpu"
)

// HostEndianFlag is the wire byte-order marker ('l' or 'B') matching
// this host's native endianness. Unlike the Rust crate this codec is
// modeled on, nothing here ever needs to address a byte order other
// than the host's own, so there is no pluggable ByteOrder type: the
// flag byte is derived directly from runtime.GOARCH's endianness via
// golang.org/x/sys/cpu. Messages are always written with this flag,
// and messages read back must declare it or decoding fails with
// [ErrUnsupportedEndian].
func HostEndianFlag() byte {
	if cpu.IsBigEndian {
		return 'B'
	}
	return 'l'
}

// EndianFlagMatchesHost reports whether flag (an 'l' or 'B' wire byte)
// matches this host's native endianness.
func EndianFlagMatchesHost(flag byte) bool {
	return flag == HostEndianFlag()
}

// nativeEndian is the raw encoding/binary order matching the host,
// used internally by Writer/Reader primitive helpers. The codec never
// needs to write in any other order: per the wire format, a message
// always declares and uses the writer's native endianness.
var nativeEndian = binary.NativeEndian
