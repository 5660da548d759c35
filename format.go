package securestore

import (
	"encoding/base64"
)

// Sealed value layout, string-armored so ciphertext can live in the same
// document field that previously held plaintext:
//
//	"enc:v1:" + base64(std)( [flag:1][keyNameLen:1][keyName:n][sealed box] )
//
// Flag byte values:
//
//	0x00 = no compression
//	0x01 = zstd compressed
//
// The marker makes encryption state explicit instead of inferring it from
// value shape, and the embedded key name records which logical key sealed
// the value (groundwork for key versioning, which this package does not
// implement).
const (
	sealedMarker = "enc:v1:"

	flagNoCompression byte = 0x00
	flagZstd          byte = 0x01
)

// IsSealed reports whether value was produced by FieldCipher.Seal.
// It checks only the marker; the envelope may still be malformed.
func IsSealed(value string) bool {
	return len(value) > len(sealedMarker) && value[:len(sealedMarker)] == sealedMarker
}

// LooksEncrypted is the legacy shape heuristic: a string of length >= 40
// consisting solely of base64 alphabet characters. It is an approximation,
// not a proof — natural base64-like plaintext triggers false positives —
// and is used only to keep self-repair away from foreign ciphertext-shaped
// blobs. IsSealed is authoritative for values written by this package.
func LooksEncrypted(value string) bool {
	if IsSealed(value) {
		return true
	}
	if len(value) < 40 {
		return false
	}
	for i := 0; i < len(value); i++ {
		c := value[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == '+' || c == '/' || c == '=':
		default:
			return false
		}
	}
	return true
}

// encodeEnvelope assembles and armors the sealed value.
func encodeEnvelope(flag byte, keyName string, sealed []byte) string {
	name := []byte(keyName)
	payload := make([]byte, 0, 2+len(name)+len(sealed))
	payload = append(payload, flag)
	payload = append(payload, byte(len(name)))
	payload = append(payload, name...)
	payload = append(payload, sealed...)
	return sealedMarker + base64.StdEncoding.EncodeToString(payload)
}

// decodeEnvelope strips the marker and parses the envelope.
func decodeEnvelope(value string) (flag byte, keyName string, sealed []byte, err error) {
	if !IsSealed(value) {
		err = ErrNotSealed
		return
	}
	payload, derr := base64.StdEncoding.DecodeString(value[len(sealedMarker):])
	if derr != nil {
		err = ErrInvalidFormat
		return
	}
	// flag + keyNameLen + at least one name byte + non-empty box.
	if len(payload) < 4 {
		err = ErrInvalidFormat
		return
	}
	flag = payload[0]
	nameLen := int(payload[1])
	if nameLen == 0 || len(payload) < 2+nameLen+1 {
		err = ErrInvalidFormat
		return
	}
	keyName = string(payload[2 : 2+nameLen])
	sealed = payload[2+nameLen:]
	return
}
