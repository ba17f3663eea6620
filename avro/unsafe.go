package avro

import "unsafe"

// bytesToString borrows b's storage as a string with no allocation or
// copy, the same trick the teacher's reader.go applies to ReadString.
// Safe here because Buffer is forward-only and never mutates already-read
// bytes; callers that need the string to outlive the underlying block
// must copy it (e.g. via strings.Clone) before the block is reused.
func bytesToString(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return unsafe.String(&b[0], len(b))
}
