package wire

import "fmt"

// multipart frames follow the fixed convention: identity ∥ empty ∥ empty ∥
// payload. The router endpoint uses these to associate an inbound frame
// with the peer identity that sent it, and to echo that identity back on
// outbound replies.

// EncodeMultipart assembles the four-part frame sequence for one logical
// message addressed to/from the given peer identity.
func EncodeMultipart(identity string, payload []byte) [][]byte {
	return [][]byte{[]byte(identity), nil, nil, payload}
}

// DecodeMultipart validates and unpacks a received multipart sequence.
// A malformed sequence is reported via error rather than panicking, so the
// caller can log and drop the frame per the router's "never fatal" policy.
func DecodeMultipart(parts [][]byte) (identity string, payload []byte, err error) {
	if len(parts) != 4 {
		return "", nil, fmt.Errorf("wire: malformed multipart frame: want 4 parts, got %d", len(parts))
	}
	if len(parts[1]) != 0 || len(parts[2]) != 0 {
		return "", nil, fmt.Errorf("wire: malformed multipart frame: non-empty delimiter")
	}
	return string(parts[0]), parts[3], nil
}
