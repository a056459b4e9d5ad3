package router

import (
	"encoding/binary"
	"fmt"
)

// packMultipart serializes the 4-part multipart sequence into one
// length-prefixed websocket binary message. A websocket message is already
// frame-delimited, so this only needs to preserve the part boundaries
// within it.
func packMultipart(parts [][]byte) []byte {
	var out []byte
	var lenBuf [4]byte
	for _, p := range parts {
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(p)))
		out = append(out, lenBuf[:]...)
		out = append(out, p...)
	}
	return out
}

func unpackMultipart(buf []byte) ([][]byte, error) {
	var parts [][]byte
	for len(buf) > 0 {
		if len(buf) < 4 {
			return nil, fmt.Errorf("router: truncated part length")
		}
		n := binary.BigEndian.Uint32(buf[:4])
		buf = buf[4:]
		if uint32(len(buf)) < n {
			return nil, fmt.Errorf("router: truncated part body")
		}
		parts = append(parts, buf[:n])
		buf = buf[n:]
	}
	return parts, nil
}
