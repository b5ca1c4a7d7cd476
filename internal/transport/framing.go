package transport

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// maxMessageSize bounds the length prefix so a corrupt or adversarial
// peer cannot make a reader allocate unboundedly.
const maxMessageSize = 64 << 20

// WriteMessage writes body prefixed with its little-endian uint32
// length. body is the complete logical frame (opcode + payload, as
// produced by internal/wire); this length prefix exists purely to carry
// that frame intact over a byte-stream socket.
func WriteMessage(w io.Writer, body []byte) error {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(body)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("transport: write length prefix: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("transport: write body: %w", err)
	}
	return nil
}

// ReadMessage reads one length-prefixed message and returns its body.
func ReadMessage(r *bufio.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])
	if n > maxMessageSize {
		return nil, fmt.Errorf("transport: message length %d exceeds limit", n)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("transport: read body: %w", err)
	}
	return body, nil
}
