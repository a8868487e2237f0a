// Package nativemsg implements the browser native messaging framing: every
// message is a 4-byte length in native byte order followed by that many bytes
// of UTF-8 JSON.
package nativemsg

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
)

// MaxMessageSize is the largest frame accepted from the browser (64 MiB).
const MaxMessageSize = 64 << 20

// ErrMessageTooLarge is returned when a length prefix exceeds MaxMessageSize.
var ErrMessageTooLarge = errors.New("nativemsg: message too large")

// DecodeError reports a frame whose payload is not valid JSON. The frame has
// been consumed in full, so the stream is still aligned on a frame boundary.
type DecodeError struct {
	Payload []byte
	Err     error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("nativemsg: decode %d byte payload: %v", len(e.Payload), e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Reader reads framed messages.
type Reader struct {
	r io.Reader
}

// NewReader returns a Reader consuming r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// ReadRaw returns the next payload. It returns io.EOF when the stream ends
// cleanly before a frame starts and io.ErrUnexpectedEOF when it ends inside one.
func (r *Reader) ReadRaw() ([]byte, error) {
	var prefix [4]byte
	if _, err := io.ReadFull(r.r, prefix[:]); err != nil {
		return nil, err
	}
	n := binary.NativeEndian.Uint32(prefix[:])
	if n > MaxMessageSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, n)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r.r, payload); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return payload, nil
}

// ReadMessage decodes the next frame into v.
func (r *Reader) ReadMessage(v any) error {
	payload, err := r.ReadRaw()
	if err != nil {
		return err
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return &DecodeError{Payload: payload, Err: err}
	}
	return nil
}

type flusher interface {
	Flush() error
}

// Writer writes framed messages. A frame is handed to the underlying writer
// in a single Write call, so concurrent callers never interleave.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriter returns a Writer producing frames on w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteMessage encodes v as JSON and writes it as one frame.
func (w *Writer) WriteMessage(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("nativemsg: encode: %w", err)
	}
	return w.WriteRaw(payload)
}

// WriteRaw writes payload as one frame and flushes.
func (w *Writer) WriteRaw(payload []byte) error {
	if uint64(len(payload)) > uint64(^uint32(0)) {
		return fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, len(payload))
	}
	frame := make([]byte, 4+len(payload))
	binary.NativeEndian.PutUint32(frame, uint32(len(payload)))
	copy(frame[4:], payload)

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.w.Write(frame); err != nil {
		return err
	}
	if f, ok := w.w.(flusher); ok {
		return f.Flush()
	}
	return nil
}

// Channel pairs a Reader and a Writer, typically over stdin and stdout.
type Channel struct {
	*Reader
	*Writer
}

// NewChannel returns a Channel reading from r and writing to w.
func NewChannel(r io.Reader, w io.Writer) *Channel {
	return &Channel{Reader: NewReader(r), Writer: NewWriter(w)}
}
