package base

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
)

const (
	// frameHeaderSize is flags(1) + length(4)
	frameHeaderSize = 5
	// flagMore marks a frame that is followed by another frame of the same message
	flagMore byte = 0x01
)

// writeMessage writes all frames of one message to w. Every frame has the format:
// - 1 byte: flags (bit 0 = more frames follow)
// - 4 bytes: payload length (uint32, big endian)
// - N bytes: payload
func writeMessage(w io.Writer, frames [][]byte) error {
	if len(frames) == 0 {
		return fmt.Errorf("cannot write an empty message")
	}

	headers := make([]byte, frameHeaderSize*len(frames))
	bufs := make(net.Buffers, 0, 2*len(frames))
	for i, frame := range frames {
		h := headers[i*frameHeaderSize : (i+1)*frameHeaderSize]
		if i < len(frames)-1 {
			h[0] = flagMore
		}
		binary.BigEndian.PutUint32(h[1:], uint32(len(frame)))
		bufs = append(bufs, h)
		if len(frame) > 0 {
			bufs = append(bufs, frame)
		}
	}

	_, err := bufs.WriteTo(w)
	return err
}

// readMessage reads frames until a frame without the more flag arrived.
// maxBytes bounds the total size of the message including the frame headers, so a
// stream of empty frames is bounded too (0 = unbounded).
func readMessage(r io.Reader, maxBytes int) ([][]byte, error) {
	var (
		header [frameHeaderSize]byte
		frames [][]byte
		total  int
	)
	for {
		if _, err := io.ReadFull(r, header[:]); err != nil {
			if len(frames) > 0 && err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return nil, err
		}
		size := int(binary.BigEndian.Uint32(header[1:]))
		total += frameHeaderSize + size
		if maxBytes > 0 && total > maxBytes {
			return nil, fmt.Errorf("message exceeds %d bytes", maxBytes)
		}

		frame := make([]byte, size)
		if _, err := io.ReadFull(r, frame); err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return nil, err
		}
		frames = append(frames, frame)

		if header[0]&flagMore == 0 {
			return frames, nil
		}
	}
}
