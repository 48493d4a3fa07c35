package persistence

import (
	"encoding/binary"
	"errors"
	"hash/crc32"
	"io"
)

// Constants for the AOF binary protocol.
const (
	// MagicByte is the marker used to identify the start of a valid frame.
	// It helps in scanning for recovery if the file is heavily corrupted.
	MagicByte = 0xA5

	// HeaderSize is the fixed size of the frame metadata:
	// 1 byte (Magic) + 1 byte (OpCode) + 4 bytes (Length) + 4 bytes (CRC32) = 10 bytes.
	HeaderSize = 10

	// OpPut stores (or replaces) a page; the payload is the JSON encoded page.
	OpPut byte = 0x01
	// OpDelete removes a page; the payload is the JSON encoded uid.
	OpDelete byte = 0x02
)

var (
	// ErrInvalidMagic indicates the file stream lost synchronization or is not a valid AOF.
	ErrInvalidMagic = errors.New("invalid magic byte")
	// ErrChecksumMismatch indicates data corruption within the frame payload.
	ErrChecksumMismatch = errors.New("crc32 checksum mismatch")
	// ErrIncompleteFrame indicates the file ended abruptly (e.g., power loss during write).
	ErrIncompleteFrame = errors.New("incomplete frame")
	// ErrCorruptLog is returned by Replay when a bad frame is followed by more
	// data, i.e. the damage is not a torn final write.
	ErrCorruptLog = errors.New("corrupt frame inside AOF")
)

// FrameWriter handles the safe writing of binary frames to an io.Writer.
type FrameWriter struct {
	w io.Writer
}

// NewFrameWriter creates a writer that wraps an underlying io.Writer.
func NewFrameWriter(w io.Writer) *FrameWriter {
	return &FrameWriter{w: w}
}

// WriteFrame encodes the payload into a binary frame and writes it.
// Frame Format: [Magic(1)][OpCode(1)][Length(4)][CRC(4)][Payload(N)]
func (fw *FrameWriter) WriteFrame(op byte, payload []byte) error {
	_, err := fw.w.Write(EncodeFrame(op, payload))
	return err
}

// EncodeFrame returns the header and payload as a single buffer, so that one
// Write call emits the whole frame.
func EncodeFrame(op byte, payload []byte) []byte {
	frame := make([]byte, HeaderSize+len(payload))

	frame[0] = MagicByte
	frame[1] = op

	// Payload Length (uint32 Little Endian)
	binary.LittleEndian.PutUint32(frame[2:6], uint32(len(payload)))

	// Checksum (IEEE 802.3)
	binary.LittleEndian.PutUint32(frame[6:10], crc32.ChecksumIEEE(payload))

	copy(frame[HeaderSize:], payload)
	return frame
}

// ReadFrame reads the next frame from the reader.
// It performs validation of the Magic Byte and the CRC32 Checksum.
// Returns the op code, the payload, the total bytes read (header + payload), and an error.
func ReadFrame(r io.Reader) (byte, []byte, int, error) {
	header := make([]byte, HeaderSize)

	// 1. Read Header
	// ReadFull ensures we get exactly HeaderSize bytes or an error.
	if _, err := io.ReadFull(r, header); err != nil {
		// If we are at EOF exactly at the start of a frame, it's a clean exit.
		if err == io.EOF {
			return 0, nil, 0, io.EOF
		}
		// If we read partial bytes (e.g. 5 bytes then EOF), it's a corruption (ErrUnexpectedEOF).
		return 0, nil, 0, ErrIncompleteFrame
	}

	// 2. Validate Magic Byte
	if header[0] != MagicByte {
		return 0, nil, HeaderSize, ErrInvalidMagic
	}

	op := header[1]

	// 3. Parse Length and Expected CRC
	length := binary.LittleEndian.Uint32(header[2:6])
	expectedCRC := binary.LittleEndian.Uint32(header[6:10])

	// 4. Read Payload
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		// Even if it's EOF here, it's an error because we expected 'length' bytes.
		return 0, nil, HeaderSize, ErrIncompleteFrame
	}

	// 5. Verify Checksum
	actualCRC := crc32.ChecksumIEEE(payload)
	if actualCRC != expectedCRC {
		return 0, nil, HeaderSize + int(length), ErrChecksumMismatch
	}

	return op, payload, HeaderSize + int(length), nil
}
