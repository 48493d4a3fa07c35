package persistence

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/sanonone/pageselect/pkg/core/types"
)

// Command is one decoded AOF entry.
type Command struct {
	Op   byte
	Page types.Page // set for OpPut
	UID  uint32     // set for OpDelete
}

// EncodePut returns the frame that stores page.
func EncodePut(page types.Page) ([]byte, error) {
	payload, err := json.Marshal(page)
	if err != nil {
		return nil, fmt.Errorf("failed to encode page %d: %w", page.UID, err)
	}
	return EncodeFrame(OpPut, payload), nil
}

// EncodeDelete returns the frame that removes the page with the given uid.
func EncodeDelete(uid uint32) []byte {
	payload, _ := json.Marshal(uid)
	return EncodeFrame(OpDelete, payload)
}

// Replay decodes frames from r and calls apply for each command in order.
//
// A torn or corrupt frame that ends the stream stops the replay without
// error (the process most likely died mid-write). A bad frame with more data
// behind it stops the replay with ErrCorruptLog. Either way the number of
// bytes applied so far is returned. Errors from apply abort the replay.
func Replay(r io.Reader, apply func(Command) error) (int64, error) {
	br := bufio.NewReader(r)
	var valid int64

	for {
		op, payload, n, err := ReadFrame(br)
		if err == io.EOF || errors.Is(err, ErrIncompleteFrame) {
			return valid, nil
		}
		if errors.Is(err, ErrChecksumMismatch) || errors.Is(err, ErrInvalidMagic) {
			if _, peekErr := br.Peek(1); peekErr == io.EOF {
				return valid, nil
			}
			return valid, fmt.Errorf("%w at offset %d: %w", ErrCorruptLog, valid, err)
		}
		if err != nil {
			return valid, err
		}

		cmd := Command{Op: op}
		switch op {
		case OpPut:
			if err := json.Unmarshal(payload, &cmd.Page); err != nil {
				return valid, fmt.Errorf("corrupt PUT entry at offset %d: %w", valid, err)
			}
		case OpDelete:
			if err := json.Unmarshal(payload, &cmd.UID); err != nil {
				return valid, fmt.Errorf("corrupt DEL entry at offset %d: %w", valid, err)
			}
		default:
			return valid, fmt.Errorf("unknown op code 0x%02x at offset %d", op, valid)
		}

		if err := apply(cmd); err != nil {
			return valid, err
		}
		valid += int64(n)
	}
}
