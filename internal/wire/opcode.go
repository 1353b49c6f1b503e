// Package wire implements the master/worker framing: a 2-byte opcode,
// optional big-endian float64 fitness and an optional serialized individual.
package wire

import (
	"errors"
	"fmt"
	"io"
)

// Version is the first byte of every opcode.
const Version byte = 0x00

type Command byte

const (
	// CmdStart asks the worker to (re)initialize its individual. The reply
	// carries fitness and the new individual.
	CmdStart Command = 0x01
	// CmdTrain asks for one mutate+evaluate cycle. The reply carries fitness.
	CmdTrain Command = 0x02
	// CmdGet asks for the current individual.
	CmdGet Command = 0x03
	// CmdSet pushes a replacement individual. It is never acknowledged.
	CmdSet Command = 0x04
)

var ErrUnknownOpcode = errors.New("unknown opcode")

func (c Command) String() string {
	switch c {
	case CmdStart:
		return "start"
	case CmdTrain:
		return "train"
	case CmdGet:
		return "get"
	case CmdSet:
		return "set"
	default:
		return fmt.Sprintf("0x%02x", byte(c))
	}
}

func (c Command) valid() bool {
	return c >= CmdStart && c <= CmdSet
}

func WriteOpcode(w io.Writer, cmd Command) error {
	_, err := w.Write([]byte{Version, byte(cmd)})
	return err
}

// ReadOpcode reads two bytes and rejects anything that is not a known
// command of the current version.
func ReadOpcode(r io.Reader) (Command, error) {
	var buf [2]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	cmd := Command(buf[1])
	if buf[0] != Version || !cmd.valid() {
		return 0, fmt.Errorf("%w: 0x%02x 0x%02x", ErrUnknownOpcode, buf[0], buf[1])
	}
	return cmd, nil
}

// ExpectOpcode reads an opcode and fails unless it equals want.
func ExpectOpcode(r io.Reader, want Command) error {
	got, err := ReadOpcode(r)
	if err != nil {
		return err
	}
	if got != want {
		return fmt.Errorf("%w: expected %s, got %s", ErrUnknownOpcode, want, got)
	}
	return nil
}
