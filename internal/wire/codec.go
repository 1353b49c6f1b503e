package wire

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"math"
)

// MaxIndividualSize bounds a single serialized individual.
const MaxIndividualSize = 64 << 20

var (
	// ErrMalformedIndividual means the body was read completely but could
	// not be decoded. The stream is still aligned on the next opcode.
	ErrMalformedIndividual = errors.New("malformed individual")
	ErrIndividualTooLarge  = errors.New("individual exceeds size limit")
)

// SizeError reports a body whose declared length is over the limit. Only the
// length prefix has been read; the caller decides whether to skip Size bytes
// or abandon the stream.
type SizeError struct {
	Size  uint32
	Limit int
}

func (e *SizeError) Error() string {
	return fmt.Sprintf("%v: %d bytes (limit %d)", ErrIndividualTooLarge, e.Size, e.Limit)
}

func (e *SizeError) Unwrap() error { return ErrIndividualTooLarge }

func WriteFitness(w io.Writer, fitness float64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], math.Float64bits(fitness))
	_, err := w.Write(buf[:])
	return err
}

func ReadFitness(r io.Reader) (float64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.BigEndian.Uint64(buf[:])), nil
}

// EncodeIndividual returns the gob encoding of v. Both ends must agree on
// the concrete type.
func EncodeIndividual[T any](v T) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("encode individual: %w", err)
	}
	return buf.Bytes(), nil
}

func DecodeIndividual[T any](data []byte) (T, error) {
	var v T
	r := bytes.NewReader(data)
	if err := gob.NewDecoder(r).Decode(&v); err != nil {
		var zero T
		return zero, fmt.Errorf("%w: %v", ErrMalformedIndividual, err)
	}
	if r.Len() != 0 {
		var zero T
		return zero, fmt.Errorf("%w: %d trailing bytes", ErrMalformedIndividual, r.Len())
	}
	return v, nil
}

// WriteIndividual writes a uint32 length followed by the encoded individual.
func WriteIndividual[T any](w io.Writer, v T) error {
	data, err := EncodeIndividual(v)
	if err != nil {
		return err
	}
	return WriteBody(w, data)
}

// WriteEmpty writes the zero-length marker used when no individual is held.
func WriteEmpty(w io.Writer) error {
	return WriteBody(w, nil)
}

func WriteBody(w io.Writer, data []byte) error {
	if len(data) > MaxIndividualSize {
		return fmt.Errorf("%w: %d bytes", ErrIndividualTooLarge, len(data))
	}
	var size [4]byte
	binary.BigEndian.PutUint32(size[:], uint32(len(data)))
	if _, err := w.Write(size[:]); err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	_, err := w.Write(data)
	return err
}

// ReadBody reads one length-prefixed body. A nil slice means the empty
// marker.
func ReadBody(r io.Reader) ([]byte, error) {
	return ReadBodyLimit(r, MaxIndividualSize)
}

// ReadBodyLimit is ReadBody with a caller supplied size limit. A body over
// the limit is reported as *SizeError and left unread.
func ReadBodyLimit(r io.Reader, limit int) ([]byte, error) {
	var size [4]byte
	if _, err := io.ReadFull(r, size[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(size[:])
	if n == 0 {
		return nil, nil
	}
	if uint64(n) > uint64(limit) {
		return nil, &SizeError{Size: n, Limit: limit}
	}
	data := make([]byte, n)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}
	return data, nil
}

// ReadIndividual reads one body and decodes it. ok is false for the empty
// marker. A decode failure returns ErrMalformedIndividual with the body
// already consumed.
func ReadIndividual[T any](r io.Reader) (v T, ok bool, err error) {
	return ReadIndividualLimit[T](r, MaxIndividualSize)
}

func ReadIndividualLimit[T any](r io.Reader, limit int) (v T, ok bool, err error) {
	data, err := ReadBodyLimit(r, limit)
	if err != nil {
		return v, false, err
	}
	if data == nil {
		return v, false, nil
	}
	v, err = DecodeIndividual[T](data)
	if err != nil {
		return v, false, err
	}
	return v, true, nil
}
