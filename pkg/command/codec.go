// Package command encodes control values for the drive controller and
// delivers them over a byte channel.
//
// The wire format is the base-10 ASCII integer followed by a single '\n',
// e.g. "1000\n" or "-37\n".
package command

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// ErrMalformed is returned when a line is not a valid command.
var ErrMalformed = errors.New("command: malformed")

// Terminator ends every command on the wire.
const Terminator = '\n'

// Encode formats v as ASCII digits followed by a newline.
func Encode(v int) []byte {
	return AppendEncode(make([]byte, 0, 8), v)
}

// AppendEncode appends the encoded form of v to dst.
func AppendEncode(dst []byte, v int) []byte {
	dst = strconv.AppendInt(dst, int64(v), 10)
	return append(dst, Terminator)
}

// Parse decodes one encoded command. A trailing "\n" or "\r\n" is accepted.
func Parse(b []byte) (int, error) {
	line := bytes.TrimSuffix(b, []byte{Terminator})
	line = bytes.TrimSuffix(line, []byte{'\r'})
	if len(line) == 0 {
		return 0, fmt.Errorf("%w: empty line", ErrMalformed)
	}
	v, err := strconv.Atoi(string(line))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrMalformed, line)
	}
	return v, nil
}

// Scanner reads newline-delimited commands from a stream.
type Scanner struct {
	sc  *bufio.Scanner
	v   int
	err error
}

// NewScanner returns a Scanner reading from r.
func NewScanner(r io.Reader) *Scanner {
	return &Scanner{sc: bufio.NewScanner(r)}
}

// Scan advances to the next command. It returns false at end of input or on
// the first malformed line; Err reports which.
func (s *Scanner) Scan() bool {
	if s.err != nil || !s.sc.Scan() {
		return false
	}
	v, err := Parse(s.sc.Bytes())
	if err != nil {
		s.err = err
		return false
	}
	s.v = v
	return true
}

// Value returns the most recently scanned command.
func (s *Scanner) Value() int {
	return s.v
}

// Err returns the first error encountered, if any.
func (s *Scanner) Err() error {
	if s.err != nil {
		return s.err
	}
	return s.sc.Err()
}
