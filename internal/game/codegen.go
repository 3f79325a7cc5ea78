// internal/game/codegen.go
package game

import (
	"crypto/rand"
	"fmt"
	"strings"
)

// CodeAlphabet is the set of symbols a room code is drawn from.
const CodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// CodeLength is the number of symbols in a room code.
const CodeLength = 6

// largest multiple of len(CodeAlphabet) that fits in a byte; bytes above it are rejected
const codeByteLimit = 256 - 256%len(CodeAlphabet)

// RandomCode draws a room code uniformly from CodeAlphabet using crypto/rand.
func RandomCode() (string, error) {
	out := make([]byte, 0, CodeLength)
	buf := make([]byte, CodeLength*2)
	for len(out) < CodeLength {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("read random bytes: %w", err)
		}
		for _, b := range buf {
			if int(b) >= codeByteLimit {
				continue
			}
			out = append(out, CodeAlphabet[int(b)%len(CodeAlphabet)])
			if len(out) == CodeLength {
				break
			}
		}
	}
	return string(out), nil
}

// NormalizeCode upper-cases and trims user input, returning ErrInvalidInput
// when the result is not a well-formed code.
func NormalizeCode(raw string) (string, error) {
	code := strings.ToUpper(strings.TrimSpace(raw))
	if len(code) != CodeLength {
		return "", fmt.Errorf("%w: room code must be %d characters", ErrInvalidInput, CodeLength)
	}
	for i := 0; i < len(code); i++ {
		if strings.IndexByte(CodeAlphabet, code[i]) < 0 {
			return "", fmt.Errorf("%w: room code contains %q", ErrInvalidInput, code[i])
		}
	}
	return code, nil
}
