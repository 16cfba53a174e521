package protocol

import (
	"bytes"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/klauspost/compress/zlib"
)

// deflate compresses b with zlib and returns it as a binary string: every
// byte becomes the code point of the same value, UTF-8 encoded.
func deflate(b []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(b); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return toBinaryString(buf.Bytes()), nil
}

// inflate reverses deflate.
func inflate(b []byte) ([]byte, error) {
	raw, err := fromBinaryString(b)
	if err != nil {
		return nil, err
	}
	r, err := zlib.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out, err := io.ReadAll(io.LimitReader(r, maxPayloadSize+1))
	if err != nil {
		return nil, err
	}
	if len(out) > maxPayloadSize {
		return nil, fmt.Errorf("inflated size exceeds maximum %d bytes", maxPayloadSize)
	}
	return out, nil
}

func toBinaryString(b []byte) []byte {
	out := make([]byte, 0, len(b)*2)
	for _, c := range b {
		out = utf8.AppendRune(out, rune(c))
	}
	return out
}

func fromBinaryString(s []byte) ([]byte, error) {
	out := make([]byte, 0, len(s))
	for len(s) > 0 {
		r, size := utf8.DecodeRune(s)
		if r == utf8.RuneError && size <= 1 {
			return nil, fmt.Errorf("invalid utf-8 in binary string")
		}
		if r > 0xFF {
			return nil, fmt.Errorf("code point %U out of byte range", r)
		}
		out = append(out, byte(r))
		s = s[size:]
	}
	return out, nil
}
