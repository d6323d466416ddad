package source

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/tidwall/jsonc"
)

// Repair escapes raw line breaks that appear inside quoted strings. Hand
// written documents often carry multi-line descriptions that strict JSON
// rejects. Comments are skipped so quotes inside them do not flip the string
// state.
func Repair(data []byte) []byte {
	if bytes.IndexAny(data, "\r\n") < 0 {
		return data
	}
	out := make([]byte, 0, len(data)+16)
	var (
		inString     bool
		escaped      bool
		lineComment  bool
		blockComment bool
	)
	for i := 0; i < len(data); i++ {
		c := data[i]
		switch {
		case lineComment:
			if c == '\n' {
				lineComment = false
			}
		case blockComment:
			if c == '*' && i+1 < len(data) && data[i+1] == '/' {
				blockComment = false
				out = append(out, c, '/')
				i++
				continue
			}
		case inString:
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			case c == '\n':
				out = append(out, '\\', 'n')
				continue
			case c == '\r':
				out = append(out, '\\', 'r')
				continue
			}
		default:
			switch {
			case c == '"':
				inString = true
			case c == '/' && i+1 < len(data) && data[i+1] == '/':
				lineComment = true
			case c == '/' && i+1 < len(data) && data[i+1] == '*':
				blockComment = true
				out = append(out, c, '*')
				i++
				continue
			}
		}
		out = append(out, c)
	}
	return out
}

// Parse turns raw document text into a structured value. The text is
// repaired, stripped of comments and trailing commas, then decoded with
// numbers kept as json.Number so integers survive untouched.
func Parse(data []byte) (any, error) {
	clean := jsonc.ToJSON(Repair(data))

	dec := json.NewDecoder(bytes.NewReader(clean))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	var extra any
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return nil, errors.New("decode: unexpected data after top-level value")
	}
	return v, nil
}
