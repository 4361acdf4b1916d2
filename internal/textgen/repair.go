package textgen

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// ErrUnrepairable is returned when Repair cannot produce valid JSON.
var ErrUnrepairable = errors.New("json could not be repaired")

type repairState int

const (
	afterOpen repairState = iota
	afterValue
	afterColon
	afterComma
)

// Repair rewrites almost-JSON produced by language models into valid JSON.
// It handles code fences and wrapping prose, single quoted strings, bare
// keys, Python style literals, missing and doubled commas, raw control
// characters inside strings and output truncated mid string or mid object.
func Repair(raw string) (string, error) {
	src := ExtractJSONSpan(trimCodeFence(raw))
	if src == "" {
		return "", ErrNoJSON
	}

	r := &repairer{src: src}
	r.run()
	out := r.finish()
	if !json.Valid([]byte(out)) {
		return "", fmt.Errorf("%w: result still invalid", ErrUnrepairable)
	}
	return out, nil
}

type repairer struct {
	src   string
	pos   int
	out   []byte
	stack []byte
	state repairState
}

func (r *repairer) run() {
	r.state = afterComma
	for r.pos < len(r.src) {
		c := r.src[r.pos]
		switch {
		case isSpace(c):
			r.out = append(r.out, c)
			r.pos++
		case c == '{' || c == '[':
			r.beginValue()
			r.out = append(r.out, c)
			if c == '{' {
				r.stack = append(r.stack, '}')
			} else {
				r.stack = append(r.stack, ']')
			}
			r.state = afterOpen
			r.pos++
		case c == '}' || c == ']':
			r.pos++
			if len(r.stack) == 0 {
				continue
			}
			r.closeTop()
		case c == ':':
			r.out = append(r.out, c)
			r.state = afterColon
			r.pos++
		case c == ',':
			if r.state == afterValue {
				r.out = append(r.out, c)
				r.state = afterComma
			}
			r.pos++
		case c == '"' || c == '\'':
			r.beginValue()
			r.readString(c)
			r.state = afterValue
		case isWordByte(c):
			r.beginValue()
			r.readWord()
			r.state = afterValue
		default:
			// Stray characters outside strings, e.g. backticks or comments.
			r.pos++
		}
	}
}

// beginValue inserts the comma a model forgot between two values.
func (r *repairer) beginValue() {
	if r.state == afterValue && len(r.stack) > 0 {
		r.out = append(trimRightSpace(r.out), ',')
	}
}

func (r *repairer) closeTop() {
	closer := r.stack[len(r.stack)-1]
	r.stack = r.stack[:len(r.stack)-1]
	r.out = trimTrailingComma(r.out)
	if r.state == afterColon {
		r.out = append(r.out, "null"...)
	}
	r.out = append(r.out, closer)
	r.state = afterValue
}

func (r *repairer) readString(quote byte) {
	r.pos++
	r.out = append(r.out, '"')
	for r.pos < len(r.src) {
		c := r.src[r.pos]
		switch {
		case c == '\\':
			if r.pos+1 >= len(r.src) {
				r.pos++
				continue
			}
			next := r.src[r.pos+1]
			if next == '\'' {
				r.out = append(r.out, '\'')
			} else {
				r.out = append(r.out, c, next)
			}
			r.pos += 2
		case c == quote:
			r.out = append(r.out, '"')
			r.pos++
			return
		case c == '"':
			r.out = append(r.out, '\\', '"')
			r.pos++
		case c == '\n':
			r.out = append(r.out, '\\', 'n')
			r.pos++
		case c == '\r':
			r.pos++
		case c == '\t':
			r.out = append(r.out, '\\', 't')
			r.pos++
		case c < 0x20:
			r.out = append(r.out, fmt.Sprintf("\\u%04x", c)...)
			r.pos++
		default:
			_, size := utf8.DecodeRuneInString(r.src[r.pos:])
			r.out = append(r.out, r.src[r.pos:r.pos+size]...)
			r.pos += size
		}
	}
	// Truncated inside the string.
	r.out = append(r.out, '"')
}

func (r *repairer) readWord() {
	start := r.pos
	for r.pos < len(r.src) && isWordByte(r.src[r.pos]) {
		r.pos++
	}
	word := r.src[start:r.pos]
	switch strings.ToLower(word) {
	case "true":
		r.out = append(r.out, "true"...)
		return
	case "false":
		r.out = append(r.out, "false"...)
		return
	case "none", "null", "nil", "undefined":
		r.out = append(r.out, "null"...)
		return
	}
	if json.Valid([]byte(word)) {
		r.out = append(r.out, word...)
		return
	}
	quoted, _ := json.Marshal(word)
	r.out = append(r.out, quoted...)
}

func (r *repairer) finish() string {
	out := trimRightSpace(r.out)
	if r.state == afterColon {
		out = append(out, "null"...)
		r.state = afterValue
	}
	out = trimTrailingComma(out)
	r.out = out
	for len(r.stack) > 0 {
		closer := r.stack[len(r.stack)-1]
		r.stack = r.stack[:len(r.stack)-1]
		r.out = trimTrailingComma(r.out)
		r.out = dropDanglingKey(r.out, closer)
		r.out = append(r.out, closer)
	}
	return string(r.out)
}

// dropDanglingKey removes a trailing `, "key"` left behind when output was
// cut off between a key and its colon.
func dropDanglingKey(out []byte, closer byte) []byte {
	if closer != '}' {
		return out
	}
	end := len(trimRightSpace(out))
	if end == 0 || out[end-1] != '"' {
		return out
	}
	// Walk back to the opening quote of the final string.
	i := end - 2
	for i >= 0 {
		if out[i] == '"' && (i == 0 || out[i-1] != '\\') {
			break
		}
		i--
	}
	if i < 0 {
		return out
	}
	j := i - 1
	for j >= 0 && isSpace(out[j]) {
		j--
	}
	if j >= 0 && (out[j] == ',' || out[j] == '{') {
		if out[j] == ',' {
			return out[:j]
		}
		return out[:j+1]
	}
	return out
}

func trimRightSpace(b []byte) []byte {
	end := len(b)
	for end > 0 && isSpace(b[end-1]) {
		end--
	}
	return b[:end]
}

func isWordByte(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' ||
		c == '_' || c == '-' || c == '+' || c == '.' || c >= 0x80
}
