package settings

import (
	"bytes"

	"github.com/tidwall/gjson"
)

// Repair attempts a best-effort rewrite of near-valid JSON. It handles the
// syntax slips hand-edited settings files accumulate: trailing commas,
// unquoted keys, and unbalanced brackets. Returns false when the result
// still fails to parse.
func Repair(input []byte) ([]byte, bool) {
	candidate := sanitize(input)
	if !gjson.ValidBytes(candidate) {
		return nil, false
	}

	return candidate, true
}

func sanitize(input []byte) []byte {
	var out bytes.Buffer
	out.Grow(len(input) + 8)

	var stack []byte
	inString := false
	escaped := false

	for i := 0; i < len(input); i++ {
		c := input[i]

		if inString {
			out.WriteByte(c)
			if escaped {
				escaped = false
				continue
			}
			switch c {
			case '\\':
				escaped = true
			case '"':
				inString = false
			}
			continue
		}

		switch {
		case c == '"':
			inString = true
			out.WriteByte(c)

		case c == '{':
			stack = append(stack, '}')
			out.WriteByte(c)

		case c == '[':
			stack = append(stack, ']')
			out.WriteByte(c)

		case c == '}' || c == ']':
			// Drop closers that never had an opener.
			if len(stack) > 0 && stack[len(stack)-1] == c {
				stack = stack[:len(stack)-1]
				out.WriteByte(c)
			}

		case c == ',':
			// Drop the comma when nothing follows it in this container.
			j := i + 1
			for j < len(input) && isSpace(input[j]) {
				j++
			}
			if j >= len(input) || input[j] == '}' || input[j] == ']' {
				continue
			}
			out.WriteByte(c)

		case isIdentStart(c) && inObject(stack):
			end := i
			for end < len(input) && isIdentChar(input[end]) {
				end++
			}
			next := end
			for next < len(input) && isSpace(input[next]) {
				next++
			}
			if next < len(input) && input[next] == ':' {
				// Bare object key: quote it.
				out.WriteByte('"')
				out.Write(input[i:end])
				out.WriteByte('"')
			} else {
				out.Write(input[i:end])
			}
			i = end - 1

		default:
			out.WriteByte(c)
		}
	}

	// Close whatever was left open.
	for i := len(stack) - 1; i >= 0; i-- {
		out.WriteByte(stack[i])
	}

	return out.Bytes()
}

func inObject(stack []byte) bool {
	return len(stack) > 0 && stack[len(stack)-1] == '}'
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isIdentStart(c byte) bool {
	return c == '_' || c == '$' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentChar(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9') || c == '-'
}
