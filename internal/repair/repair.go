// Package repair coerces near-JSON text produced by generative models into
// parseable JSON. It is best-effort: markdown fences, leading and trailing
// commentary, smart quotes, trailing commas and truncated output are handled;
// anything else is reported as a typed Failure.
package repair

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"
)

// Reason classifies why repair failed.
type Reason string

const (
	ReasonEmpty       Reason = "empty"
	ReasonNoJSON      Reason = "no_json"
	ReasonUnparseable Reason = "unparseable"
	ReasonWrongShape  Reason = "wrong_shape"
)

// Failure is returned when raw text cannot be coerced into the expected shape.
type Failure struct {
	Reason Reason
	Detail string
}

func (f *Failure) Error() string {
	if f.Detail == "" {
		return "repair: " + string(f.Reason)
	}
	return "repair: " + string(f.Reason) + ": " + f.Detail
}

// ReasonOf returns the failure reason of err, or "" when err is not a Failure.
func ReasonOf(err error) Reason {
	if f, ok := err.(*Failure); ok {
		return f.Reason
	}
	return ""
}

var quoteReplacer = strings.NewReplacer(
	"“", `"`, "”", `"`, "„", `"`,
	"‘", "'", "’", "'",
)

// JSON returns the repaired JSON text found in raw.
func JSON(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", &Failure{Reason: ReasonEmpty}
	}
	s = stripFences(s)
	s = quoteReplacer.Replace(s)

	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return "", &Failure{Reason: ReasonNoJSON, Detail: preview(s)}
	}
	candidate := balance(s[start:])
	candidate = dropTrailingCommas(candidate)
	if !gjson.Valid(candidate) {
		return "", &Failure{Reason: ReasonUnparseable, Detail: preview(candidate)}
	}
	return candidate, nil
}

// Decode repairs raw and unmarshals it into v.
func Decode(raw string, v any) error {
	s, err := JSON(raw)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(s), v); err != nil {
		return &Failure{Reason: ReasonWrongShape, Detail: err.Error()}
	}
	return nil
}

// Object repairs raw and requires a JSON object at the top level.
func Object(raw string) (gjson.Result, error) {
	s, err := JSON(raw)
	if err != nil {
		return gjson.Result{}, err
	}
	res := gjson.Parse(s)
	if !res.IsObject() {
		return gjson.Result{}, &Failure{Reason: ReasonWrongShape, Detail: "expected object"}
	}
	return res, nil
}

// Array repairs raw and requires a JSON array. An object wrapping exactly the
// array (e.g. {"items": [...]}) is unwrapped.
func Array(raw string) ([]gjson.Result, error) {
	s, err := JSON(raw)
	if err != nil {
		return nil, err
	}
	res := gjson.Parse(s)
	if res.IsArray() {
		return res.Array(), nil
	}
	if res.IsObject() {
		var inner gjson.Result
		res.ForEach(func(_, v gjson.Result) bool {
			if v.IsArray() {
				inner = v
				return false
			}
			return true
		})
		if inner.Exists() {
			return inner.Array(), nil
		}
		// A single object is treated as a one-element array.
		return []gjson.Result{res}, nil
	}
	return nil, &Failure{Reason: ReasonWrongShape, Detail: "expected array"}
}

// stripFences returns the body of the first fenced code block, if any.
func stripFences(s string) string {
	open := strings.Index(s, "```")
	if open < 0 {
		return s
	}
	body := s[open+3:]
	// skip the info string (```json)
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		body = body[nl+1:]
	}
	if end := strings.Index(body, "```"); end >= 0 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}

// balance returns the first complete JSON value starting at s[0], dropping
// trailing commentary. Truncated input is closed by appending the missing
// quote and brackets.
func balance(s string) string {
	var stack []byte
	inString, escape := false, false
	for i := 0; i < len(s); i++ {
		b := s[i]
		if escape {
			escape = false
			continue
		}
		if inString {
			switch b {
			case '\\':
				escape = true
			case '"':
				inString = false
			}
			continue
		}
		switch b {
		case '"':
			inString = true
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) > 0 && stack[len(stack)-1] == b {
				stack = stack[:len(stack)-1]
				if len(stack) == 0 {
					return s[:i+1]
				}
			}
		}
	}
	var sb strings.Builder
	sb.WriteString(strings.TrimRight(s, " \t\r\n"))
	if inString {
		sb.WriteByte('"')
	}
	for i := len(stack) - 1; i >= 0; i-- {
		sb.WriteByte(stack[i])
	}
	return sb.String()
}

// dropTrailingCommas removes commas directly followed (modulo whitespace) by
// a closing bracket, outside of strings.
func dropTrailingCommas(s string) string {
	out := make([]byte, 0, len(s))
	inString, escape := false, false
	for i := 0; i < len(s); i++ {
		b := s[i]
		if escape {
			escape = false
			out = append(out, b)
			continue
		}
		if inString {
			if b == '\\' {
				escape = true
			} else if b == '"' {
				inString = false
			}
			out = append(out, b)
			continue
		}
		if b == '"' {
			inString = true
		}
		if b == ',' {
			j := i + 1
			for j < len(s) && strings.IndexByte(" \t\r\n", s[j]) >= 0 {
				j++
			}
			if j < len(s) && (s[j] == '}' || s[j] == ']') {
				continue
			}
		}
		out = append(out, b)
	}
	return string(out)
}

func preview(s string) string {
	if len(s) > 80 {
		return s[:80] + "..."
	}
	return s
}
