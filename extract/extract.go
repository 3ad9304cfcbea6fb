package extract

import (
	"bytes"
	"encoding/json"
	"errors"
	"reflect"
	"regexp"
	"strings"

	"github.com/zuzya/try.idea-validator/core"
)

var fencePattern = regexp.MustCompile("(?s)```[a-zA-Z]*[ \t]*\r?\n?(.*?)```")

// ErrNoCandidate is the cause recorded when the text contains nothing that
// looks like a JSON object.
var ErrNoCandidate = errors.New("no JSON object found")

// Extract recovers a value of type T from free-form model output. Strategies
// are tried in order and the first candidate that decodes and carries every
// required field wins:
//
//  1. the body of each fenced code block (```json or bare ```)
//  2. each top-level balanced {...} span, string and escape aware, in order
//     of appearance
//  3. the trimmed raw text
//
// A span that is not JSON, or lacks a required field, does not stop the
// search: "see {draft} then {...}" yields the second object. When several
// spans decode, the earliest one is returned.
//
// On failure it returns a *core.ExtractionError carrying the raw text.
func Extract[T any](text string) (T, error) {
	var zero T

	var lastErr error = ErrNoCandidate
	for _, candidate := range candidates(text) {
		v, err := decode[T](candidate)
		if err == nil {
			return v, nil
		}
		lastErr = err
	}

	return zero, &core.ExtractionError{Raw: text, Cause: lastErr}
}

// candidates lists decode attempts in strategy order, without duplicates.
func candidates(text string) []string {
	var out []string
	seen := map[string]bool{}
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			return
		}
		seen[s] = true
		out = append(out, s)
	}

	for _, m := range fencePattern.FindAllStringSubmatch(text, -1) {
		add(m[1])
	}
	for _, span := range balancedObjects(text) {
		add(span)
	}
	add(text)

	return out
}

// balancedObjects returns every top-level {...} span in text in order of
// appearance. Braces inside JSON strings are ignored.
func balancedObjects(text string) []string {
	var spans []string
	for i := 0; i < len(text); i++ {
		if text[i] != '{' {
			continue
		}
		end := matchBrace(text, i)
		if end < 0 {
			continue
		}
		spans = append(spans, text[i:end+1])
		i = end
	}
	return spans
}

// matchBrace returns the index of the brace closing the one at start, or -1.
func matchBrace(text string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func decode[T any](candidate string) (T, error) {
	var v T

	dec := json.NewDecoder(bytes.NewReader([]byte(candidate)))
	if err := dec.Decode(&v); err != nil {
		return v, err
	}

	if isStruct[T]() {
		var fields map[string]any
		if err := json.Unmarshal([]byte(candidate), &fields); err != nil {
			return v, err
		}
		if err := Schema[T]().Check(fields); err != nil {
			return v, err
		}
	}

	return v, nil
}

func isStruct[T any]() bool {
	t := reflect.TypeOf((*T)(nil)).Elem()
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Kind() == reflect.Struct
}
