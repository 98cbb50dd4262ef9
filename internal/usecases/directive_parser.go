package usecases

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"leadwidget/internal/entities"
)

const (
	ActionBlockUser   = "block_user"
	ActionCollectLead = "collect_lead"
)

// Heads anchor a fragment. The captured group is the quote token, which the
// model may have escaped one or more times.
var (
	blockHead  = fragmentHead(ActionBlockUser)
	leadHead   = fragmentHead(ActionCollectLead)
	anyHead    = fragmentHead(ActionBlockUser + "|" + ActionCollectLead)
	emptyFence = regexp.MustCompile("```[a-zA-Z]*\\s*```")
)

func fragmentHead(actions string) *regexp.Regexp {
	return regexp.MustCompile(`\{\s*(\\*")action\\*"\s*:\s*\\*"(?:` + actions + `)\\*"`)
}

// ParseReply extracts at most one block and one lead directive from a raw model
// answer and returns the prose with every recognized fragment removed.
// Only the first fragment of each kind is decoded. A fragment whose payload
// does not decode is still stripped but yields no directive.
func ParseReply(raw string) entities.ParsedReply {
	out := entities.ParsedReply{CleanText: raw}

	blockStart, blockEnd, hasBlock := findFragment(raw, blockHead)
	leadStart, leadEnd, hasLead := findFragment(raw, leadHead)
	if !hasBlock && !hasLead {
		return out
	}

	if hasBlock {
		var payload struct {
			Reason any `json:"reason"`
		}
		if decodeFragment(raw[blockStart:blockEnd], &payload) == nil {
			out.Block = &entities.BlockDirective{Reason: stringify(payload.Reason)}
		}
	}
	if hasLead {
		var payload struct {
			Data json.RawMessage `json:"data"`
		}
		if decodeFragment(raw[leadStart:leadEnd], &payload) == nil {
			if fields, err := leadFields(payload.Data); err == nil && len(fields) > 0 {
				out.Lead = &entities.LeadDirective{Fields: fields}
			}
		}
	}

	out.CleanText = stripFragments(raw)
	return out
}

// findFragment returns the span of the first head in s whose braces close.
func findFragment(s string, head *regexp.Regexp) (start, end int, ok bool) {
	for off := 0; off < len(s); {
		m := head.FindStringSubmatchIndex(s[off:])
		if m == nil {
			return 0, 0, false
		}
		start = off + m[0]
		if end, ok = fragmentEnd(s, start, s[off+m[2]:off+m[3]]); ok {
			return start, end, true
		}
		off = start + 1
	}
	return 0, 0, false
}

// fragmentEnd scans from the opening brace at start and returns the offset just
// past its matching close. Braces inside strings do not count. quote is the
// string delimiter as it appears in the head, with any escaping backslashes.
func fragmentEnd(s string, start int, quote string) (int, bool) {
	level := len(quote) - 1
	depth := 0
	inString := false
	for i := start; i < len(s); {
		if inString {
			if s[i] != '\\' && s[i] != '"' {
				i++
				continue
			}
			n := 0
			for i+n < len(s) && s[i+n] == '\\' {
				n++
			}
			if i+n < len(s) && s[i+n] == '"' {
				if (level == 0 && n%2 == 0) || (level > 0 && n == level) {
					inString = false
				}
				i += n + 1
				continue
			}
			i += n
			continue
		}

		switch {
		case strings.HasPrefix(s[i:], quote):
			inString = true
			i += len(quote)
			continue
		case s[i] == '{':
			depth++
		case s[i] == '}':
			depth--
			if depth == 0 {
				return i + 1, true
			}
		}
		i++
	}
	return 0, false
}

// stripFragments removes fragments until none are left, so that removing one
// fragment can never splice a new one together.
func stripFragments(s string) string {
	for {
		next := s
		for {
			start, end, ok := findFragment(next, anyHead)
			if !ok {
				break
			}
			next = next[:start] + next[end:]
		}
		next = emptyFence.ReplaceAllString(next, "")
		if next == s {
			break
		}
		s = next
	}
	return strings.TrimSpace(s)
}

// leadFields flattens the data object in document order. Keys are lower cased
// and the first occurrence of a key wins.
func leadFields(data json.RawMessage) (map[string]string, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("lead data is not an object")
	}

	fields := make(map[string]string)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, _ := tok.(string)
		var v any
		if err := dec.Decode(&v); err != nil {
			return nil, err
		}
		key = strings.ToLower(strings.TrimSpace(key))
		if _, seen := fields[key]; seen {
			continue
		}
		fields[key] = stringify(v)
	}
	return fields, nil
}

// decodeFragment tries the fragment as-is, then peels up to three levels of
// string escaping off it.
func decodeFragment(fragment string, v any) error {
	candidate := fragment
	var err error
	for i := 0; i < 4; i++ {
		dec := json.NewDecoder(strings.NewReader(candidate))
		dec.UseNumber()
		if err = dec.Decode(v); err == nil {
			return nil
		}
		unq, uerr := strconv.Unquote(`"` + candidate + `"`)
		if uerr != nil {
			unq = strings.ReplaceAll(candidate, `\"`, `"`)
		}
		if unq == candidate {
			break
		}
		candidate = unq
	}
	return fmt.Errorf("decode directive: %w", err)
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		if err := enc.Encode(t); err != nil {
			return fmt.Sprint(t)
		}
		return strings.TrimSpace(buf.String())
	}
}
