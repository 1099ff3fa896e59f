package dynsql

import "strings"

// TokenHandler rewrites the content found between one open/close token pair.
type TokenHandler func(content string) (string, error)

// ParseTokens substitutes every open...close occurrence in text through the
// handler in a single left-to-right scan. A backslash before the open token
// escapes it.
func ParseTokens(text, open, close string, handler TokenHandler) (string, error) {
	start := strings.Index(text, open)
	if start < 0 {
		return text, nil
	}
	src := text
	var b strings.Builder
	b.Grow(len(text))
	offset := 0
	for start >= 0 {
		if start > 0 && src[offset+start-1] == '\\' {
			// escaped open token: keep it, drop the backslash
			b.WriteString(src[offset : offset+start-1])
			b.WriteString(open)
			offset += start + len(open)
		} else {
			b.WriteString(src[offset : offset+start])
			end := strings.Index(src[offset+start+len(open):], close)
			if end < 0 {
				// unterminated token: emit the rest verbatim
				b.WriteString(src[offset+start:])
				return b.String(), nil
			}
			content := src[offset+start+len(open) : offset+start+len(open)+end]
			replaced, err := handler(content)
			if err != nil {
				return "", err
			}
			b.WriteString(replaced)
			offset += start + len(open) + end + len(close)
		}
		start = strings.Index(src[offset:], open)
	}
	b.WriteString(src[offset:])
	return b.String(), nil
}

// ContainsToken reports whether text carries an unescaped open token.
func ContainsToken(text, open string) bool {
	for i := strings.Index(text, open); i >= 0; {
		if i == 0 || text[i-1] != '\\' {
			return true
		}
		next := strings.Index(text[i+len(open):], open)
		if next < 0 {
			return false
		}
		i += len(open) + next
	}
	return false
}
