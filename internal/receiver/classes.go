package receiver

import (
	"regexp"
	"strings"
)

// keywordArgPattern matches class keywords such as metaclass=... in a base list.
var keywordArgPattern = regexp.MustCompile(`^\*|^[A-Za-z_][A-Za-z0-9_]*\s*=[^=]`)

// ClassDecl is a top-level class declaration found in source code.
type ClassDecl struct {
	Name  string
	Bases []string
}

// DeclaredClasses returns the top-level classes declared in source, in order.
// Nested classes are not renderable entry points and are skipped, as is
// anything inside string literals or comments. Base lists may nest
// parentheses and span several lines.
func DeclaredClasses(source string) []ClassDecl {
	var out []ClassDecl
	lineStart := true
	for i := 0; i < len(source); {
		if lineStart {
			lineStart = false
			if decl, end, ok := parseClass(source, i); ok {
				out = append(out, decl)
				i = end
				continue
			}
		}
		switch source[i] {
		case '\n':
			lineStart = true
			i++
		case '#':
			i = skipComment(source, i)
		case '"', '\'':
			i = skipString(source, i)
		default:
			i++
		}
	}
	return out
}

// parseClass parses `class Name(bases):` starting at i and returns the index
// just past the colon.
func parseClass(src string, i int) (ClassDecl, int, bool) {
	rest := src[i:]
	if len(rest) < 6 || !strings.HasPrefix(rest, "class") || (rest[5] != ' ' && rest[5] != '\t') {
		return ClassDecl{}, 0, false
	}

	start := skipBlanks(src, i+5)
	j := start
	for j < len(src) && isIdentByte(src[j], j == start) {
		j++
	}
	if j == start {
		return ClassDecl{}, 0, false
	}
	decl := ClassDecl{Name: src[start:j]}

	j = skipBlanks(src, j)
	if j < len(src) && src[j] == '(' {
		end, ok := closingParen(src, j)
		if !ok {
			return ClassDecl{}, 0, false
		}
		decl.Bases = splitBases(src[j+1 : end])
		j = skipBlanks(src, end+1)
	}
	if j >= len(src) || src[j] != ':' {
		return ClassDecl{}, 0, false
	}
	return decl, j + 1, true
}

// closingParen returns the index of the bracket closing the one at open.
func closingParen(src string, open int) (int, bool) {
	depth := 0
	for i := open; i < len(src); {
		switch src[i] {
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
			if depth == 0 {
				return i, true
			}
		case '#':
			i = skipComment(src, i)
			continue
		case '"', '\'':
			i = skipString(src, i)
			continue
		}
		i++
	}
	return 0, false
}

// splitBases splits a base list on top-level commas, dropping keyword
// arguments, star arguments and comments.
func splitBases(text string) []string {
	var (
		bases []string
		cur   strings.Builder
		depth int
	)
	flush := func() {
		base := strings.Join(strings.Fields(cur.String()), " ")
		cur.Reset()
		if base != "" && !keywordArgPattern.MatchString(base) {
			bases = append(bases, base)
		}
	}

	for i := 0; i < len(text); {
		c := text[i]
		switch {
		case c == '#':
			i = skipComment(text, i)
			continue
		case c == '"' || c == '\'':
			end := skipString(text, i)
			cur.WriteString(text[i:end])
			i = end
			continue
		case c == '(' || c == '[' || c == '{':
			depth++
		case c == ')' || c == ']' || c == '}':
			depth--
		case c == ',' && depth == 0:
			flush()
			i++
			continue
		}
		cur.WriteByte(c)
		i++
	}
	flush()
	return bases
}

// skipString returns the index just past the string literal opening at i.
// A single-quoted string ends at the newline if it is unterminated.
func skipString(src string, i int) int {
	q := src[i]
	if delim := strings.Repeat(string(q), 3); strings.HasPrefix(src[i:], delim) {
		for j := i + 3; j < len(src); j++ {
			if src[j] == '\\' {
				j++
				continue
			}
			if strings.HasPrefix(src[j:], delim) {
				return j + 3
			}
		}
		return len(src)
	}
	for j := i + 1; j < len(src); j++ {
		switch src[j] {
		case '\\':
			j++
		case q:
			return j + 1
		case '\n':
			return j
		}
	}
	return len(src)
}

// skipComment returns the index of the newline ending the comment at i.
func skipComment(src string, i int) int {
	if n := strings.IndexByte(src[i:], '\n'); n >= 0 {
		return i + n
	}
	return len(src)
}

func skipBlanks(src string, i int) int {
	for i < len(src) && (src[i] == ' ' || src[i] == '\t') {
		i++
	}
	return i
}

func isIdentByte(c byte, first bool) bool {
	switch {
	case c == '_', 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z':
		return true
	case '0' <= c && c <= '9':
		return !first
	}
	return false
}
