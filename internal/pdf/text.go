package pdf

import (
	"strconv"
	"strings"
	"unicode/utf16"
)

// kerningSpace is the TJ displacement (thousandths of text space) treated as a word gap
const kerningSpace = -250

type tokenKind int

const (
	tokString tokenKind = iota
	tokNumber
	tokName
	tokArray
	tokOperator
)

type token struct {
	kind  tokenKind
	text  string // decoded string, name or operator
	num   float64
	items []token // tokArray elements
}

// TextLines reconstructs the visible text lines of a decoded page content stream.
// A new line starts at every text object and at every text-positioning operator
// that moves to another line; empty lines are dropped.
func TextLines(content []byte) []string {
	lx := &lexer{data: content}
	lb := &lineBuilder{}

	var operands []token
	for {
		tok, ok := lx.next()
		if !ok {
			break
		}
		if tok.kind != tokOperator {
			operands = append(operands, tok)
			continue
		}

		switch tok.text {
		case "BT", "ET", "T*":
			lb.breakLine()
		case "Td", "TD":
			if len(operands) >= 2 && operands[len(operands)-1].num != 0 {
				lb.breakLine()
			} else {
				lb.space()
			}
		case "Tm":
			if len(operands) >= 6 {
				lb.moveTo(operands[len(operands)-1].num)
			}
		case "Tj":
			if s, ok := lastString(operands); ok {
				lb.write(s)
			}
		case "'":
			lb.breakLine()
			if s, ok := lastString(operands); ok {
				lb.write(s)
			}
		case "\"":
			lb.breakLine()
			if s, ok := lastString(operands); ok {
				lb.write(s)
			}
		case "TJ":
			if len(operands) > 0 && operands[len(operands)-1].kind == tokArray {
				for _, item := range operands[len(operands)-1].items {
					switch item.kind {
					case tokString:
						lb.write(item.text)
					case tokNumber:
						if item.num <= kerningSpace {
							lb.space()
						}
					}
				}
			}
		case "ID":
			lx.skipInlineImage()
		}
		operands = operands[:0]
	}
	lb.breakLine()

	return lb.lines
}

func lastString(operands []token) (string, bool) {
	if len(operands) == 0 || operands[len(operands)-1].kind != tokString {
		return "", false
	}
	return operands[len(operands)-1].text, true
}

// lineBuilder accumulates text into lines
type lineBuilder struct {
	lines   []string
	current strings.Builder
	y       float64
	hasY    bool
}

func (b *lineBuilder) write(s string) {
	b.current.WriteString(s)
}

func (b *lineBuilder) space() {
	cur := b.current.String()
	if cur != "" && !strings.HasSuffix(cur, " ") {
		b.current.WriteByte(' ')
	}
}

// moveTo handles an absolute text matrix; a changed baseline starts a new line
func (b *lineBuilder) moveTo(y float64) {
	if b.hasY && y != b.y {
		b.breakLine()
	} else {
		b.space()
	}
	b.y = y
	b.hasY = true
}

func (b *lineBuilder) breakLine() {
	line := cleanLine(b.current.String())
	b.current.Reset()
	if line != "" {
		b.lines = append(b.lines, line)
	}
}

// cleanLine removes control characters and collapses runs of whitespace
func cleanLine(s string) string {
	var out strings.Builder
	for _, r := range s {
		switch {
		case r == '\t' || r == '\n' || r == '\r':
			out.WriteRune(' ')
		case r < 32 || (r >= 127 && r < 160):
			// Skip control and binary characters
		default:
			out.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(out.String()), " ")
}

// lexer tokenises a PDF content stream
type lexer struct {
	data []byte
	pos  int
}

func isWhitespace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == 0
}

func isDelimiter(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

func (l *lexer) skipSpaceAndComments() {
	for l.pos < len(l.data) {
		c := l.data[l.pos]
		switch {
		case isWhitespace(c):
			l.pos++
		case c == '%':
			for l.pos < len(l.data) && l.data[l.pos] != '\n' && l.data[l.pos] != '\r' {
				l.pos++
			}
		default:
			return
		}
	}
}

// next returns the next operand or operator token
func (l *lexer) next() (token, bool) {
	for {
		l.skipSpaceAndComments()
		if l.pos >= len(l.data) {
			return token{}, false
		}

		c := l.data[l.pos]
		switch {
		case c == '(':
			l.pos++
			return token{kind: tokString, text: decodeText(l.literal())}, true
		case c == '<' && l.peek(1) == '<', c == '>' && l.peek(1) == '>':
			// Dictionary delimiters only appear around marked-content properties
			l.pos += 2
		case c == '<':
			l.pos++
			return token{kind: tokString, text: decodeText(l.hex())}, true
		case c == '[':
			l.pos++
			return l.array(), true
		case c == ']' || c == ')' || c == '>' || c == '{' || c == '}':
			l.pos++
		case c == '/':
			l.pos++
			return token{kind: tokName, text: l.regular()}, true
		case c == '+' || c == '-' || c == '.' || (c >= '0' && c <= '9'):
			word := l.regular()
			if n, err := strconv.ParseFloat(word, 64); err == nil {
				return token{kind: tokNumber, num: n, text: word}, true
			}
			return token{kind: tokOperator, text: word}, true
		default:
			word := l.regular()
			if word == "" {
				l.pos++
				continue
			}
			return token{kind: tokOperator, text: word}, true
		}
	}
}

func (l *lexer) peek(offset int) byte {
	if l.pos+offset < len(l.data) {
		return l.data[l.pos+offset]
	}
	return 0
}

// regular reads a run of regular characters
func (l *lexer) regular() string {
	start := l.pos
	for l.pos < len(l.data) && !isWhitespace(l.data[l.pos]) && !isDelimiter(l.data[l.pos]) {
		l.pos++
	}
	return string(l.data[start:l.pos])
}

// array reads elements up to the matching ']'
func (l *lexer) array() token {
	arr := token{kind: tokArray}
	for {
		l.skipSpaceAndComments()
		if l.pos >= len(l.data) {
			return arr
		}
		if l.data[l.pos] == ']' {
			l.pos++
			return arr
		}
		tok, ok := l.next()
		if !ok {
			return arr
		}
		arr.items = append(arr.items, tok)
	}
}

// literal reads a literal string body; the opening parenthesis is already consumed
func (l *lexer) literal() []byte {
	var out []byte
	depth := 1
	for l.pos < len(l.data) {
		c := l.data[l.pos]
		l.pos++
		switch c {
		case '(':
			depth++
			out = append(out, c)
		case ')':
			depth--
			if depth == 0 {
				return out
			}
			out = append(out, c)
		case '\\':
			if l.pos >= len(l.data) {
				return out
			}
			e := l.data[l.pos]
			l.pos++
			switch e {
			case 'n':
				out = append(out, '\n')
			case 'r':
				out = append(out, '\r')
			case 't':
				out = append(out, '\t')
			case 'b':
				out = append(out, '\b')
			case 'f':
				out = append(out, '\f')
			case '\r':
				// Line continuation, also swallow a following LF
				if l.pos < len(l.data) && l.data[l.pos] == '\n' {
					l.pos++
				}
			case '\n':
				// Line continuation
			default:
				if e >= '0' && e <= '7' {
					v := int(e - '0')
					for range 2 {
						if l.pos < len(l.data) && l.data[l.pos] >= '0' && l.data[l.pos] <= '7' {
							v = v*8 + int(l.data[l.pos]-'0')
							l.pos++
						}
					}
					out = append(out, byte(v))
				} else {
					out = append(out, e)
				}
			}
		default:
			out = append(out, c)
		}
	}
	return out
}

// hex reads a hexadecimal string body; the opening angle bracket is already consumed
func (l *lexer) hex() []byte {
	var out []byte
	var hi byte
	half := false
	for l.pos < len(l.data) {
		c := l.data[l.pos]
		l.pos++
		if c == '>' {
			break
		}
		v, ok := hexValue(c)
		if !ok {
			continue
		}
		if half {
			out = append(out, hi<<4|v)
		} else {
			hi = v
		}
		half = !half
	}
	if half {
		out = append(out, hi<<4)
	}
	return out
}

func hexValue(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

// skipInlineImage jumps past binary inline image data up to the EI operator
func (l *lexer) skipInlineImage() {
	for l.pos+2 < len(l.data) {
		if isWhitespace(l.data[l.pos]) && l.data[l.pos+1] == 'E' && l.data[l.pos+2] == 'I' &&
			(l.pos+3 == len(l.data) || isWhitespace(l.data[l.pos+3])) {
			l.pos += 3
			return
		}
		l.pos++
	}
	l.pos = len(l.data)
}

// decodeText turns string bytes into text: UTF-16BE when marked with a BOM, otherwise Latin-1
func decodeText(b []byte) string {
	if len(b) >= 2 && b[0] == 0xFE && b[1] == 0xFF {
		b = b[2:]
		units := make([]uint16, 0, len(b)/2)
		for i := 0; i+1 < len(b); i += 2 {
			units = append(units, uint16(b[i])<<8|uint16(b[i+1]))
		}
		return string(utf16.Decode(units))
	}

	runes := make([]rune, len(b))
	for i, c := range b {
		runes[i] = rune(c)
	}
	return string(runes)
}
