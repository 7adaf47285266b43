package gcode

import (
	"bufio"
	"io"
	"strconv"
	"strings"
	"unicode"

	"github.com/pkg/errors"
)

// Parser reads blocks from gcode text, one block per line. Whitespace and
// comments, both (parenthesized) and ; to end of line, are ignored. Empty
// lines are skipped.
type Parser struct{ br *bufio.Reader }

func NewParser(r io.Reader) *Parser {
	if br, ok := r.(*bufio.Reader); ok {
		return &Parser{br: br}
	}
	return &Parser{br: bufio.NewReader(r)}
}

// Read returns the next non-empty block, or io.EOF.
func (p *Parser) Read() (Block, error) {
	for {
		s, err := p.br.ReadString('\n')
		if err == io.EOF && s != "" {
			err = nil
		}
		if err != nil {
			return nil, err
		}

		b, err := ParseLine(s)
		if err != nil {
			return nil, err
		}
		if len(b) > 0 {
			return b, nil
		}
	}
}

// ParseLine parses a single line. The block is empty if the line has no
// words.
func ParseLine(line string) (Block, error) {
	s := strip(line)

	var b Block
	for i := 0; i < len(s); {
		j := i + 1
		for j < len(s) && isNumeric(s[j]) {
			j++
		}
		if s[i] < 'A' || s[i] > 'Z' || j == i+1 {
			return nil, errors.New("invalid or unhandled line: " + s)
		}
		arg, err := strconv.ParseFloat(s[i+1:j], 64)
		if err != nil {
			return nil, errors.Errorf("bad number in word %s", s[i:j])
		}
		b = append(b, Word{W: s[i], Arg: arg})
		i = j
	}
	return b, nil
}

func isNumeric(c byte) bool {
	return (c >= '0' && c <= '9') || c == '.' || c == '-' || c == '+'
}

// strip removes comments and whitespace and upper-cases the rest.
func strip(line string) string {
	var sb strings.Builder
	depth := 0
	for _, r := range line {
		if r == ';' && depth == 0 {
			break
		}
		switch {
		case r == '(':
			depth++
		case r == ')' && depth > 0:
			depth--
		case depth > 0, unicode.IsSpace(r):
		default:
			sb.WriteRune(unicode.ToUpper(r))
		}
	}
	return sb.String()
}

// Parse parses every block in data.
func Parse(data string) ([]Block, error) {
	p := NewParser(strings.NewReader(data))
	var blocks []Block
	for {
		b, err := p.Read()
		if err == io.EOF {
			return blocks, nil
		}
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, b)
	}
}

// MustParse is like Parse but panics on error.
func MustParse(data string) []Block {
	b, err := Parse(data)
	if err != nil {
		panic(err)
	}
	return b
}
