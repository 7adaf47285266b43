package gcode

import (
	"strings"

	"github.com/pkg/errors"
)

// Block is one line of gcode.
type Block []Word

// Arg returns the argument of the first w word.
func (b Block) Arg(w byte) (bool, float64) {
	for _, g := range b {
		if g.W == w {
			return true, g.Arg
		}
	}
	return false, 0
}

// Has returns true if the block contains the word letter w.
func (b Block) Has(w byte) bool {
	ok, _ := b.Arg(w)
	return ok
}

// Get returns the argument for w, or 0 if it is not present.
func (b Block) Get(w byte) float64 {
	_, val := b.Arg(w)
	return val
}

// Command returns the first G or M word of the block.
func (b Block) Command() (Word, bool) {
	for _, g := range b {
		if g.IsCommand() {
			return g, true
		}
	}
	return Word{}, false
}

func (b Block) String() string {
	var sb strings.Builder
	for _, g := range b {
		sb.WriteString(g.String())
	}
	return sb.String()
}

// Args returns the words that are not in a modal group: axes and
// parameters, but not F.
func (b Block) Args() Block {
	res := make(Block, 0, len(b))
	for _, g := range b {
		if g.ModalGroup() == ModalGroupNone {
			res = append(res, g)
		}
	}
	return res
}

var (
	ErrInvalidWord  = errors.New("invalid word in block")
	ErrRepeatedWord = errors.New("word was repeated in a block")
	ErrModalGroup   = errors.New("multiple words from same modal group")
)

// Validate rejects blocks that repeat a non-G word or hold two words of
// one modal group.
func (b Block) Validate() error {
	var checkWord [256]bool
	var checkModal [256]bool

	var m ModalGroup
	for _, g := range b {
		if !g.IsValid() {
			return ErrInvalidWord
		}
		if g.W != 'G' && checkWord[g.W] {
			return ErrRepeatedWord
		}
		checkWord[g.W] = true
		m = g.ModalGroup()
		if m != ModalGroupNone && checkModal[m] {
			return errors.Wrap(ErrModalGroup, g.String())
		}
		checkModal[m] = true
	}

	return nil
}
