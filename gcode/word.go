package gcode

import (
	"math"
	"strconv"
	"strings"
)

type Word struct {
	W   byte
	Arg float64
}

func (w Word) IsAxis() bool {
	switch w.W {
	case 'X', 'Y', 'Z': // maybe someday 'A', 'B', 'C', 'U', 'V', 'W':
		return true
	}
	return false
}

func (w Word) IsValid() bool {
	return w.W >= 'A' && w.W <= 'Z'
}

// IsCommand returns true for G and M words.
func (w Word) IsCommand() bool {
	return w.W == 'G' || w.W == 'M'
}

// Code returns the integer part of the argument, e.g. 38 for G38.2.
func (w Word) Code() int {
	return int(math.Floor(w.Arg))
}

// Subcode returns the first decimal digit of the argument, e.g. 2 for G38.2.
func (w Word) Subcode() int {
	return int(math.Round((w.Arg - math.Floor(w.Arg)) * 10))
}

func formatFloat(f float64, prec int) string {
	s := strconv.FormatFloat(f, 'f', prec, 64)
	if strings.ContainsRune(s, '.') {
		s = strings.TrimRight(s, "0")
	}
	return strings.TrimRight(s, ".")
}

func (w Word) String() string {
	return string(w.W) + formatFloat(w.Arg, 4)
}
