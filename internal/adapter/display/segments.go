// Package display renders opener messages on an eight digit seven-segment
// layout. Digit 7 is the leftmost cell.
package display

import (
	"strconv"
	"strings"
)

// Digits is the number of cells on the display.
const Digits = 8

// Cell is one digit: a character (0 for blank) and its decimal point.
type Cell struct {
	Char byte
	Dot  bool
}

// Cells is the full display buffer, indexed by digit.
type Cells [Digits]Cell

// String renders the buffer left to right. Blank cells are spaces; a lit
// decimal point follows its character.
func (c Cells) String() string {
	var b strings.Builder
	for i := Digits - 1; i >= 0; i-- {
		cell := c[i]
		if cell.Char == 0 {
			b.WriteByte(' ')
		} else {
			b.WriteByte(cell.Char)
		}
		if cell.Dot {
			b.WriteByte('.')
		}
	}
	return b.String()
}

// Compose lays out text after prefix. The prefix fills the cells to the left
// of startSegment and carries a decimal point on its last cell. A
// startSegment past the last digit right-aligns short text. Text that does
// not fit ends with '-' on digit 0.
func Compose(text string, startSegment int, prefix string) Cells {
	var cells Cells

	pos := Digits - 1 - startSegment
	if startSegment > Digits-1 {
		pos = min(len(text), Digits-1)
	}
	if pos < 0 {
		pos = 0
	}

	if prefix != "" {
		at := 0
		for i := Digits - 1; i > pos; i-- {
			var ch byte
			if at < len(prefix) {
				ch = prefix[at]
			}
			at++
			cells[i] = Cell{Char: ch, Dot: i-1 <= pos}
		}
	}

	for i := 0; i < len(text); i++ {
		cells[pos] = Cell{Char: text[i]}
		if pos == 0 {
			break
		}
		pos--
		if pos == 0 && i+2 < len(text) {
			cells[0] = Cell{Char: '-'}
			break
		}
	}
	return cells
}

// ComposeNumber lays out value like Compose.
func ComposeNumber(value uint32, startSegment int, prefix string) Cells {
	return Compose(strconv.FormatUint(uint64(value), 10), startSegment, prefix)
}
