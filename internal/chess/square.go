package chess

import (
	"fmt"
	"strings"
)

// Square addresses one board cell. Ids run 1..64 from a8 to h1, row by row:
// a8=1, h8=8, a1=57, h1=64. Zero means "no square".
type Square int

const NoSquare Square = 0

// squareAt returns NoSquare for off-board coordinates.
func squareAt(file, rank int) Square {
	if file < 1 || file > 8 || rank < 1 || rank > 8 {
		return NoSquare
	}
	return Square((8-rank)*8 + file)
}

func (s Square) Valid() bool { return s >= 1 && s <= 64 }

// File is 1 for the a-file and 8 for the h-file.
func (s Square) File() int {
	f := int(s) % 8
	if f == 0 {
		return 8
	}
	return f
}

func (s Square) Rank() int { return 9 - (int(s)+7)/8 }

// String returns the coordinate text ("e4"), or "-" for NoSquare.
func (s Square) String() string {
	if !s.Valid() {
		return "-"
	}
	return string([]byte{byte('a' + s.File() - 1), byte('0' + s.Rank())})
}

// ParseSquare converts coordinate text such as "e4" into a Square.
func ParseSquare(text string) (Square, error) {
	t := strings.ToLower(strings.TrimSpace(text))
	if len(t) != 2 || t[0] < 'a' || t[0] > 'h' || t[1] < '1' || t[1] > '8' {
		return NoSquare, fmt.Errorf("invalid square %q", text)
	}
	return squareAt(int(t[0]-'a')+1, int(t[1]-'0')), nil
}
