package chess

import (
	"testing"

	nchess "github.com/corentings/chess/v2"
)

func TestSquareRoundTrip(t *testing.T) {
	for sq := Square(1); sq <= 64; sq++ {
		got, err := ParseSquare(sq.String())
		if err != nil {
			t.Fatalf("ParseSquare(%q): %v", sq.String(), err)
		}
		if got != sq {
			t.Fatalf("round trip %d -> %q -> %d", sq, sq.String(), got)
		}
	}
}

func TestSquareIDs(t *testing.T) {
	cases := map[string]Square{"a8": 1, "h8": 8, "a1": 57, "h1": 64, "e4": 37, "e2": 53}
	for text, want := range cases {
		got, err := ParseSquare(text)
		if err != nil || got != want {
			t.Fatalf("ParseSquare(%q) = %d, %v; want %d", text, got, err, want)
		}
	}
	if NoSquare.String() != "-" {
		t.Fatalf("NoSquare should render as -")
	}
}

func TestParseSquareRejects(t *testing.T) {
	for _, bad := range []string{"", "i1", "a9", "a0", "e44", "4e"} {
		if _, err := ParseSquare(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestSquareMapsOntoNChess(t *testing.T) {
	for sq := Square(1); sq <= 64; sq++ {
		n := toNSquare(sq)
		if n.String() != sq.String() {
			t.Fatalf("square %d: ours %q, nchess %q", sq, sq.String(), n.String())
		}
		if back := fromNSquare(n); back != sq {
			t.Fatalf("square %d came back as %d", sq, back)
		}
	}
	if toNSquare(NoSquare) != nchess.NoSquare || fromNSquare(nchess.NoSquare) != NoSquare {
		t.Fatalf("NoSquare should map onto itself")
	}
}
