package partition

import "testing"

func TestSplitMultipartRoute(t *testing.T) {
	cases := []struct {
		in       string
		wantBase string
		wantPart int
		wantOK   bool
	}{
		{"R_part0", "R", 0, true},
		{"R_part1", "R", 1, true},
		{"R_part12", "R", 12, true},
		{"R", "", 0, false},
		{"R_part", "", 0, false},
	}
	for _, c := range cases {
		base, part, ok := splitMultipartRoute(c.in)
		if ok != c.wantOK {
			t.Fatalf("%q: got ok=%v want %v", c.in, ok, c.wantOK)
		}
		if !ok {
			continue
		}
		if base != c.wantBase || part != c.wantPart {
			t.Fatalf("%q: got (%q, %d) want (%q, %d)", c.in, base, part, c.wantBase, c.wantPart)
		}
	}
}

func TestNextPartRouteID(t *testing.T) {
	if got := nextPartRouteID("R", 0); got != "R_part1" {
		t.Fatalf("got %q", got)
	}
	if got := nextPartRouteID("R", 1); got != "R_part2" {
		t.Fatalf("got %q", got)
	}
}
