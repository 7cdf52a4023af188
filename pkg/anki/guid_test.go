package anki

import "testing"

func TestGUIDForMatchesGenanki(t *testing.T) {
	cases := []struct {
		values []string
		want   string
	}{
		{[]string{"France"}, "uZm<=OBiK|"},
		{[]string{"Afghanistan"}, "p,MtiM#9M,"},
		{[]string{"a", "b"}, "q/([o$8RAO"},
	}
	for _, c := range cases {
		if got := GUIDFor(c.values...); got != c.want {
			t.Fatalf("GUIDFor(%q) = %q, want %q", c.values, got, c.want)
		}
	}
}

func TestFieldChecksum(t *testing.T) {
	if got := fieldChecksum("France"); got != 3816237764 {
		t.Fatalf("fieldChecksum(France) = %d", got)
	}
}

func TestDeckIDForIsStable(t *testing.T) {
	a := DeckIDFor("Country Populations (UN)")
	b := DeckIDFor("Country Populations (UN)")
	if a != b {
		t.Fatalf("deck id changed between calls: %d vs %d", a, b)
	}
	if a <= 0 || a > 0x7fffffff {
		t.Fatalf("deck id %d out of range", a)
	}
	if DeckIDFor("Another deck") == a {
		t.Fatalf("different names gave the same deck id")
	}
}
