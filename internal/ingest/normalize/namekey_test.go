package normalize

import "testing"

func TestNameKey(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Universidad de São Paulo", "universidad de sao paulo"},
		{"  Trinity   College,  Dublin ", "trinity college dublin"},
		{"Müller-Institut für Forschung", "muller institut fur forschung"},
		{"CNRS", "cnrs"},
		{"", ""},
	}
	for _, c := range cases {
		if got := NameKey(c.in); got != c.want {
			t.Fatalf("NameKey(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestTokens(t *testing.T) {
	got := Tokens(NameKey("École Polytechnique, Paris"))
	want := []string{"ecole", "polytechnique", "paris"}
	if len(got) != len(want) {
		t.Fatalf("Tokens: got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Tokens[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestParseDate(t *testing.T) {
	for _, c := range []struct {
		in    string
		year  int
		month int
		day   int
	}{
		{"2023-04-15", 2023, 4, 15},
		{"15/04/2023", 2023, 4, 15},
		{"15.04.2023", 2023, 4, 15},
		{"2023", 2023, 1, 1},
	} {
		got, ok := ParseDate(c.in)
		if !ok {
			t.Fatalf("ParseDate(%q): not parsed", c.in)
		}
		if got.Year() != c.year || int(got.Month()) != c.month || got.Day() != c.day {
			t.Fatalf("ParseDate(%q) = %v", c.in, got)
		}
	}
	if _, ok := ParseDate("not a date"); ok {
		t.Fatalf("ParseDate accepted garbage")
	}
}
