package category

import (
	"strings"
	"testing"
)

const sampleTree = `
categories:
  - name: Billing
    group_id: "-1001"
    tag: bill
  - name: Technical
    subcategories:
      - name: "Login [help]"
        group_id: "-1002"
      - name: Crashes
        group_id: "-1003"
        msg: "Please include your app version."
`

func TestParseSampleTree(t *testing.T) {
	tree, err := Parse([]byte(sampleTree))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(tree.Categories) != 2 {
		t.Fatalf("category count = %d, want 2", len(tree.Categories))
	}
	if tree.Categories[0].GroupID != "-1001" || tree.Categories[0].Tag != "bill" {
		t.Fatalf("billing leaf mismatch: %+v", tree.Categories[0])
	}
	if !tree.Categories[1].HasSubcategories() {
		t.Fatalf("technical should have subcategories")
	}
}

func TestParseRejectsInvalidTrees(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{name: "unnamed category", raw: "categories:\n  - group_id: \"-1\"\n"},
		{name: "leaf without destination", raw: "categories:\n  - name: X\n"},
		{name: "subcategory without group", raw: "categories:\n  - name: X\n    subcategories:\n      - name: Y\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Parse([]byte(tc.raw)); err == nil {
				t.Fatalf("Parse() expected error")
			}
		})
	}
}

func TestDeepLinkTokenStripsReservedCharacters(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{in: "Login [help]", want: "Loginhelp"},
		{in: `a:b "c" d`, want: "abcd"},
		{in: "plain", want: "plain"},
	}
	for _, tc := range cases {
		if got := DeepLinkToken(tc.in); got != tc.want {
			t.Fatalf("DeepLinkToken(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestDeepLinkTokenNeverExceeds63Bytes(t *testing.T) {
	inputs := []string{
		strings.Repeat("x", 200),
		strings.Repeat("ü", 100),
		"short",
	}
	for _, in := range inputs {
		token := DeepLinkToken(in)
		if len(token) > 63 {
			t.Fatalf("token for %q is %d bytes", in, len(token))
		}
		for _, r := range token {
			switch r {
			case '[', ']', ':', ' ', '"':
				t.Fatalf("token %q contains reserved rune %q", token, r)
			}
		}
	}
}
