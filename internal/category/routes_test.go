package category

import "testing"

func testRoutes(t *testing.T) *Routes {
	t.Helper()
	tree, err := Parse([]byte(sampleTree))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	return NewRoutes(tree, "Back")
}

func TestMatchLeafSelectsDestination(t *testing.T) {
	r := testRoutes(t)
	m, ok := r.Match("Billing")
	if !ok {
		t.Fatalf("Match(Billing) not found")
	}
	if m.Kind != MatchSelect || m.Destination.GroupID != "-1001" || m.Destination.Tag != "bill" {
		t.Fatalf("match mismatch: %+v", m)
	}
}

func TestMatchParentListsSubcategories(t *testing.T) {
	r := testRoutes(t)
	m, ok := r.Match("Technical")
	if !ok {
		t.Fatalf("Match(Technical) not found")
	}
	if m.Kind != MatchShowSubcategories {
		t.Fatalf("kind = %v, want MatchShowSubcategories", m.Kind)
	}
	if len(m.Subcategories) != 2 || m.Subcategories[0] != "Login [help]" {
		t.Fatalf("subcategories mismatch: %v", m.Subcategories)
	}
}

func TestMatchSubcategoryCollapsesToDestination(t *testing.T) {
	r := testRoutes(t)
	m, ok := r.Match("Crashes")
	if !ok || m.Kind != MatchSelect || m.Destination.GroupID != "-1003" {
		t.Fatalf("match mismatch: ok=%v %+v", ok, m)
	}
	if m.Destination.Msg != "Please include your app version." {
		t.Fatalf("static msg not carried: %+v", m.Destination)
	}
}

func TestMatchDeepLinkToken(t *testing.T) {
	r := testRoutes(t)
	m, ok := r.Match("Loginhelp")
	if !ok || m.Kind != MatchSelect || m.Destination.GroupID != "-1002" {
		t.Fatalf("deep-link match mismatch: ok=%v %+v", ok, m)
	}
}

func TestMatchBack(t *testing.T) {
	r := testRoutes(t)
	m, ok := r.Match("Back")
	if !ok || m.Kind != MatchBack {
		t.Fatalf("back match mismatch: ok=%v %+v", ok, m)
	}
}

func TestMatchUnknownInput(t *testing.T) {
	r := testRoutes(t)
	for _, input := range []string{"", "  ", "Refunds"} {
		if _, ok := r.Match(input); ok {
			t.Fatalf("Match(%q) unexpectedly found", input)
		}
	}
}

func TestFirstMatchWinsInConfigurationOrder(t *testing.T) {
	tree, err := Parse([]byte(`
categories:
  - name: Dup
    group_id: "-1"
  - name: Dup
    group_id: "-2"
`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	r := NewRoutes(tree, "Back")
	m, ok := r.Match("Dup")
	if !ok || m.Destination.GroupID != "-1" {
		t.Fatalf("first binding should win: ok=%v %+v", ok, m)
	}
}

func TestTopLabelsOrder(t *testing.T) {
	r := testRoutes(t)
	labels := r.TopLabels()
	if len(labels) != 2 || labels[0] != "Billing" || labels[1] != "Technical" {
		t.Fatalf("top labels mismatch: %v", labels)
	}
}
