package category

import "strings"

type MatchKind int

const (
	// MatchSelect resolves directly to a staff destination.
	MatchSelect MatchKind = iota
	// MatchShowSubcategories lists a parent's subcategory labels.
	MatchShowSubcategories
	// MatchBack restores the top-level category listing.
	MatchBack
)

// Destination is the resolved staff group for a conversation.
type Destination struct {
	GroupID  string
	Category string
	Tag      string
	Msg      string
}

type Match struct {
	Kind          MatchKind
	Destination   Destination // valid for MatchSelect
	Subcategories []string    // valid for MatchShowSubcategories
}

type binding struct {
	triggers []string
	match    Match
}

// Routes holds the derived trigger bindings. Built once at startup and
// shared read-only across all event handlers.
type Routes struct {
	bindings  []binding
	backLabel string
	topLabels []string
}

// NewRoutes registers one binding per leaf (label equality plus
// deep-link token) in configuration order. For parents the binding
// yields the subcategory listing; subcategory leaves collapse directly
// to their destination.
func NewRoutes(tree *Tree, backLabel string) *Routes {
	r := &Routes{backLabel: backLabel}
	if tree == nil {
		return r
	}
	for _, cat := range tree.Categories {
		r.topLabels = append(r.topLabels, cat.Name)
		if cat.HasSubcategories() {
			labels := make([]string, 0, len(cat.Subcategories))
			for _, sub := range cat.Subcategories {
				labels = append(labels, sub.Name)
			}
			r.bindings = append(r.bindings, binding{
				triggers: leafTriggers(cat.Name),
				match:    Match{Kind: MatchShowSubcategories, Subcategories: labels},
			})
			for _, sub := range cat.Subcategories {
				r.bindings = append(r.bindings, binding{
					triggers: leafTriggers(sub.Name),
					match:    Match{Kind: MatchSelect, Destination: destinationFor(sub)},
				})
			}
			continue
		}
		r.bindings = append(r.bindings, binding{
			triggers: leafTriggers(cat.Name),
			match:    Match{Kind: MatchSelect, Destination: destinationFor(cat.Leaf)},
		})
	}
	return r
}

// Match resolves a trigger input (button label or deep-link token).
// Exactly one route activates: first match in configuration order wins.
func (r *Routes) Match(input string) (Match, bool) {
	input = strings.TrimSpace(input)
	if input == "" {
		return Match{}, false
	}
	if r.backLabel != "" && input == r.backLabel {
		return Match{Kind: MatchBack}, true
	}
	for _, b := range r.bindings {
		for _, trigger := range b.triggers {
			if input == trigger {
				return b.match, true
			}
		}
	}
	return Match{}, false
}

// Destinations enumerates every destination leaf in configuration
// order. The permission resolver uses it to recognize staff group chats.
func (r *Routes) Destinations() []Destination {
	var out []Destination
	for _, b := range r.bindings {
		if b.match.Kind == MatchSelect {
			out = append(out, b.match.Destination)
		}
	}
	return out
}

// TopLabels returns the top-level category labels in configuration order.
func (r *Routes) TopLabels() []string {
	return r.topLabels
}

func (r *Routes) Empty() bool {
	return len(r.bindings) == 0
}

func leafTriggers(name string) []string {
	triggers := []string{name}
	if token := DeepLinkToken(name); token != "" && token != name {
		triggers = append(triggers, token)
	}
	return triggers
}

func destinationFor(leaf Leaf) Destination {
	return Destination{
		GroupID:  leaf.GroupID,
		Category: leaf.Name,
		Tag:      leaf.Tag,
		Msg:      leaf.Msg,
	}
}
