// Package category resolves a configured category/subcategory selection
// (button label or deep-link token) to the staff destination that should
// receive a conversation's tickets. The tree is static per deployment
// and the derived route bindings are read-only after initialization.
package category

import (
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

// maxTokenBytes bounds deep-link tokens; longer values break the bot
// platform's start-parameter syntax.
const maxTokenBytes = 63

// Leaf is a destination: messages for this category go to GroupID.
type Leaf struct {
	Name    string `yaml:"name"`
	GroupID string `yaml:"group_id"`
	Tag     string `yaml:"tag,omitempty"`
	Msg     string `yaml:"msg,omitempty"`
}

// Category is either a destination leaf itself or a parent holding an
// ordered list of subcategory leaves.
type Category struct {
	Leaf          `yaml:",inline"`
	Subcategories []Leaf `yaml:"subcategories,omitempty"`
}

func (c Category) HasSubcategories() bool {
	return len(c.Subcategories) > 0
}

type Tree struct {
	Categories []Category `yaml:"categories"`
}

func Parse(raw []byte) (*Tree, error) {
	var tree Tree
	if err := yaml.Unmarshal(raw, &tree); err != nil {
		return nil, fmt.Errorf("parse category tree: %w", err)
	}
	for i, cat := range tree.Categories {
		if strings.TrimSpace(cat.Name) == "" {
			return nil, fmt.Errorf("category %d has no name", i)
		}
		if !cat.HasSubcategories() && strings.TrimSpace(cat.GroupID) == "" {
			return nil, fmt.Errorf("category %q has neither group_id nor subcategories", cat.Name)
		}
		for _, sub := range cat.Subcategories {
			if strings.TrimSpace(sub.Name) == "" {
				return nil, fmt.Errorf("category %q has an unnamed subcategory", cat.Name)
			}
			if strings.TrimSpace(sub.GroupID) == "" {
				return nil, fmt.Errorf("subcategory %q of %q has no group_id", sub.Name, cat.Name)
			}
		}
	}
	return &tree, nil
}

func Load(path string) (*Tree, error) {
	if path == "" {
		return &Tree{}, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read category tree %s: %w", path, err)
	}
	return Parse(raw)
}

// DeepLinkToken derives the start-parameter token for a leaf name:
// strips the characters that break start-parameter syntax and truncates
// to 63 bytes.
func DeepLinkToken(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch r {
		case '[', ']', ':', ' ', '"':
			continue
		}
		b.WriteRune(r)
	}
	token := b.String()
	for len(token) > maxTokenBytes {
		_, size := utf8.DecodeLastRuneInString(token)
		token = token[:len(token)-size]
	}
	return token
}
