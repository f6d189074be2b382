// Package menu builds the sidebar navigation a user is allowed to see.
package menu

import "github.com/frahmantamala/trading-panel/internal/permission"

// Item is one navigation entry. Entries with children are groups; only leaves
// are checked against page grants.
type Item struct {
	Title    string `json:"title"`
	URL      string `json:"url"`
	Icon     string `json:"icon,omitempty"`
	Children []Item `json:"children,omitempty"`
}

func (i Item) IsGroup() bool {
	return len(i.Children) > 0
}

// Filter returns the subset of items the user may visit. A group survives only
// when at least one of its descendants does, and then carries just those
// descendants; a group's own grant is irrelevant. Order is preserved and the
// input is not modified.
func Filter(items []Item, grants permission.Grants, userID string) []Item {
	out := make([]Item, 0, len(items))
	for _, item := range items {
		if item.IsGroup() {
			children := Filter(item.Children, grants, userID)
			if len(children) == 0 {
				continue
			}
			group := item
			group.Children = children
			out = append(out, group)
			continue
		}

		if permission.CanVisit(userID, item.Title, item.URL, grants) {
			out = append(out, item)
		}
	}
	return out
}

// Leaves flattens a menu tree into its leaf entries, depth first.
func Leaves(items []Item) []Item {
	var out []Item
	for _, item := range items {
		if item.IsGroup() {
			out = append(out, Leaves(item.Children)...)
			continue
		}
		out = append(out, item)
	}
	return out
}
