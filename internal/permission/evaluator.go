package permission

import "strings"

// NormalizeURL removes every backslash and then one leading slash, so
// "/master/state", "master/state" and `\/master\/state` compare equal.
func NormalizeURL(u string) string {
	u = strings.ReplaceAll(u, "\\", "")
	return strings.TrimPrefix(u, "/")
}

// IsAllowed decides whether userID may use a capability. With an empty
// urlPath, name is a button action key; otherwise name is a page title and the
// grant must match both the title and the normalized path. Without an active
// grant naming the user the answer is always false.
func IsAllowed(userID, name, urlPath string, grants Grants) bool {
	if urlPath == "" {
		return CanAct(userID, name, grants)
	}
	return CanVisit(userID, name, urlPath, grants)
}

// CanAct checks a button permission.
func CanAct(userID, action string, grants Grants) bool {
	if action == "" {
		return false
	}
	return anyGrant(userID, grants, func(g Grant) bool {
		return g.Action == action
	})
}

// CanVisit checks a page permission.
func CanVisit(userID, page, urlPath string, grants Grants) bool {
	path := NormalizeURL(urlPath)
	return anyGrant(userID, grants, func(g Grant) bool {
		return g.Page == page && NormalizeURL(g.URL) == path
	})
}

func anyGrant(userID string, grants Grants, match func(Grant) bool) bool {
	for _, g := range grants {
		if g.Effective(userID) && match(g) {
			return true
		}
	}
	return false
}

// Allowed returns the subset of actions the user holds, preserving order.
func Allowed(userID string, actions []string, grants Grants) []string {
	out := make([]string, 0, len(actions))
	for _, a := range actions {
		if CanAct(userID, a, grants) {
			out = append(out, a)
		}
	}
	return out
}
