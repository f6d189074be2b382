package permission

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

type Status string

const (
	StatusActive   Status = "Active"
	StatusInactive Status = "Inactive"
)

// Grant authorizes the listed users for one UI capability. Action is the
// button key; Page and URL identify a navigation entry.
type Grant struct {
	Action  string  `json:"action"`
	Page    string  `json:"page"`
	URL     string  `json:"url"`
	UserIDs UserIDs `json:"userIds"`
	Status  Status  `json:"status"`
}

// Effective reports whether the grant applies to userID at all.
func (g Grant) Effective(userID string) bool {
	return g.Status == StatusActive && userID != "" && g.UserIDs.Contains(userID)
}

// UserIDs holds user identifiers as strings. The backend sends them either as
// a JSON array (of strings or numbers) or as one comma-separated string.
type UserIDs []string

func (u UserIDs) Contains(id string) bool {
	id = strings.TrimSpace(id)
	for _, candidate := range u {
		if candidate == id {
			return true
		}
	}
	return false
}

func (u *UserIDs) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*u = nil
		return nil
	}

	switch data[0] {
	case '"':
		var joined string
		if err := json.Unmarshal(data, &joined); err != nil {
			return err
		}
		*u = splitIDs(joined)
		return nil
	case '[':
		var raw []json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		ids := make(UserIDs, 0, len(raw))
		for _, item := range raw {
			id, err := scalarID(item)
			if err != nil {
				return err
			}
			if id != "" {
				ids = append(ids, id)
			}
		}
		*u = ids
		return nil
	default:
		id, err := scalarID(data)
		if err != nil {
			return err
		}
		*u = splitIDs(id)
		return nil
	}
}

func scalarID(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s), nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), nil
	}
	return "", fmt.Errorf("user id %s is neither a string nor a number", string(raw))
}

func splitIDs(joined string) UserIDs {
	parts := strings.Split(joined, ",")
	ids := make(UserIDs, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			ids = append(ids, p)
		}
	}
	return ids
}

// Grants is a decoded permission table.
type Grants []Grant

var ErrMalformedGrants = errors.New("malformed permission data")

// DecodeGrants parses permission data as received from the login payload or a
// persisted store. The payload may be the JSON array itself or a JSON string
// wrapping it. On any failure the result is an empty, deny-all table together
// with an error describing what was wrong.
func DecodeGrants(raw []byte) (Grants, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return Grants{}, nil
	}

	// at most one level of string wrapping is unwrapped
	if raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return Grants{}, fmt.Errorf("%w: %v", ErrMalformedGrants, err)
		}
		raw = bytes.TrimSpace([]byte(inner))
		if len(raw) == 0 {
			return Grants{}, nil
		}
	}

	if raw[0] != '[' {
		return Grants{}, fmt.Errorf("%w: expected a list", ErrMalformedGrants)
	}

	var grants Grants
	if err := json.Unmarshal(raw, &grants); err != nil {
		return Grants{}, fmt.Errorf("%w: %v", ErrMalformedGrants, err)
	}
	if grants == nil {
		grants = Grants{}
	}
	return grants, nil
}

// DecodeGrantsString is DecodeGrants for string payloads.
func DecodeGrantsString(raw string) (Grants, error) {
	return DecodeGrants([]byte(raw))
}
