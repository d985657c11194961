package symbolindex

import "slices"

// Target is one location a symbol resolves to. Scope labels the enclosing
// construct ("Catch::Detail", "Game::shipLength()", or "" for file-level
// symbols); Reference is an opaque locator handed back to callers as-is.
type Target struct {
	Scope     string `json:"scope"`
	Reference string `json:"reference"`
}

// Record is a raw input row: a display name and the targets it resolves to.
type Record struct {
	DisplayName string   `json:"display_name"`
	Targets     []Target `json:"targets"`
}

// Entry is one indexed symbol. Key is the normalized form of DisplayName and
// is unique within an Index; records sharing a key are merged into a single
// Entry whose Targets keep input order.
type Entry struct {
	Key         string   `json:"key"`
	DisplayName string   `json:"display_name"`
	Targets     []Target `json:"targets"`
}

func (e Entry) clone() Entry {
	e.Targets = slices.Clone(e.Targets)
	return e
}
