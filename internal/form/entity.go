package form

type Mode string

const (
	ModeCreate Mode = "create"
	ModeEdit   Mode = "edit"
)

func (m Mode) Valid() bool {
	return m == ModeCreate || m == ModeEdit
}

type Kind int

const (
	KindText Kind = iota
	// KindDecimal values are normalized to canonical decimal text on submit.
	KindDecimal
)

type Field struct {
	Key     string
	Label   string
	Default string
	Kind    Kind
	Filter  *Filter
}

// Requirement pairs the label users read with the field it refers to.
type Requirement struct {
	Label string
	Key   string
}

// Entity describes one editable record type: where it lives upstream, its
// fields, and which of them must be filled in for each mode.
type Entity struct {
	Name         string
	Slug         string
	Tag          string
	ResponseKey  string
	Fields       []Field
	Required     map[Mode][]Requirement
	CreateAction string
	EditAction   string
}

func (e *Entity) Field(key string) (Field, bool) {
	for _, f := range e.Fields {
		if f.Key == key {
			return f, true
		}
	}
	return Field{}, false
}

func (e *Entity) Defaults() map[string]string {
	values := make(map[string]string, len(e.Fields))
	for _, f := range e.Fields {
		values[f.Key] = f.Default
	}
	return values
}

// Action is the button grant needed to open the form in mode.
func (e *Entity) Action(mode Mode) string {
	if mode == ModeEdit {
		return e.EditAction
	}
	return e.CreateAction
}
