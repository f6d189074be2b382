package form

import "regexp"

// Filter decides whether a field value may enter the form at all. It is
// applied at input time; nothing is stripped afterwards.
type Filter struct {
	Name    string
	pattern *regexp.Regexp
}

func NewFilter(name, pattern string) *Filter {
	return &Filter{Name: name, pattern: regexp.MustCompile(pattern)}
}

func (f *Filter) Accepts(value string) bool {
	if f == nil {
		return true
	}
	return f.pattern.MatchString(value)
}

var (
	// Dimension accepts box sizes such as 10X20X5.
	Dimension = NewFilter("dimension", `^[0-9X]*$`)
	// Decimal accepts digits with at most one decimal point.
	Decimal = NewFilter("decimal", `^[0-9]*\.?[0-9]*$`)
	Digits  = NewFilter("digits", `^[0-9]*$`)
)
