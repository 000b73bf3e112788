package symbols

import "strings"

// Count is the number of symbols in the catalog.
const Count = 16

// hollowSuffix marks outline-only symbols.
const hollowSuffix = "_h"

// Variant decides how a session's symbols are colored.
type Variant string

const (
	VariantColor      Variant = "color"
	VariantMonochrome Variant = "monochrome"
)

// Valid reports whether v is one of the known variants.
func (v Variant) Valid() bool {
	return v == VariantColor || v == VariantMonochrome
}

// Label is the human readable name used in exports.
func (v Variant) Label() string {
	switch v {
	case VariantColor:
		return "COLOR"
	case VariantMonochrome:
		return "MONOCHROME"
	default:
		return "UNKNOWN"
	}
}

// Symbol is one entry of the fixed catalog.
type Symbol struct {
	Name      string `json:"name"`
	BaseColor string `json:"baseColor"`
	Hollow    bool   `json:"hollow"`
}

// Glyph holds everything the renderer needs to draw a symbol.
type Glyph struct {
	Name        string
	Fill        string
	Stroke      string
	StrokeWidth int
	Dimmed      bool
}

var catalog = build([]struct{ name, color string }{
	{"circle_f", "red"},
	{"square_f", "blue"},
	{"diamond_f", "green"},
	{"star_f", "orange"},
	{"arrow_up", "purple"},
	{"arrow_down", "brown"},
	{"arrow_left", "cyan"},
	{"arrow_right", "magenta"},
	{"triangle_f", "gold"},
	{"double_arrow_horizontal", "darkgreen"},
	{"double_arrow_vertical", "darkblue"},
	{"circle_h", "red"},
	{"square_h", "blue"},
	{"triangle_h", "gold"},
	{"star_h", "magenta"},
	{"diamond_h", "green"},
})

var byName = func() map[string]Symbol {
	m := make(map[string]Symbol, len(catalog))
	for _, s := range catalog {
		m[s.Name] = s
	}
	return m
}()

func build(entries []struct{ name, color string }) []Symbol {
	out := make([]Symbol, len(entries))
	for i, e := range entries {
		out[i] = Symbol{
			Name:      e.name,
			BaseColor: e.color,
			Hollow:    strings.HasSuffix(e.name, hollowSuffix),
		}
	}
	return out
}

// All returns a copy of the catalog in its canonical order.
func All() []Symbol {
	out := make([]Symbol, len(catalog))
	copy(out, catalog)
	return out
}

// Names returns the symbol names in canonical order.
func Names() []string {
	out := make([]string, len(catalog))
	for i, s := range catalog {
		out[i] = s.Name
	}
	return out
}

// Lookup returns the catalog entry for name.
func Lookup(name string) (Symbol, bool) {
	s, ok := byName[name]
	return s, ok
}

// Ink is the color a symbol is drawn with in the given variant.
func (s Symbol) Ink(v Variant) string {
	if v == VariantMonochrome {
		return "black"
	}
	return s.BaseColor
}

// Glyph returns the rendering parameters for the symbol. Hollow symbols are
// filled white and drawn with a heavier outline.
func (s Symbol) Glyph(v Variant, dimmed bool) Glyph {
	ink := s.Ink(v)
	g := Glyph{
		Name:        s.Name,
		Fill:        ink,
		Stroke:      ink,
		StrokeWidth: 2,
		Dimmed:      dimmed,
	}
	if s.Hollow {
		g.Fill = "white"
		g.StrokeWidth = 5
	}
	return g
}
