package ticket

import (
	"fmt"
	"strings"

	"github.com/GetwithitMan/gwi-pos-sub005/errors"
)

// StyleProfile is the per-station formatting descriptor. Different stations
// need different emphasis (a bar chit reads differently from a grill
// ticket), so the builder takes the rules as data instead of hardcoding
// them.
type StyleProfile struct {
	Header      Style `json:"header"      yaml:"header"`
	Meta        Style `json:"meta"        yaml:"meta"`
	Item        Style `json:"item"        yaml:"item"`
	Modifier    Style `json:"modifier"    yaml:"modifier"`
	Destructive Style `json:"destructive" yaml:"destructive"`
	Notes       Style `json:"notes"       yaml:"notes"`

	// IndentWidth is the number of spaces per modifier nesting level.
	IndentWidth int `json:"indent_width" yaml:"indent_width"`
	// TopGlyph leads depth-0 modifier lines; NestedGlyph leads deeper ones.
	TopGlyph    string `json:"top_glyph"    yaml:"top_glyph"`
	NestedGlyph string `json:"nested_glyph" yaml:"nested_glyph"`
	// DestructiveMarker is the textual marker prefixed to removals, so "no
	// pickles" survives even on printers that ignore inverse mode.
	DestructiveMarker string `json:"destructive_marker" yaml:"destructive_marker"`

	// Cut appends a partial paper cut; BuzzerPulses >0 sounds the buzzer.
	Cut          bool `json:"cut"           yaml:"cut"`
	BuzzerPulses int  `json:"buzzer_pulses" yaml:"buzzer_pulses"`
}

// DefaultProfile returns the kitchen ticket profile: big bold item lines,
// inverse destructive modifiers, cut between tickets.
func DefaultProfile() StyleProfile {
	return StyleProfile{
		Header:      Style{Bold: true, DoubleHeight: true, Align: AlignCenter},
		Meta:        Style{Align: AlignCenter},
		Item:        Style{Bold: true, DoubleHeight: true},
		Modifier:    Style{},
		Destructive: Style{Bold: true, Inverse: true},
		Notes:       Style{Bold: true},

		IndentWidth:       2,
		TopGlyph:          "- ",
		NestedGlyph:       "> ",
		DestructiveMarker: "** ",

		Cut: true,
	}
}

// BarProfile returns a compact profile for bar chits: single-height items,
// no buzzer, still cut.
func BarProfile() StyleProfile {
	p := DefaultProfile()
	p.Header.DoubleHeight = false
	p.Item.DoubleHeight = false
	return p
}

// Validate checks the profile is a usable style descriptor. A malformed
// profile is a local construction error; the dispatch service reports the
// entry as build-failed and the rest of the manifest proceeds.
func (p StyleProfile) Validate() error {
	if p.IndentWidth < 0 || p.IndentWidth > 16 {
		return errors.WrapInvalid(errors.ErrBadStyle, "StyleProfile", "Validate",
			fmt.Sprintf("indent width %d out of range [0,16]", p.IndentWidth))
	}
	if p.BuzzerPulses < 0 || p.BuzzerPulses > 9 {
		return errors.WrapInvalid(errors.ErrBadStyle, "StyleProfile", "Validate",
			fmt.Sprintf("buzzer pulses %d out of range [0,9]", p.BuzzerPulses))
	}
	for _, s := range []Style{p.Header, p.Meta, p.Item, p.Modifier, p.Destructive, p.Notes} {
		if s.Align < AlignLeft || s.Align > AlignRight {
			return errors.WrapInvalid(errors.ErrBadStyle, "StyleProfile", "Validate",
				fmt.Sprintf("unknown alignment %d", s.Align))
		}
	}
	if strings.ContainsAny(p.TopGlyph+p.NestedGlyph+p.DestructiveMarker, "\x00\n\r") {
		return errors.WrapInvalid(errors.ErrBadStyle, "StyleProfile", "Validate",
			"glyphs must not contain control characters")
	}
	return nil
}
