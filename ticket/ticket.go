// Package ticket converts printer-bound manifest entries into an abstract
// sequence of style+text print instructions. The instruction model is
// transport-agnostic; the escpos package maps it to a concrete byte
// protocol, so supporting another printer protocol never touches the
// resolver or the builder.
package ticket

import "fmt"

// Op identifies one abstract printer instruction.
type Op int

const (
	// OpInit resets the printer to its power-on state.
	OpInit Op = iota
	// OpText prints one styled line of text.
	OpText
	// OpFeed advances the paper by Arg lines.
	OpFeed
	// OpCut performs a partial paper cut.
	OpCut
	// OpBuzzer sounds the printer buzzer Arg times.
	OpBuzzer
)

// String returns the opcode mnemonic.
func (o Op) String() string {
	switch o {
	case OpInit:
		return "init"
	case OpText:
		return "text"
	case OpFeed:
		return "feed"
	case OpCut:
		return "cut"
	case OpBuzzer:
		return "buzzer"
	default:
		return fmt.Sprintf("op(%d)", int(o))
	}
}

// Align is horizontal text alignment.
type Align int

const (
	// AlignLeft aligns text to the left margin (printer default).
	AlignLeft Align = iota
	// AlignCenter centers text.
	AlignCenter
	// AlignRight aligns text to the right margin.
	AlignRight
)

// Style is the declarative per-line formatting descriptor. Thermal printers
// are monochrome, so emphasis is carried by weight, size and inversion only.
type Style struct {
	Bold         bool  `json:"bold,omitempty"         yaml:"bold,omitempty"`
	DoubleHeight bool  `json:"double_height,omitempty" yaml:"double_height,omitempty"`
	DoubleWidth  bool  `json:"double_width,omitempty"  yaml:"double_width,omitempty"`
	Inverse      bool  `json:"inverse,omitempty"       yaml:"inverse,omitempty"`
	Align        Align `json:"align,omitempty"         yaml:"align,omitempty"`
}

// Instruction is one abstract printer operation. Text and Style are set for
// OpText; Arg carries the line count for OpFeed and pulse count for OpBuzzer.
type Instruction struct {
	Op    Op
	Text  string
	Style Style
	Arg   int
}

// Text builds a styled text instruction.
func Text(s string, style Style) Instruction {
	return Instruction{Op: OpText, Text: s, Style: style}
}

// Document is the ordered instruction sequence for one physical ticket.
type Document struct {
	StationID    string
	StationName  string
	Instructions []Instruction
}
