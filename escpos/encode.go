// Package escpos maps abstract ticket instructions to the ESC/POS byte
// protocol spoken by networked thermal printers, and back. The decoder
// exists for round-trip tests and for diagnosing captured printer traffic;
// production only encodes.
//
// The encoder is canonical: every text line carries a full style prefix in a
// fixed order (align, bold, size, inverse), so decoding an encoded document
// reproduces the exact instruction sequence.
package escpos

import (
	"bytes"
	"fmt"

	"github.com/GetwithitMan/gwi-pos-sub005/errors"
	"github.com/GetwithitMan/gwi-pos-sub005/ticket"
)

// Control bytes and command prefixes.
const (
	lf  = 0x0a
	esc = 0x1b
	gs  = 0x1d

	cmdInit    = 0x40 // ESC @
	cmdAlign   = 0x61 // ESC a n
	cmdBold    = 0x45 // ESC E n
	cmdFeed    = 0x64 // ESC d n
	cmdBuzzer  = 0x42 // ESC B n t
	cmdSize    = 0x21 // GS ! n
	cmdInverse = 0x42 // GS B n
	cmdCut     = 0x56 // GS V m n

	cutPartial = 0x42 // GS V B: feed and partial cut

	// buzzerCycle is the ESC B duration unit sent with every pulse burst.
	buzzerCycle = 0x02

	sizeDoubleHeight = 0x01
	sizeDoubleWidth  = 0x10
)

// Encode renders an instruction document into ESC/POS bytes.
func Encode(doc ticket.Document) ([]byte, error) {
	var buf bytes.Buffer

	for i, ins := range doc.Instructions {
		switch ins.Op {
		case ticket.OpInit:
			buf.Write([]byte{esc, cmdInit})

		case ticket.OpText:
			if err := encodeText(&buf, ins); err != nil {
				return nil, err
			}

		case ticket.OpFeed:
			n := ins.Arg
			if n <= 0 {
				n = 1
			}
			if n > 255 {
				n = 255
			}
			buf.Write([]byte{esc, cmdFeed, byte(n)})

		case ticket.OpCut:
			buf.Write([]byte{gs, cmdCut, cutPartial, 0x00})

		case ticket.OpBuzzer:
			n := ins.Arg
			if n <= 0 {
				n = 1
			}
			if n > 9 {
				n = 9
			}
			buf.Write([]byte{esc, cmdBuzzer, byte(n), buzzerCycle})

		default:
			return nil, errors.WrapInvalid(errors.ErrUnsupportedOpcode, "escpos", "Encode",
				fmt.Sprintf("instruction %d: %s", i, ins.Op))
		}
	}

	return buf.Bytes(), nil
}

func encodeText(buf *bytes.Buffer, ins ticket.Instruction) error {
	st := ins.Style

	align := byte(0)
	switch st.Align {
	case ticket.AlignLeft:
		align = 0
	case ticket.AlignCenter:
		align = 1
	case ticket.AlignRight:
		align = 2
	default:
		return errors.WrapInvalid(errors.ErrBadStyle, "escpos", "encodeText",
			fmt.Sprintf("unknown alignment %d", st.Align))
	}
	buf.Write([]byte{esc, cmdAlign, align})

	bold := byte(0)
	if st.Bold {
		bold = 1
	}
	buf.Write([]byte{esc, cmdBold, bold})

	size := byte(0)
	if st.DoubleHeight {
		size |= sizeDoubleHeight
	}
	if st.DoubleWidth {
		size |= sizeDoubleWidth
	}
	buf.Write([]byte{gs, cmdSize, size})

	inverse := byte(0)
	if st.Inverse {
		inverse = 1
	}
	buf.Write([]byte{gs, cmdInverse, inverse})

	for _, b := range []byte(ins.Text) {
		if b < 0x20 && b != 0x09 {
			return errors.WrapInvalid(errors.ErrBadStyle, "escpos", "encodeText",
				fmt.Sprintf("text contains control byte 0x%02x", b))
		}
	}
	buf.WriteString(ins.Text)
	buf.WriteByte(lf)
	return nil
}
