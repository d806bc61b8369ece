package escpos

import (
	"fmt"

	"github.com/GetwithitMan/gwi-pos-sub005/errors"
	"github.com/GetwithitMan/gwi-pos-sub005/ticket"
)

// Decode parses ESC/POS bytes produced by Encode back into the abstract
// instruction sequence. It understands the canonical subset this package
// emits; raw text runs without a style prefix decode as unstyled lines.
func Decode(data []byte) ([]ticket.Instruction, error) {
	var out []ticket.Instruction

	// Pending style accumulated from prefix commands; consumed by the next
	// text run.
	var style ticket.Style
	var text []byte
	textOpen := false

	flush := func() {
		out = append(out, ticket.Text(string(text), style))
		text = text[:0]
		textOpen = false
		style = ticket.Style{}
	}

	i := 0
	need := func(n int) error {
		if i+n > len(data) {
			return errors.WrapInvalid(errors.ErrUnsupportedOpcode, "escpos", "Decode",
				fmt.Sprintf("truncated command at offset %d", i))
		}
		return nil
	}

	for i < len(data) {
		b := data[i]
		switch b {
		case esc:
			if err := need(2); err != nil {
				return nil, err
			}
			switch data[i+1] {
			case cmdInit:
				out = append(out, ticket.Instruction{Op: ticket.OpInit})
				i += 2
			case cmdAlign:
				if err := need(3); err != nil {
					return nil, err
				}
				switch data[i+2] {
				case 0:
					style.Align = ticket.AlignLeft
				case 1:
					style.Align = ticket.AlignCenter
				case 2:
					style.Align = ticket.AlignRight
				default:
					return nil, errors.WrapInvalid(errors.ErrUnsupportedOpcode, "escpos", "Decode",
						fmt.Sprintf("alignment %d at offset %d", data[i+2], i))
				}
				i += 3
			case cmdBold:
				if err := need(3); err != nil {
					return nil, err
				}
				style.Bold = data[i+2]&0x01 != 0
				i += 3
			case cmdFeed:
				if err := need(3); err != nil {
					return nil, err
				}
				out = append(out, ticket.Instruction{Op: ticket.OpFeed, Arg: int(data[i+2])})
				i += 3
			case cmdBuzzer:
				if err := need(4); err != nil {
					return nil, err
				}
				out = append(out, ticket.Instruction{Op: ticket.OpBuzzer, Arg: int(data[i+2])})
				i += 4
			default:
				return nil, errors.WrapInvalid(errors.ErrUnsupportedOpcode, "escpos", "Decode",
					fmt.Sprintf("ESC 0x%02x at offset %d", data[i+1], i))
			}

		case gs:
			if err := need(2); err != nil {
				return nil, err
			}
			switch data[i+1] {
			case cmdSize:
				if err := need(3); err != nil {
					return nil, err
				}
				style.DoubleHeight = data[i+2]&sizeDoubleHeight != 0
				style.DoubleWidth = data[i+2]&sizeDoubleWidth != 0
				i += 3
			case cmdInverse:
				if err := need(3); err != nil {
					return nil, err
				}
				style.Inverse = data[i+2]&0x01 != 0
				i += 3
			case cmdCut:
				if err := need(4); err != nil {
					return nil, err
				}
				if data[i+2] != cutPartial {
					return nil, errors.WrapInvalid(errors.ErrUnsupportedOpcode, "escpos", "Decode",
						fmt.Sprintf("cut mode 0x%02x at offset %d", data[i+2], i))
				}
				out = append(out, ticket.Instruction{Op: ticket.OpCut})
				i += 4
			default:
				return nil, errors.WrapInvalid(errors.ErrUnsupportedOpcode, "escpos", "Decode",
					fmt.Sprintf("GS 0x%02x at offset %d", data[i+1], i))
			}

		case lf:
			// Empty text runs are legal: LF alone prints a blank styled line.
			flush()
			i++

		default:
			text = append(text, b)
			textOpen = true
			i++
		}
	}

	if textOpen {
		return nil, errors.WrapInvalid(errors.ErrUnsupportedOpcode, "escpos", "Decode",
			"unterminated text run at end of payload")
	}

	return out, nil
}
