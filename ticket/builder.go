package ticket

import (
	"fmt"
	"strings"
	"time"

	"github.com/GetwithitMan/gwi-pos-sub005/errors"
	"github.com/GetwithitMan/gwi-pos-sub005/routing"
)

// Header carries the order identity printed at the top of every ticket.
type Header struct {
	OrderNumber string
	Table       string
	Server      string
	At          time.Time
}

// Build converts one printer-bound manifest entry into an instruction
// document. Pure function: any failure is a local construction error for
// this entry only.
func Build(header Header, entry routing.ManifestEntry, profile StyleProfile) (Document, error) {
	if err := profile.Validate(); err != nil {
		return Document{}, err
	}
	if len(entry.Items) == 0 {
		return Document{}, errors.WrapInvalid(errors.ErrEmptyTicket, "ticket", "Build",
			fmt.Sprintf("station %s: manifest entry has no items", entry.StationID))
	}

	doc := Document{
		StationID:   entry.StationID,
		StationName: entry.StationName,
	}
	add := func(ins Instruction) { doc.Instructions = append(doc.Instructions, ins) }

	add(Instruction{Op: OpInit})

	// Header block: station, order/table, timestamp.
	add(Text(entry.StationName, profile.Header))
	idLine := "Order " + header.OrderNumber
	if header.Table != "" {
		idLine += "  Table " + header.Table
	}
	add(Text(idLine, profile.Meta))
	if header.Server != "" {
		add(Text("Server: "+header.Server, profile.Meta))
	}
	at := header.At
	if at.IsZero() {
		at = time.Now()
	}
	add(Text(at.Format("15:04:05 Jan 2"), profile.Meta))
	add(Instruction{Op: OpFeed, Arg: 1})

	for _, item := range entry.Items {
		add(Text(fmt.Sprintf("%dx %s", item.Quantity, sanitize(item.Name)), profile.Item))

		if item.Seat > 0 || item.Course != "" {
			meta := ""
			if item.Seat > 0 {
				meta = fmt.Sprintf("Seat %d", item.Seat)
			}
			if item.Course != "" {
				if meta != "" {
					meta += "  "
				}
				meta += sanitize(item.Course)
			}
			add(Text(strings.Repeat(" ", profile.IndentWidth)+meta, profile.Modifier))
		}

		for _, mod := range item.Modifiers {
			add(modifierLine(mod, profile))
		}

		if item.Notes != "" {
			for _, line := range strings.Split(item.Notes, "\n") {
				line = strings.TrimSpace(line)
				if line == "" {
					continue
				}
				add(Text(strings.Repeat(" ", profile.IndentWidth)+"NOTE: "+sanitize(line), profile.Notes))
			}
		}
	}

	add(Instruction{Op: OpFeed, Arg: 3})
	if profile.Cut {
		add(Instruction{Op: OpCut})
	}
	if profile.BuzzerPulses > 0 {
		add(Instruction{Op: OpBuzzer, Arg: profile.BuzzerPulses})
	}

	return doc, nil
}

// modifierLine renders one modifier with depth-proportional indentation and
// a glyph that distinguishes top-level from nested lines. Destructive
// modifiers ("no X") get the emphasis style plus a textual marker so they
// survive printers that ignore inverse mode.
func modifierLine(mod routing.Modifier, profile StyleProfile) Instruction {
	depth := mod.Depth
	if depth < 0 {
		depth = 0
	}

	glyph := profile.TopGlyph
	if depth > 0 {
		glyph = profile.NestedGlyph
	}

	indent := strings.Repeat(" ", profile.IndentWidth*(depth+1))
	text := indent + glyph
	style := profile.Modifier
	if mod.Destructive {
		style = profile.Destructive
		text += profile.DestructiveMarker
	}
	text += sanitize(mod.Name)

	return Text(text, style)
}

// sanitize strips control characters that would corrupt the byte protocol.
func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return ' '
		}
		return r
	}, s)
}
