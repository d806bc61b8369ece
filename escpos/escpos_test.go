package escpos

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	poserrors "github.com/GetwithitMan/gwi-pos-sub005/errors"
	"github.com/GetwithitMan/gwi-pos-sub005/routing"
	"github.com/GetwithitMan/gwi-pos-sub005/ticket"
)

func sampleDoc() ticket.Document {
	return ticket.Document{
		StationID:   "expo-prn",
		StationName: "Expo",
		Instructions: []ticket.Instruction{
			{Op: ticket.OpInit},
			ticket.Text("Expo", ticket.Style{Bold: true, DoubleHeight: true, Align: ticket.AlignCenter}),
			ticket.Text("Order 47  Table 12", ticket.Style{Align: ticket.AlignCenter}),
			{Op: ticket.OpFeed, Arg: 1},
			ticket.Text("2x Burger", ticket.Style{Bold: true, DoubleHeight: true}),
			ticket.Text("  - Medium Rare", ticket.Style{}),
			ticket.Text("    > ** No Pickles", ticket.Style{Bold: true, Inverse: true}),
			{Op: ticket.OpFeed, Arg: 3},
			{Op: ticket.OpCut},
			{Op: ticket.OpBuzzer, Arg: 2},
		},
	}
}

func TestEncode_ControlSequences(t *testing.T) {
	data, err := Encode(sampleDoc())
	require.NoError(t, err)

	assert.Equal(t, []byte{0x1b, 0x40}, data[:2], "payload starts with initialize")
	assert.Contains(t, string(data), "2x Burger")

	// Partial cut and buzzer close the ticket.
	n := len(data)
	assert.Equal(t, []byte{0x1d, 0x56, 0x42, 0x00}, data[n-8:n-4])
	assert.Equal(t, []byte{0x1b, 0x42, 0x02, 0x02}, data[n-4:])
}

func TestRoundTrip(t *testing.T) {
	doc := sampleDoc()

	data, err := Encode(doc)
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)

	assert.Equal(t, doc.Instructions, decoded,
		"decoding an encoded ticket reproduces the exact instruction sequence")
}

func TestRoundTrip_BuiltTicket(t *testing.T) {
	// Full pipeline: manifest entry -> builder -> encoder -> decoder.
	entry := routing.ManifestEntry{
		StationID:   "grill-prn",
		StationName: "Grill",
		Kind:        routing.KindPrinter,
		Items: []routing.OrderItem{
			{
				ID: "i1", Name: "Burger", Quantity: 1,
				Modifiers: []routing.Modifier{
					{Name: "Add Bacon", Depth: 0},
					{Name: "No Pickles", Depth: 1, Destructive: true},
				},
			},
			{ID: "i2", Name: "Fries", Quantity: 2, Notes: "extra crispy"},
		},
	}
	header := ticket.Header{OrderNumber: "9", Table: "4", At: time.Now()}

	profile := ticket.DefaultProfile()
	profile.BuzzerPulses = 1

	doc, err := ticket.Build(header, entry, profile)
	require.NoError(t, err)

	data, err := Encode(doc)
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, doc.Instructions, decoded)
}

func TestEncode_RejectsControlBytesInText(t *testing.T) {
	doc := ticket.Document{Instructions: []ticket.Instruction{
		ticket.Text("bad\x1bline", ticket.Style{}),
	}}
	_, err := Encode(doc)
	require.Error(t, err)
	assert.True(t, poserrors.IsInvalid(err))
}

func TestEncode_UnknownOp(t *testing.T) {
	doc := ticket.Document{Instructions: []ticket.Instruction{{Op: ticket.Op(99)}}}
	_, err := Encode(doc)
	require.Error(t, err)
	assert.ErrorIs(t, err, poserrors.ErrUnsupportedOpcode)
}

func TestEncode_ClampsFeedAndBuzzer(t *testing.T) {
	doc := ticket.Document{Instructions: []ticket.Instruction{
		{Op: ticket.OpFeed, Arg: 0},
		{Op: ticket.OpFeed, Arg: 9999},
		{Op: ticket.OpBuzzer, Arg: 42},
	}}
	data, err := Encode(doc)
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, 1, decoded[0].Arg)
	assert.Equal(t, 255, decoded[1].Arg)
	assert.Equal(t, 9, decoded[2].Arg)
}

func TestDecode_Truncated(t *testing.T) {
	_, err := Decode([]byte{0x1b})
	assert.Error(t, err)

	_, err = Decode([]byte{0x1b, 0x61})
	assert.Error(t, err)

	_, err = Decode([]byte{0x1d, 0x56, 0x42})
	assert.Error(t, err)

	// Text without terminating LF.
	_, err = Decode([]byte("dangling"))
	assert.Error(t, err)
}

func TestDecode_UnknownCommand(t *testing.T) {
	_, err := Decode([]byte{0x1b, 0x7a})
	require.Error(t, err)
	assert.ErrorIs(t, err, poserrors.ErrUnsupportedOpcode)
}

func TestDecode_BareTextRun(t *testing.T) {
	decoded, err := Decode([]byte("hello\x0a"))
	require.NoError(t, err)
	require.Len(t, decoded, 1)
	assert.Equal(t, ticket.Text("hello", ticket.Style{}), decoded[0])
}
