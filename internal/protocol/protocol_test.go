package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		ev   Event
	}{
		{"move", MouseMove(120, -4, ModShift)},
		{"press", MouseButton(10, 20, 1, true, ModCtrl|ModAlt)},
		{"release", MouseButton(10, 20, 3, false, 0)},
		{"scroll", MouseScroll(5, 6, 0.25, -1.5, ModMeta)},
		{"key", Key(65, 'é', true, ModShift)},
		{"focus", Focus(true)},
		{"raw", Event{Type: TypeMouse, Action: ActionMove, X: -32768, Y: 32767, Data1: -1, Data2: 7, Timestamp: 0xFFFFFFFF}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := tc.ev.Marshal()
			require.Len(t, b, EventSize)

			got, err := UnmarshalEvent(b)
			require.NoError(t, err)
			assert.Equal(t, tc.ev, got)
		})
	}
}

func TestResizeCarriesSurfaceID(t *testing.T) {
	ev := Resize(800, 600, 2.0, 4242)
	got, err := UnmarshalEvent(ev.Marshal())
	require.NoError(t, err)

	assert.Equal(t, TypeResize, got.Type)
	assert.Equal(t, uint32(4242), got.SurfaceID())
	assert.Equal(t, uint32(4242), got.Timestamp)
	assert.Equal(t, int16(800), got.X)
	assert.Equal(t, int16(600), got.Y)
	assert.InDelta(t, 2.0, got.Scale(), 0.001)

	assert.Zero(t, MouseMove(1, 1, 0).SurfaceID())
}

func TestFactoriesEncodeAuxiliaryFields(t *testing.T) {
	scroll := MouseScroll(0, 0, 0.5, -0.25, 0)
	dx, dy := scroll.ScrollDelta()
	assert.InDelta(t, 0.5, dx, 1e-4)
	assert.InDelta(t, -0.25, dy, 1e-4)

	key := Key(13, 0x1F600, false, 0)
	assert.Equal(t, ActionRelease, key.Action)
	assert.Equal(t, rune(0x1F600), key.Codepoint())

	assert.Equal(t, int16(0), Focus(false).Data1)
	assert.Equal(t, int16(32767), MouseMove(100000, 0, 0).X)
}

func TestUnmarshalEventShort(t *testing.T) {
	_, err := UnmarshalEvent(make([]byte, EventSize-1))
	assert.ErrorIs(t, err, ErrShortFrame)
}

func TestTreeRoundTrip(t *testing.T) {
	tree := NewTree("param").
		Set("id", 3).
		Set("value", 0.75).
		Set("label", "cutoff").
		Set("enabled", true).
		Set("blob", []byte{1, 2, 3})
	tree.Add(NewTree("meta").Set("unit", "Hz"))

	data, err := tree.MarshalBinary()
	require.NoError(t, err)

	got, err := UnmarshalTree(data)
	require.NoError(t, err)
	assert.Equal(t, "param", got.Type)
	assert.Equal(t, int64(3), got.Int("id", -1))
	assert.InDelta(t, 0.75, got.Float("value", 0), 1e-9)
	assert.Equal(t, "cutoff", got.String("label", ""))
	assert.True(t, got.Bool("enabled", false))
	v, ok := got.Get("blob")
	require.True(t, ok)
	assert.Equal(t, []byte{1, 2, 3}, v)
	require.Len(t, got.Children, 1)
	assert.Equal(t, "Hz", got.Children[0].String("unit", ""))

	names := make([]string, 0)
	for _, p := range got.Properties() {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"id", "value", "label", "enabled", "blob"}, names)
}

func TestTreeSetReplacesAndDefaults(t *testing.T) {
	tree := NewTree("param").Set("id", 1).Set("id", uint8(9))
	assert.Equal(t, int64(9), tree.Int("id", 0))
	assert.Len(t, tree.Properties(), 1)
	assert.Equal(t, int64(-1), tree.Int("missing", -1))
	assert.InDelta(t, 9.0, tree.Float("id", 0), 1e-9)
	assert.Equal(t, "9", tree.String("id", ""))
}

func TestUnmarshalTreeRejectsGarbage(t *testing.T) {
	_, err := UnmarshalTree([]byte{0xc1, 0x00})
	assert.ErrorIs(t, err, ErrInvalidTree)

	_, err = NewTree("").MarshalBinary()
	assert.ErrorIs(t, err, ErrInvalidTree)
}

func TestReaderPlainAndGeneric(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(MouseMove(3, 4, 0).Marshal())
	msg, err := EncodeGeneric(Event{Timestamp: 99}, NewTree("param").Set("id", 0).Set("value", 0.3))
	require.NoError(t, err)
	buf.Write(msg)

	r := NewReader(&buf, 0)
	first, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, TypeMouse, first.Event.Type)
	assert.Nil(t, first.Tree)

	second, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, TypeGeneric, second.Event.Type)
	assert.Equal(t, uint32(99), second.Event.Timestamp)
	require.NotNil(t, second.Tree)
	assert.InDelta(t, 0.3, second.Tree.Float("value", 0), 1e-9)

	_, err = r.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestReaderZeroLengthPayload(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(Event{Type: TypeGeneric}.Marshal())
	buf.Write([]byte{0, 0, 0, 0})
	buf.Write(Focus(true).Marshal())

	r := NewReader(&buf, 0)
	msg, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, TypeGeneric, msg.Event.Type)
	assert.Nil(t, msg.Tree)

	next, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, TypeFocus, next.Event.Type)
}

func TestReaderOversizedLengthStopsBeforeRead(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(Event{Type: TypeGeneric}.Marshal())
	var l [LengthSize]byte
	binary.LittleEndian.PutUint32(l[:], MaxPayloadSize+1)
	buf.Write(l[:])

	_, err := NewReader(&buf, 0).Next()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPayloadTooLarge))
}

func TestReaderCustomCeiling(t *testing.T) {
	msg, err := EncodeGeneric(Event{}, NewTree("blob").Set("data", bytes.Repeat([]byte{7}, 256)))
	require.NoError(t, err)

	_, err = NewReader(bytes.NewReader(msg), 64).Next()
	assert.ErrorIs(t, err, ErrPayloadTooLarge)
}

func TestReaderShortFrame(t *testing.T) {
	_, err := NewReader(bytes.NewReader([]byte{1, 2, 3}), 0).Next()
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}
