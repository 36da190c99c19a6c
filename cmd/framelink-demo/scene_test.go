package main

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1broseidon/framelink/internal/protocol"
)

func TestSceneInput(t *testing.T) {
	sc := newScene(0)
	assert.Equal(t, 1.0, sc.scale)

	assert.True(t, sc.handleInput(protocol.MouseButton(30, 40, 1, true, 0)))
	assert.True(t, sc.down)
	assert.Equal(t, 30.0, sc.x)
	assert.Equal(t, 40.0, sc.y)

	sc.handleInput(protocol.MouseButton(30, 40, 1, false, 0))
	assert.False(t, sc.down)

	sc.handleInput(protocol.MouseScroll(0, 0, 0, -2, 0))
	assert.InDelta(t, 0.6, sc.levelValue(), 1e-6)
	for range 40 {
		sc.handleInput(protocol.MouseScroll(0, 0, 0, -1, 0))
	}
	assert.Equal(t, 1.0, sc.levelValue())

	sc.handleInput(protocol.Key(65, 'a', true, 0))
	sc.handleInput(protocol.Key(65, 'a', false, 0))
	assert.Equal(t, 1, sc.keys)

	sc.handleInput(protocol.Focus(false))
	assert.False(t, sc.focused)

	sc.handleInput(protocol.Resize(100, 100, 2, 9))
	assert.Equal(t, 2.0, sc.scale)

	assert.False(t, sc.handleInput(protocol.FrameReady(3)))
}

func TestSceneParamEcho(t *testing.T) {
	sc := newScene(1)

	reply := sc.handleTree(protocol.NewTree("param").Set("id", 0).Set("value", 0.25))
	require.NotNil(t, reply)
	assert.Equal(t, "param", reply.Type)
	assert.Equal(t, int64(0), reply.Int("id", -1))
	assert.InDelta(t, 0.25, reply.Float("value", -1), 1e-9)
	assert.InDelta(t, 0.25, sc.levelValue(), 1e-9)

	reply = sc.handleTree(protocol.NewTree("param").Set("id", 7).Set("value", 3.0))
	require.NotNil(t, reply)
	assert.Equal(t, int64(7), reply.Int("id", -1))
	assert.InDelta(t, 0.25, sc.levelValue(), 1e-9, "other params leave the level alone")

	assert.Nil(t, sc.handleTree(protocol.NewTree("meter").Set("value", 1)))
	assert.Nil(t, sc.handleTree(protocol.NewTree("param").Set("id", 0)))
	assert.Nil(t, sc.handleTree(nil))
}

func TestBlitSwapsRedAndBlue(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = 10, 20, 30, 255
	}

	stride := 12
	dst := make([]byte, stride*2)
	blit(dst, stride, img)

	assert.Equal(t, []byte{30, 20, 10, 255, 30, 20, 10, 255, 0, 0, 0, 0}, dst[:stride])
	assert.Equal(t, []byte{30, 20, 10, 255}, dst[stride:stride+4])
}

func TestBlitStopsAtShortBuffer(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	dst := make([]byte, 16*2)
	assert.NotPanics(t, func() { blit(dst, 16, img) })
}
