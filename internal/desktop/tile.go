// Package desktop implements the tile-based screen diff encoder (C5):
// dirty-tile diffing against the previous full frame, BGRA→RGB conversion,
// JPEG encoding, and keyframe policy.
package desktop

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"

	"github.com/nodecastle/edgeagent/internal/protocol"
)

// TileSize is the fixed cell size; cells at the right/bottom edges are
// clipped to the screen dimensions.
const TileSize = 64

// Tile is one encoded screen update, ready to wrap in a DESKTOP_FRAME frame.
type Tile struct {
	X, Y, W, H uint16
	Data       []byte
	Flags      uint8
}

// Encoder holds per-session diff state: the previous full raw frame, the
// active JPEG quality, and the pending-keyframe flag.
type Encoder struct {
	width, height int
	quality       int
	prevFrame     []byte
	prevStride    int
	forceKeyframe bool
}

// NewEncoder creates an encoder for a screen of the given dimensions. The
// first call to EncodeFrame always emits a full keyframe.
func NewEncoder(width, height, quality int) *Encoder {
	return &Encoder{
		width:         width,
		height:        height,
		quality:       clampQuality(quality),
		forceKeyframe: true,
	}
}

func clampQuality(q int) int {
	if q < 1 {
		return 1
	}
	if q > 100 {
		return 100
	}
	return q
}

// SetQuality updates the JPEG quality used for subsequent encodes, clamped to [1,100].
func (e *Encoder) SetQuality(q int) { e.quality = clampQuality(q) }

// RequestKeyframe forces the next EncodeFrame call to emit every tile.
func (e *Encoder) RequestKeyframe() { e.forceKeyframe = true }

func (e *Encoder) tilesX() int { return (e.width + TileSize - 1) / TileSize }
func (e *Encoder) tilesY() int { return (e.height + TileSize - 1) / TileSize }

// EncodeFrame diffs buf (a BGRA frame with the given row stride) against the
// previous frame and returns one Tile per changed cell (or every cell, on a
// keyframe).
func (e *Encoder) EncodeFrame(buf []byte, stride int) ([]Tile, error) {
	isKeyframe := e.forceKeyframe || len(e.prevFrame) == 0
	e.forceKeyframe = false

	var tiles []Tile
	for ty := 0; ty < e.tilesY(); ty++ {
		for tx := 0; tx < e.tilesX(); tx++ {
			x := tx * TileSize
			y := ty * TileSize
			w := minInt(TileSize, e.width-x)
			h := minInt(TileSize, e.height-y)

			if !isKeyframe && len(e.prevFrame) > 0 && !e.tileChanged(buf, stride, x, y, w, h) {
				continue
			}

			rgb := extractTileRGB(buf, stride, x, y, w, h)
			encoded, err := encodeJPEG(rgb, w, h, e.quality)
			if err != nil {
				return nil, err
			}
			flags := uint8(0)
			if isKeyframe {
				flags |= protocol.FlagKeyframe
			}
			tiles = append(tiles, Tile{
				X: uint16(x), Y: uint16(y), W: uint16(w), H: uint16(h),
				Data: encoded, Flags: flags,
			})
		}
	}

	e.prevFrame = append([]byte(nil), buf...)
	e.prevStride = stride
	return tiles, nil
}

// tileChanged compares the tile region of buf (using stride) against the
// same region of prevFrame (using the stride recorded when it was stored —
// the two frames are not assumed to share a stride).
func (e *Encoder) tileChanged(buf []byte, stride, x, y, w, h int) bool {
	for row := 0; row < h; row++ {
		newOff := (y+row)*stride + x*4
		oldOff := (y+row)*e.prevStride + x*4
		newRow := buf[newOff : newOff+w*4]
		oldRow := e.prevFrame[oldOff : oldOff+w*4]
		if !bytes.Equal(newRow, oldRow) {
			return true
		}
	}
	return false
}

// extractTileRGB pulls an RGB buffer (dropping alpha) out of a BGRA frame.
func extractTileRGB(buf []byte, stride, x, y, w, h int) []byte {
	out := make([]byte, 0, w*h*3)
	for row := 0; row < h; row++ {
		rowOff := (y+row)*stride + x*4
		for col := 0; col < w; col++ {
			off := rowOff + col*4
			b := buf[off]
			g := buf[off+1]
			r := buf[off+2]
			out = append(out, r, g, b)
		}
	}
	return out
}

func encodeJPEG(rgb []byte, w, h, quality int) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for row := 0; row < h; row++ {
		for col := 0; col < w; col++ {
			i := (row*w + col) * 3
			img.Set(col, row, color.RGBA{R: rgb[i], G: rgb[i+1], B: rgb[i+2], A: 0xff})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
