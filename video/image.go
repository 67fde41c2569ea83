package video

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Image is a packed 24-bit RGB frame. Pixel (x, y) lives at
// Bytes[(y*Width+x)*3]. Methods mutate the shared byte slice, so a copy of
// the struct still refers to the same frame.
type Image struct {
	Width  int
	Height int
	Bytes  []uint8
}

func NewImage(width int, height int) Image {
	return Image{
		Width:  width,
		Height: height,
		Bytes:  make([]uint8, width*height*3),
	}
}

func ImageFromBytes(width int, height int, bytes []uint8) Image {
	return Image{
		Width:  width,
		Height: height,
		Bytes:  bytes,
	}
}

func (im Image) ColorModel() color.Model {
	return color.RGBAModel
}

func (im Image) Bounds() image.Rectangle {
	return image.Rect(0, 0, im.Width, im.Height)
}

func (im Image) At(x int, y int) color.Color {
	rgb := im.GetRGB(x, y)
	return color.RGBA{R: rgb[0], G: rgb[1], B: rgb[2], A: 255}
}

func (im Image) Set(x int, y int, c color.Color) {
	rgba := color.RGBAModel.Convert(c).(color.RGBA)
	im.SetRGB(x, y, [3]uint8{rgba.R, rgba.G, rgba.B})
}

func (im Image) GetRGB(x int, y int) [3]uint8 {
	if x < 0 || x >= im.Width || y < 0 || y >= im.Height {
		return [3]uint8{}
	}
	off := (y*im.Width + x) * 3
	return [3]uint8{im.Bytes[off], im.Bytes[off+1], im.Bytes[off+2]}
}

func (im Image) SetRGB(x int, y int, c [3]uint8) {
	if x < 0 || x >= im.Width || y < 0 || y >= im.Height {
		return
	}
	off := (y*im.Width + x) * 3
	im.Bytes[off] = c[0]
	im.Bytes[off+1] = c[1]
	im.Bytes[off+2] = c[2]
}

func (im Image) Copy() Image {
	dup := make([]uint8, len(im.Bytes))
	copy(dup, im.Bytes)
	return ImageFromBytes(im.Width, im.Height, dup)
}

// Crop returns a new frame holding the pixels inside the given box. The box
// is clipped to the frame first.
func (im Image) Crop(left int, top int, right int, bottom int) Image {
	if left < 0 {
		left = 0
	}
	if top < 0 {
		top = 0
	}
	if right > im.Width {
		right = im.Width
	}
	if bottom > im.Height {
		bottom = im.Height
	}
	if right < left {
		right = left
	}
	if bottom < top {
		bottom = top
	}

	out := NewImage(right-left, bottom-top)
	for y := top; y < bottom; y++ {
		srcOff := (y*im.Width + left) * 3
		dstOff := (y - top) * out.Width * 3
		copy(out.Bytes[dstOff:dstOff+out.Width*3], im.Bytes[srcOff:srcOff+out.Width*3])
	}
	return out
}

func (im Image) FillRectangle(left int, top int, right int, bottom int, c [3]uint8) {
	for y := top; y < bottom; y++ {
		for x := left; x < right; x++ {
			im.SetRGB(x, y, c)
		}
	}
}

// DrawRectangle draws a box outline of the given stroke width. Parts of the
// outline outside the frame are dropped.
func (im Image) DrawRectangle(left int, top int, right int, bottom int, width int, c [3]uint8) {
	im.FillRectangle(left-width, top-width, right+width, top, c)
	im.FillRectangle(left-width, bottom, right+width, bottom+width, c)
	im.FillRectangle(left-width, top, left, bottom, c)
	im.FillRectangle(right, top, right+width, bottom, c)
}

func (im Image) DrawImage(left int, top int, other Image) {
	for y := 0; y < other.Height; y++ {
		for x := 0; x < other.Width; x++ {
			im.SetRGB(left+x, top+y, other.GetRGB(x, y))
		}
	}
}

// DrawText renders label with the basic 7x13 face. (x, y) is the baseline
// origin of the first glyph.
func (im Image) DrawText(x int, y int, label string, c [3]uint8) {
	d := font.Drawer{
		Dst:  im,
		Src:  image.NewUniform(color.RGBA{R: c[0], G: c[1], B: c[2], A: 255}),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(label)
}

// TextWidth reports the advance of label under the basic 7x13 face.
func TextWidth(label string) int {
	return font.MeasureString(basicfont.Face7x13, label).Ceil()
}

func (im Image) AsJPG() ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, im, &jpeg.Options{Quality: 90}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
