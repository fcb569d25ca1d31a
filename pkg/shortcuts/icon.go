// pkg/shortcuts/icon.go - PNG to ICO conversion for shortcut icons.
//
// The ICO container allows PNG-compressed images since Windows Vista, so a
// single 256x256 PNG entry covers every icon size Explorer asks for.

package shortcuts

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"image/png"
	"os"

	"golang.org/x/image/draw"
)

const iconSize = 256

// iconDir is the ICONDIR header of an .ico file.
type iconDir struct {
	Reserved uint16
	Type     uint16 // 1 = icon
	Count    uint16
}

// iconDirEntry is one ICONDIRENTRY record.
type iconDirEntry struct {
	Width      uint8 // 0 means 256
	Height     uint8
	ColorCount uint8
	Reserved   uint8
	Planes     uint16
	BitCount   uint16
	BytesInRes uint32
	ImageOfs   uint32
}

// ConvertPNGToICO decodes a PNG, scales it to the icon size and writes a
// single-image ICO file with an embedded PNG payload.
func ConvertPNGToICO(pngPath, icoPath string) error {
	f, err := os.Open(pngPath)
	if err != nil {
		return fmt.Errorf("failed to open icon source: %w", err)
	}
	defer f.Close()

	src, err := png.Decode(f)
	if err != nil {
		return fmt.Errorf("failed to decode PNG %s: %w", pngPath, err)
	}

	scaled := scaleIcon(src)

	var payload bytes.Buffer
	if err := png.Encode(&payload, scaled); err != nil {
		return fmt.Errorf("failed to re-encode icon PNG: %w", err)
	}

	var out bytes.Buffer
	dir := iconDir{Type: 1, Count: 1}
	entry := iconDirEntry{
		Width:      0, // 256
		Height:     0,
		Planes:     1,
		BitCount:   32,
		BytesInRes: uint32(payload.Len()),
	}
	entry.ImageOfs = uint32(binary.Size(dir) + binary.Size(entry))
	if err := binary.Write(&out, binary.LittleEndian, dir); err != nil {
		return err
	}
	if err := binary.Write(&out, binary.LittleEndian, entry); err != nil {
		return err
	}
	out.Write(payload.Bytes())

	if err := os.WriteFile(icoPath, out.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write ICO file: %w", err)
	}
	return nil
}

// scaleIcon resizes the source to iconSize x iconSize unless it already fits.
func scaleIcon(src image.Image) image.Image {
	bounds := src.Bounds()
	if bounds.Dx() == iconSize && bounds.Dy() == iconSize {
		return src
	}
	dst := image.NewRGBA(image.Rect(0, 0, iconSize, iconSize))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)
	return dst
}
