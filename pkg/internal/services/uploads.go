package services

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"path/filepath"
	"strings"

	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// maxImagePixels bounds the decoded size of an image accepted for compression.
const maxImagePixels = 64 << 20

type Attachment struct {
	Name        string `json:"name" validate:"required"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"data" validate:"required"`
}

func (v Attachment) IsImage() bool {
	return strings.HasPrefix(v.ContentType, "image/")
}

// CompressImage scales the image down to fit maxDimension and re-encodes it as JPEG.
// Animated GIFs are left untouched, as JPEG would keep the first frame only.
func CompressImage(file Attachment, maxDimension, quality int) (Attachment, error) {
	if !file.IsImage() || file.ContentType == "image/gif" {
		return file, nil
	}

	config, _, err := image.DecodeConfig(bytes.NewReader(file.Data))
	if err != nil {
		return file, fmt.Errorf("unable to read image header %s: %v", file.Name, err)
	}
	if int64(config.Width)*int64(config.Height) > maxImagePixels {
		return file, fmt.Errorf("image %s is too large to compress: %dx%d", file.Name, config.Width, config.Height)
	}

	src, _, err := image.Decode(bytes.NewReader(file.Data))
	if err != nil {
		return file, fmt.Errorf("unable to decode image %s: %v", file.Name, err)
	}

	bounds := src.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if maxDimension > 0 && (width > maxDimension || height > maxDimension) {
		if width >= height {
			height = max(height*maxDimension/width, 1)
			width = maxDimension
		} else {
			width = max(width*maxDimension/height, 1)
			height = maxDimension
		}
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: quality}); err != nil {
		return file, fmt.Errorf("unable to encode image %s: %v", file.Name, err)
	}

	return Attachment{
		Name:        strings.TrimSuffix(file.Name, filepath.Ext(file.Name)) + ".jpg",
		ContentType: "image/jpeg",
		Data:        buf.Bytes(),
	}, nil
}
