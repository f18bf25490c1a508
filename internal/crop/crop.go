// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Embedscope Contributors

// Package crop renders the gallery thumbnails served by the fixture backend:
// padded bounding-box crops of source images, or a class-tinted placeholder
// when the source image is unavailable.
package crop

import (
	"bytes"
	"hash/fnv"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	_ "image/png"
	"os"

	esErr "github.com/embedscope/embedscope/pkg/errors"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/nfnt/resize"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
)

const (
	// Padding is added around the bounding box on every side.
	Padding = 10
	// MinSize is the smallest edge of a rendered crop.
	MinSize = 64
	// Quality is the JPEG quality of every rendered image.
	Quality = 90

	checkerCell = 8
)

// FromFile decodes the image at path and returns the JPEG crop of bbox.
func FromFile(path string, bbox []float64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, esErr.Wrap(err, esErr.CodeServerInternalFailure, "opening source image", esErr.FieldPath(path))
	}
	defer func() { _ = f.Close() }()

	src, _, err := image.Decode(f)
	if err != nil {
		return nil, esErr.Wrap(err, esErr.CodeServerInternalFailure, "decoding source image", esErr.FieldPath(path))
	}
	img, err := Extract(src, bbox)
	if err != nil {
		return nil, err
	}
	return Encode(img)
}

// Extract cuts the COCO bbox [x, y, width, height] out of src with Padding on
// each side, clamped to the image bounds. Crops smaller than MinSize in
// either dimension are scaled to MinSize x MinSize.
func Extract(src image.Image, bbox []float64) (image.Image, error) {
	if len(bbox) != 4 {
		return nil, esErr.New(esErr.CodeServerRequestInvalid, "bbox must have 4 values", esErr.Field("len", len(bbox)))
	}
	x, y, w, h := int(bbox[0]), int(bbox[1]), int(bbox[2]), int(bbox[3])

	b := src.Bounds()
	r := image.Rect(
		max(b.Min.X, b.Min.X+x-Padding),
		max(b.Min.Y, b.Min.Y+y-Padding),
		min(b.Max.X, b.Min.X+x+w+Padding),
		min(b.Max.Y, b.Min.Y+y+h+Padding),
	)
	if r.Empty() {
		return nil, esErr.New(esErr.CodeServerRequestInvalid, "bbox lies outside the image",
			esErr.Field("bbox", bbox))
	}

	cropped := subImage(src, r)
	if r.Dx() < MinSize || r.Dy() < MinSize {
		cropped = resize.Resize(MinSize, MinSize, cropped, resize.Bicubic)
	}
	return cropped, nil
}

// Placeholder renders a MinSize checkerboard tile. The hue is derived from
// class so tiles of one class look alike; an empty class renders grey.
func Placeholder(class string) ([]byte, error) {
	base, light := color.Color(color.Gray{Y: 128}), color.Color(color.Gray{Y: 160})
	if class != "" {
		h := fnv.New32a()
		_, _ = h.Write([]byte(class))
		hue := float64(h.Sum32() % 360)
		base = colorful.Hsv(hue, 0.45, 0.5)
		light = colorful.Hsv(hue, 0.45, 0.65)
	}

	img := image.NewRGBA(image.Rect(0, 0, MinSize, MinSize))
	draw.Draw(img, img.Bounds(), image.NewUniform(base), image.Point{}, draw.Src)
	for i := 0; i < MinSize; i += checkerCell {
		for j := 0; j < MinSize; j += checkerCell {
			if (i/checkerCell+j/checkerCell)%2 == 1 {
				cell := image.Rect(j, i, j+checkerCell, i+checkerCell)
				draw.Draw(img, cell, image.NewUniform(light), image.Point{}, draw.Src)
			}
		}
	}
	return Encode(img)
}

// Encode writes img as a JPEG at Quality.
func Encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: Quality}); err != nil {
		return nil, esErr.Wrap(err, esErr.CodeServerInternalFailure, "encoding jpeg")
	}
	return buf.Bytes(), nil
}

func subImage(src image.Image, r image.Rectangle) image.Image {
	if s, ok := src.(interface {
		SubImage(image.Rectangle) image.Image
	}); ok {
		return s.SubImage(r)
	}
	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(dst, dst.Bounds(), src, r.Min, draw.Src)
	return dst
}
