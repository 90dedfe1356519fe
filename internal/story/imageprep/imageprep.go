// Package imageprep downsizes and re-encodes a selected image before upload.
package imageprep

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"math"
	"net/http"
	"os"
	"strings"

	"picturebook/internal/domain/story"

	"github.com/sirupsen/logrus"
	"golang.org/x/image/draw"
)

const (
	// MaxSide caps the longer side of an uploaded image.
	MaxSide = 800
	// Quality is the JPEG quality used for re-encoding (0.8).
	Quality = 80
)

// Compress scales img so its longer side is at most MaxSide and re-encodes it as JPEG.
// It never fails: on any decode or encode problem the original payload is returned.
func Compress(ctx context.Context, img story.EncodedImage) story.EncodedImage {
	out, err := compress(ctx, img)
	if err != nil {
		logrus.WithError(err).WithField("mime", img.MIMEType).Warn("Image compression failed, using original")
		return img
	}
	return out
}

func compress(ctx context.Context, img story.EncodedImage) (story.EncodedImage, error) {
	if err := ctx.Err(); err != nil {
		return img, err
	}

	src, _, err := image.Decode(bytes.NewReader(img.Data))
	if err != nil {
		return img, fmt.Errorf("failed to decode image: %w", err)
	}

	b := src.Bounds()
	w, h := Fit(b.Dx(), b.Dy(), MaxSide)

	// JPEG has no alpha channel, so flatten onto white first.
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	if w == b.Dx() && h == b.Dy() {
		draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Over)
	} else {
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	}

	if err := ctx.Err(); err != nil {
		return img, err
	}

	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, dst, &jpeg.Options{Quality: Quality}); err != nil {
		return img, fmt.Errorf("failed to encode jpeg: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"from":      fmt.Sprintf("%dx%d", b.Dx(), b.Dy()),
		"to":        fmt.Sprintf("%dx%d", w, h),
		"bytes_in":  len(img.Data),
		"bytes_out": buf.Len(),
	}).Debug("Compressed image")

	return story.EncodedImage{
		Data:     buf.Bytes(),
		MIMEType: "image/jpeg",
		Width:    w,
		Height:   h,
	}, nil
}

// Fit returns the dimensions of a w×h image scaled so that its longer side is at most
// limit, preserving the aspect ratio. It only ever downsizes.
func Fit(w, h, limit int) (int, int) {
	longer := max(w, h)
	if longer <= limit || longer == 0 {
		return w, h
	}
	scale := float64(limit) / float64(longer)
	nw := max(1, int(math.Round(float64(w)*scale)))
	nh := max(1, int(math.Round(float64(h)*scale)))
	return nw, nh
}

// Load reads an image file from disk, recording its MIME type and intrinsic size.
func Load(path string) (story.EncodedImage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return story.EncodedImage{}, fmt.Errorf("failed to read image: %w", err)
	}

	mime := http.DetectContentType(data)
	if !strings.HasPrefix(mime, "image/") {
		return story.EncodedImage{}, fmt.Errorf("%s is not an image (%s)", path, mime)
	}

	img := story.EncodedImage{Data: data, MIMEType: mime}
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		img.Width = cfg.Width
		img.Height = cfg.Height
	}
	return img, nil
}
