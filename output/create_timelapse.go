package output

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/icza/mjpeg"
)

// CreateTimelapse stitches encoded NDVI frames, oldest first, into an MJPEG
// AVI. Every frame must share the first frame's dimensions.
func CreateTimelapse(frames [][]byte, outputPath string, fps int32) (string, error) {
	if len(frames) == 0 {
		return "", errors.New("timelapse needs at least one frame")
	}
	if fps <= 0 {
		fps = 2
	}
	if !strings.HasSuffix(outputPath, ".avi") {
		outputPath += ".avi"
	}

	first, _, err := image.Decode(bytes.NewReader(frames[0]))
	if err != nil {
		return "", fmt.Errorf("failed to decode frame 0: %w", err)
	}
	bounds := first.Bounds()

	if err := os.MkdirAll(filepath.Dir(outputPath), os.ModePerm); err != nil {
		return "", fmt.Errorf("failed to create output folder: %w", err)
	}
	writer, err := mjpeg.New(outputPath, int32(bounds.Dx()), int32(bounds.Dy()), fps)
	if err != nil {
		return "", err
	}
	defer writer.Close()

	for i, frame := range frames {
		img := first
		if i > 0 {
			img, _, err = image.Decode(bytes.NewReader(frame))
			if err != nil {
				return "", fmt.Errorf("failed to decode frame %d: %w", i, err)
			}
		}
		if img.Bounds().Dx() != bounds.Dx() || img.Bounds().Dy() != bounds.Dy() {
			return "", fmt.Errorf("frame %d is %dx%d, want %dx%d", i, img.Bounds().Dx(), img.Bounds().Dy(), bounds.Dx(), bounds.Dy())
		}

		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
			return "", err
		}
		if err := writer.AddFrame(buf.Bytes()); err != nil {
			return "", err
		}
	}

	return outputPath, nil
}
