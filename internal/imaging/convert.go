package imaging

import (
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/chai2010/webp"

	"burnish/internal/jobs"
	"burnish/internal/services"
)

// SupportedInputExtensions lists the image extensions the worker enumerates.
var SupportedInputExtensions = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".webp": {},
}

// IsImage reports whether the file name carries a supported image extension.
func IsImage(name string) bool {
	_, ok := SupportedInputExtensions[strings.ToLower(filepath.Ext(name))]
	return ok
}

// WithExt swaps the extension of a path for the given format suffix.
func WithExt(path, ext string) string {
	old := filepath.Ext(path)
	return strings.TrimSuffix(path, old) + "." + ext
}

// Finalize moves the upscaler's temporary PNG into its destination in the
// requested format. PNG is a plain rename; JPEG and WEBP decode the PNG and
// re-encode at the given quality, then remove the temporary file.
func Finalize(tmpPNG, dst, format string, quality int) error {
	if format == jobs.FormatPNG {
		if err := os.Rename(tmpPNG, dst); err != nil {
			return services.Wrap(services.ErrTransient, "convert", "finalize png", "Failed to move output into destination", err)
		}
		return nil
	}

	img, err := decodePNG(tmpPNG)
	if err != nil {
		return err
	}

	out, err := os.Create(dst)
	if err != nil {
		return services.Wrap(services.ErrTransient, "convert", "create destination", "Failed to create output file", err)
	}

	switch format {
	case jobs.FormatJPG:
		err = jpeg.Encode(out, img, &jpeg.Options{Quality: quality})
	case jobs.FormatWebP:
		err = webp.Encode(out, img, &webp.Options{Quality: float32(quality)})
	default:
		out.Close()
		os.Remove(dst)
		return services.Wrap(services.ErrValidation, "convert", "select codec", fmt.Sprintf("unsupported target format %q", format), nil)
	}
	if err != nil {
		out.Close()
		os.Remove(dst)
		return services.Wrap(services.ErrTransient, "convert", "encode "+format, "Failed to encode output image", err)
	}
	if err := out.Close(); err != nil {
		return services.Wrap(services.ErrTransient, "convert", "close destination", "Failed to flush output file", err)
	}

	if err := os.Remove(tmpPNG); err != nil {
		return services.Wrap(services.ErrTransient, "convert", "remove temp", "Failed to remove temporary PNG", err)
	}
	return nil
}

func decodePNG(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "convert", "open temp", "Failed to open upscaler output", err)
	}
	defer file.Close()

	img, err := png.Decode(file)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "convert", "decode png", "Upscaler output is not a valid PNG", err)
	}
	return img, nil
}
