package imaging

import (
	"image"
	"image/png"
	"os"

	"golang.org/x/image/draw"

	"burnish/internal/services"

	// Input decoders for the extensions the worker enumerates.
	_ "image/jpeg"

	_ "golang.org/x/image/webp"
)

// Resample scales an input image by the given integer factor with CatmullRom
// interpolation and writes the result as a PNG, matching the output contract
// of the external tool. This is the path taken when a job disables AI
// upscaling.
func Resample(inputPath, outputPNG string, scale int) error {
	file, err := os.Open(inputPath)
	if err != nil {
		return services.Wrap(services.ErrTransient, "resample", "open input", "Failed to open source image", err)
	}
	src, _, err := image.Decode(file)
	file.Close()
	if err != nil {
		return services.Wrap(services.ErrTransient, "resample", "decode input", "Source image could not be decoded", err)
	}

	if scale < 1 {
		scale = 1
	}
	bounds := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, bounds.Dx()*scale, bounds.Dy()*scale))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)

	out, err := os.Create(outputPNG)
	if err != nil {
		return services.Wrap(services.ErrTransient, "resample", "create output", "Failed to create output file", err)
	}
	if err := png.Encode(out, dst); err != nil {
		out.Close()
		os.Remove(outputPNG)
		return services.Wrap(services.ErrTransient, "resample", "encode output", "Failed to encode resampled image", err)
	}
	return out.Close()
}
