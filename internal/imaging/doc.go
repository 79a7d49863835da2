// Package imaging converts upscaler output into the requested delivery
// format and provides the pure-Go resampler used when AI upscaling is
// disabled. PNG targets are renamed without a re-encode; JPEG and WEBP
// targets are decoded and re-encoded at the requested quality.
package imaging
