// Package upscaler wraps the Real-ESRGAN ncnn executable behind a small
// per-file contract: one subprocess per image, a PNG output path, exit code
// zero plus output presence means success, anything else is a failure for
// that file only.
package upscaler
