package config

const (
	defaultDataDir            = "~/.local/share/burnish/data"
	defaultLogDir             = "~/.local/share/burnish/logs"
	defaultAPIBind            = "127.0.0.1:7610"
	defaultUpscalerBinary     = "~/.local/share/burnish/tools/realesrgan-ncnn-vulkan"
	defaultModelsDir          = "~/.local/share/burnish/tools/models"
	defaultModel              = "realesrgan-x4plus"
	defaultFileTimeoutSeconds = 300
	defaultScale              = 2
	defaultFormat             = "webp"
	defaultQuality            = 92
	defaultJobListLimit       = 30
	defaultJobListMaxLimit    = 200
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Upscaler: Upscaler{
			Binary:             defaultUpscalerBinary,
			ModelsDir:          defaultModelsDir,
			Model:              defaultModel,
			FileTimeoutSeconds: defaultFileTimeoutSeconds,
			DefaultScale:       defaultScale,
			DefaultFormat:      defaultFormat,
			DefaultQuality:     defaultQuality,
		},
		Jobs: Jobs{
			DefaultLimit: defaultJobListLimit,
			MaxLimit:     defaultJobListMaxLimit,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
