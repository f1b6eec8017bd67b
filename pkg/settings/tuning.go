package settings

import (
	"log"
	"os"
	"strconv"
)

// Tuning holds the environment-driven knobs that deployment scripts set
// per board. They are read once at startup, after godotenv has loaded any
// .env file.
type Tuning struct {
	VideoDir        string
	SettingsFile    string
	ShaderPath      string
	DisableKeystone bool
	AdaptiveDecode  bool
	ShowTiming      bool
	SyncFromS3      bool
	S3Bucket        string
	S3Prefix        string
}

// TuningFromEnv reads all knobs, logging any that deviate from defaults.
func TuningFromEnv() Tuning {
	t := Tuning{
		VideoDir:       envOr("PICKLE_VIDEO_DIR", "videos"),
		SettingsFile:   envOr("PICKLE_SETTINGS", "settings.json"),
		ShaderPath:     envOr("PICKLE_SHADER", "shaders/keystone.comp.spv"),
		AdaptiveDecode: envBool("PICKLE_ADAPTIVE_DECODE", true),
		ShowTiming:     envBool("PICKLE_SHOW_TIMING", false),
		S3Bucket:       os.Getenv("PICKLE_S3_BUCKET"),
		S3Prefix:       envOr("PICKLE_S3_PREFIX", "videos/"),
	}
	t.DisableKeystone = envBool("PICKLE_DISABLE_KEYSTONE", false)
	t.SyncFromS3 = t.S3Bucket != ""

	if t.DisableKeystone {
		log.Printf("settings: keystone correction disabled by environment")
	}
	if t.SyncFromS3 {
		log.Printf("settings: S3 sync enabled (bucket %s)", t.S3Bucket)
	}
	return t
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("settings: bad boolean %s=%q, using %v", key, v, fallback)
		return fallback
	}
	return b
}
