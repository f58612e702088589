// Package econfig is Embranch's layered configuration loader: flags
// beat environment variables, which beat the project's config.yaml,
// which beat built-in defaults. This mirrors the teacher's
// internal/config viper wiring (cmd/bd/config.go's per-command
// viper.New() + SetConfigType("yaml")), generalized into one loader
// covering every environment variable the external interface names.
package econfig

import (
	"strconv"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/embranch/embranch/internal/manifest"
)

// Config is the fully resolved configuration for one Embranch process.
type Config struct {
	DoltRepositoryPath  string
	DoltRemoteURL       string
	DoltExecutablePath  string
	DoltRemoteName      string
	DoltCommandTimeout  time.Duration

	DMMSDataPath              string
	ChromaDataPath            string
	DMMSUseManifest           bool
	DMMSInitMode              manifest.InitMode
	DMMSProjectRoot           string
	DMMSAutoDetectProjectRoot bool

	EnableLogging bool
	LogLevel      string
	LogFileName   string
}

// defaults holds the built-in fallback values, lowest in the
// precedence chain (flags > env > yaml > defaults).
var defaults = map[string]any{
	"dolt.repository_path": "",
	"dolt.remote_url":      "",
	"dolt.executable_path": "dolt",
	"dolt.remote_name":     "origin",
	"dolt.command_timeout": 60,

	"dmms.data_path":                 "",
	"chroma.data_path":               "",
	"dmms.use_manifest":              true,
	"dmms.init_mode":                 "auto",
	"dmms.project_root":              "",
	"dmms.auto_detect_project_root":  true,

	"enable_logging": true,
	"log_level":      "info",
	"log_file_name":  "",
}

// Load builds a viper instance layering, from lowest to highest
// precedence: defaults, a project-local config.yaml (if configFile is
// non-empty and exists), recognized environment variables, then the
// flags in flags (when non-nil), bound with viper's BindPFlags.
func Load(configFile string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	bindEnv(v, "dolt.repository_path", "DOLT_REPOSITORY_PATH")
	bindEnv(v, "dolt.remote_url", "DOLT_REMOTE_URL")
	bindEnv(v, "dolt.executable_path", "DOLT_EXECUTABLE_PATH")
	bindEnv(v, "dolt.remote_name", "DOLT_REMOTE_NAME")
	bindEnv(v, "dolt.command_timeout", "DOLT_COMMAND_TIMEOUT")
	bindEnv(v, "dmms.data_path", "DMMS_DATA_PATH")
	bindEnv(v, "chroma.data_path", "CHROMA_DATA_PATH")
	bindEnv(v, "dmms.use_manifest", "DMMS_USE_MANIFEST")
	bindEnv(v, "dmms.init_mode", "DMMS_INIT_MODE")
	bindEnv(v, "dmms.project_root", "DMMS_PROJECT_ROOT")
	bindEnv(v, "dmms.auto_detect_project_root", "DMMS_AUTO_DETECT_PROJECT_ROOT")
	bindEnv(v, "enable_logging", "ENABLE_LOGGING")
	bindEnv(v, "log_level", "LOG_LEVEL")
	bindEnv(v, "log_file_name", "LOG_FILE_NAME")

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, err
			}
		}
	}

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, err
		}
	}

	cfg := &Config{
		DoltRepositoryPath:        v.GetString("dolt.repository_path"),
		DoltRemoteURL:             v.GetString("dolt.remote_url"),
		DoltExecutablePath:        v.GetString("dolt.executable_path"),
		DoltRemoteName:            v.GetString("dolt.remote_name"),
		DoltCommandTimeout:        time.Duration(v.GetInt("dolt.command_timeout")) * time.Second,
		DMMSDataPath:              v.GetString("dmms.data_path"),
		ChromaDataPath:            v.GetString("chroma.data_path"),
		DMMSUseManifest:           v.GetBool("dmms.use_manifest"),
		DMMSInitMode:              manifest.InitMode(v.GetString("dmms.init_mode")),
		DMMSProjectRoot:           v.GetString("dmms.project_root"),
		DMMSAutoDetectProjectRoot: v.GetBool("dmms.auto_detect_project_root"),
		EnableLogging:             v.GetBool("enable_logging"),
		LogLevel:                  v.GetString("log_level"),
		LogFileName:               v.GetString("log_file_name"),
	}
	return cfg, nil
}

func bindEnv(v *viper.Viper, key, env string) {
	_ = v.BindEnv(key, env)
}

// ParseBool is a small helper for flags/env values that viper itself
// would accept but that callers sometimes need to parse by hand (e.g.
// validating a raw DMMS_USE_MANIFEST string before it reaches viper).
func ParseBool(s string, fallback bool) bool {
	if s == "" {
		return fallback
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return fallback
	}
	return b
}
