package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// RoleConfig binds a role name to a Doxygen tag file and the directory (or
// URL) its HTML output lives under.
type RoleConfig struct {
	TagFile string `mapstructure:"tag_file"`
	RootDir string `mapstructure:"root_dir"`
}

type LinkConfig struct {
	AddFunctionParentheses bool   `mapstructure:"add_function_parentheses"`
	SrcDir                 string `mapstructure:"src_dir"`
}

type IndexConfig struct {
	ContainerKinds []string `mapstructure:"container_kinds"`
}

type DaemonConfig struct {
	ExpirationSeconds int  `mapstructure:"expiration_seconds"`
	Watch             bool `mapstructure:"watch"`
}

type Config struct {
	Roles  map[string]RoleConfig `mapstructure:"roles"`
	Link   LinkConfig            `mapstructure:"link"`
	Index  IndexConfig           `mapstructure:"index"`
	Daemon DaemonConfig          `mapstructure:"daemon"`
}

// RoleNames returns the configured role names, sorted.
func (c *Config) RoleNames() []string {
	names := make([]string, 0, len(c.Roles))
	for name := range c.Roles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// cacheBase returns the base cache directory for doxylink.
// Checks XDG_CACHE_HOME, then ~/.cache, then /tmp/doxylink as fallback.
func cacheBase() string {
	if dir := os.Getenv("XDG_CACHE_HOME"); dir != "" {
		return filepath.Join(dir, "doxylink")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".cache", "doxylink")
	}
	return filepath.Join(os.TempDir(), "doxylink")
}

// DBPath returns the path to the DuckDB database file.
func DBPath() string {
	return filepath.Join(cacheBase(), "db.db")
}

// CASDir returns the path to the content-addressable storage directory.
func CASDir() string {
	return filepath.Join(cacheBase(), "cas")
}

// LogPath returns the path to the daemon's log file.
func LogPath() string {
	return filepath.Join(cacheBase(), "daemon.log")
}

// SocketPath returns the path to the daemon's unix socket.
func SocketPath() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "doxylink", "daemon.sock")
	}
	return filepath.Join(fmt.Sprintf("/run/user/%d", os.Getuid()), "doxylink", "daemon.sock")
}

func InitializeViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("toml")

	viper.AddConfigPath(".")
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		viper.AddConfigPath(filepath.Join(xdg, "doxylink"))
	} else if home, err := os.UserHomeDir(); err == nil {
		viper.AddConfigPath(filepath.Join(home, ".config", "doxylink"))
	}

	SetDefaults(viper.GetViper())

	viper.SetEnvPrefix("DOXYLINK")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}
	return nil
}

func SetDefaults(v *viper.Viper) {
	v.SetDefault("link.add_function_parentheses", true)
	v.SetDefault("link.src_dir", ".")
	v.SetDefault("index.container_kinds", []string{"namespace", "class"})
	v.SetDefault("daemon.expiration_seconds", 600)
	v.SetDefault("daemon.watch", true)
}

// pairToRoleConfigHookFunc accepts the short form of a role,
// polyvox = ["PolyVox.tag", "html/"], alongside the table form.
func pairToRoleConfigHookFunc() mapstructure.DecodeHookFunc {
	return func(f, t reflect.Type, data interface{}) (interface{}, error) {
		if t != reflect.TypeOf(RoleConfig{}) {
			return data, nil
		}
		if f.Kind() != reflect.Slice {
			return data, nil
		}
		v := reflect.ValueOf(data)
		if v.Len() != 2 {
			return nil, fmt.Errorf("role must be [tag_file, root_dir], got %d elements", v.Len())
		}
		pair := make([]string, 2)
		for i := range pair {
			s, ok := v.Index(i).Interface().(string)
			if !ok {
				return nil, fmt.Errorf("role element %d is %T, want string", i, v.Index(i).Interface())
			}
			pair[i] = s
		}
		return RoleConfig{TagFile: pair[0], RootDir: pair[1]}, nil
	}
}

func Load() (*Config, error) {
	if err := InitializeViper(); err != nil {
		return nil, err
	}
	return Decode(viper.AllSettings())
}

// Decode builds a Config from raw settings as produced by viper.AllSettings.
func Decode(settings map[string]interface{}) (*Config, error) {
	var config Config
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: pairToRoleConfigHookFunc(),
		Result:     &config,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Decode(settings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	for name, role := range config.Roles {
		if name == "" || strings.ContainsAny(name, ": ") {
			return nil, fmt.Errorf("invalid role name %q", name)
		}
		if role.TagFile == "" {
			return nil, fmt.Errorf("role %q: tag_file is required", name)
		}
		role.TagFile = expandHome(role.TagFile)
		role.RootDir = expandHome(role.RootDir)
		config.Roles[name] = role
	}
	config.Link.SrcDir = expandHome(config.Link.SrcDir)

	return &config, nil
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path[2:])
	}
	return path
}
