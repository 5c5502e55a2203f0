package credential

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/enterprise-universe/universe-gateway/internal/config"
)

// FileSource reads a YAML credentials file. ${VAR} and ${VAR:default}
// references are expanded like the rest of the configuration.
//
//	apiKey: ${DEFAULT_KEY}
//	stripe: sk_live_xxx
//	klarna:
//	  username: merchant
//	  password: ${KLARNA_PASSWORD}
type FileSource struct {
	Path string
}

func (f *FileSource) Name() string { return "file " + f.Path }

func (f *FileSource) Load(context.Context, *Store) (map[string]string, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("read credentials file: %w", err)
	}
	if info, err := os.Stat(f.Path); err == nil && info.Mode().Perm()&0o077 != 0 {
		warnPermissions(f.Path, info.Mode().Perm())
	}

	var doc map[string]any
	if err := yaml.Unmarshal([]byte(config.ExpandEnv(string(data))), &doc); err != nil {
		return nil, fmt.Errorf("parse credentials file: %w", err)
	}
	return flatten(doc)
}

func warnPermissions(path string, perm fs.FileMode) {
	slog.Warn("credentials file is readable by other users",
		"path", path, "mode", fmt.Sprintf("%04o", perm))
}
