package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/refinery-cli/refinery/internal/model"
)

// fileNames are the pipeline file names probed by Find, in preference
// order. The YAML forms come first; the JSONC forms exist for repos
// that keep commented JSON configuration.
var fileNames = []string{
	"refinery.yaml",
	"refinery.yml",
	"refinery.jsonc",
	"refinery.json",
}

// Find locates the pipeline file in the given directory by probing the
// standard file names. Returns a CLIError with ExitConfigError if none
// exists.
func Find(dir string) (string, error) {
	for _, name := range fileNames {
		path := filepath.Join(dir, name)
		info, err := os.Stat(path)
		if err == nil && !info.IsDir() {
			return path, nil
		}
	}
	return "", model.NewCLIError(model.ExitConfigError,
		fmt.Sprintf("no pipeline file found in %s (expected one of %v); run \"refinery init\" to create one", dir, fileNames))
}

// Load reads, parses, and validates the pipeline file at path. The
// format is chosen by extension: .json/.jsonc are parsed as JSONC
// (comments and trailing commas stripped first), everything else as
// strict YAML where unknown keys are rejected.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, model.WrapCLIError(model.ExitConfigError, "failed to read pipeline file", err)
	}

	var cfg Config
	switch filepath.Ext(path) {
	case ".json", ".jsonc":
		// jsonc.ToJSON replaces comments and trailing commas with
		// whitespace, preserving offsets for error messages.
		if err := json.Unmarshal(jsonc.ToJSON(data), &cfg); err != nil {
			return nil, model.WrapCLIError(model.ExitConfigError,
				fmt.Sprintf("failed to parse %s", filepath.Base(path)), err)
		}
	default:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		// KnownFields makes typos in stage keys loud instead of silently
		// ignored.
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, model.WrapCLIError(model.ExitConfigError,
				fmt.Sprintf("failed to parse %s", filepath.Base(path)), err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, model.WrapCLIError(model.ExitConfigError,
			fmt.Sprintf("invalid pipeline file %s", filepath.Base(path)), err)
	}

	return &cfg, nil
}

// Write serializes a pipeline config to YAML at path. Used by
// "refinery init"; refuses to overwrite unless force is set.
func Write(path string, cfg *Config, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return model.NewCLIError(model.ExitConfigError,
				fmt.Sprintf("%s already exists (use --force to overwrite)", path))
		}
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return model.WrapCLIError(model.ExitGeneralError, "failed to serialize pipeline file", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return model.WrapCLIError(model.ExitGeneralError, "failed to write pipeline file", err)
	}
	return nil
}
