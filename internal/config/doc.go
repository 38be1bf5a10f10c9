// Package config defines the pipeline file schema and its loading rules.
//
// A pipeline file declares the stages refinery runs, the shared
// environment, the optional container image to run stages in, and the
// commit/approval/notify behavior for the post-stage phases. Files may
// be YAML (refinery.yaml) or JSONC (refinery.jsonc); the JSONC form
// uses github.com/tidwall/jsonc to strip comments before parsing with
// the standard encoding/json library.
package config
