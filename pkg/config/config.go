// Copyright 2026 forkfuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package config loads strict JSON or YAML configuration files into structs.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/forkfuzz/forkfuzz/pkg/osutil"
	"sigs.k8s.io/yaml"
)

// LoadFile loads filename into cfg. Files with .yaml/.yml extensions are parsed as YAML,
// everything else as JSON with # line comments.
func LoadFile(filename string, cfg any) error {
	if filename == "" {
		return fmt.Errorf("no config file specified")
	}
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	switch filepath.Ext(filename) {
	case ".yaml", ".yml":
		return LoadYAML(data, cfg)
	}
	return LoadData(data, cfg)
}

var commentRe = regexp.MustCompile(`(^|\n)\s*#[^\n]*`)

// LoadData parses JSON data into cfg. Unknown fields are an error.
func LoadData(data []byte, cfg any) error {
	data = commentRe.ReplaceAll(data, nil)
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// LoadYAML converts YAML data to JSON and parses it with the same strictness as LoadData.
func LoadYAML(data []byte, cfg any) error {
	js, err := yaml.YAMLToJSON(data)
	if err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return LoadData(js, cfg)
}

func SaveFile(filename string, cfg any) error {
	data, err := json.MarshalIndent(cfg, "", "\t")
	if err != nil {
		return err
	}
	return osutil.WriteFile(filename, data)
}
