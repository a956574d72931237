package transform

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed languages.yaml
var builtinLanguages []byte

// Languages maps language codes to display names.
type Languages map[string]string

// LoadLanguages parses the built-in catalog and merges an optional override
// file on top of it.
func LoadLanguages(overridePath string) (Languages, error) {
	langs := Languages{}
	if err := yaml.Unmarshal(builtinLanguages, &langs); err != nil {
		return nil, fmt.Errorf("parse built-in languages: %w", err)
	}
	if overridePath == "" {
		return langs, nil
	}

	data, err := os.ReadFile(overridePath)
	if err != nil {
		return nil, fmt.Errorf("read languages file %s: %w", overridePath, err)
	}
	extra := Languages{}
	if err := yaml.Unmarshal(data, &extra); err != nil {
		return nil, fmt.Errorf("parse languages file %s: %w", overridePath, err)
	}
	for code, name := range extra {
		langs[code] = name
	}
	return langs, nil
}

// Name returns the display name for code, or code itself when unknown.
func (l Languages) Name(code string) string {
	if name, ok := l[code]; ok && name != "" {
		return name
	}
	return code
}
