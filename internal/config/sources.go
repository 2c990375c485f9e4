package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Source names the pipeline knows how to scan.
const (
	SourceSystem   = "system"
	SourceSecurity = "security"
	SourceSysmon   = "sysmon"
)

// Sources is the source layout file: which exported log file feeds which
// named source. Its absence is a startup precondition failure, the same
// class as a missing .env.
type Sources struct {
	Paths     map[string]string `yaml:"sources"`
	BatchSize int               `yaml:"batch_size"`
}

func LoadSources(path string) (Sources, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Sources{}, fmt.Errorf("read sources config: %w", err)
	}
	var s Sources
	if err := yaml.Unmarshal(b, &s); err != nil {
		return Sources{}, fmt.Errorf("parse sources config: %w", err)
	}
	if len(s.Paths) == 0 {
		return Sources{}, fmt.Errorf("sources config %s names no sources", path)
	}
	if s.BatchSize <= 0 {
		s.BatchSize = 64
	}
	return s, nil
}
