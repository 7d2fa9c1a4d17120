package db

import (
	"fmt"
	"os"
	"strconv"

	"github.com/goccy/go-yaml"
)

// presetFile mirrors the table presets file:
//
//	tables:
//	  "1":
//	    cacheBytes: 67108864
//	    bloomFilterBits: 10
//	    compress: false
type presetFile struct {
	Tables map[string]preset `yaml:"tables"`
}

type preset struct {
	CacheBytes       *uint64 `yaml:"cacheBytes"`
	BlockBytes       *uint64 `yaml:"blockBytes"`
	WriteBufferBytes *uint64 `yaml:"writeBufferBytes"`
	BloomFilterBits  *uint64 `yaml:"bloomFilterBits"`
	Compress         *bool   `yaml:"compress"`
}

func (p preset) config() TableConfig {
	cfg := DefaultTableConfig()
	if p.CacheBytes != nil {
		cfg.CacheBytes = *p.CacheBytes
	}
	if p.BlockBytes != nil {
		cfg.BlockBytes = *p.BlockBytes
	}
	if p.WriteBufferBytes != nil {
		cfg.WriteBufferBytes = *p.WriteBufferBytes
	}
	if p.BloomFilterBits != nil {
		cfg.BloomFilterBits = *p.BloomFilterBits
	}
	if p.Compress != nil {
		if *p.Compress {
			cfg.Compression = CompressionOn
		} else {
			cfg.Compression = CompressionOff
		}
	}
	return cfg
}

// LoadTableConfigs reads a YAML presets file and returns the configuration of every
// table listed in it. Fields that are not set keep the engine default.
func LoadTableConfigs(path string) (map[uint32]TableConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading table presets: %w", err)
	}
	return ParseTableConfigs(data)
}

// ParseTableConfigs parses the YAML presets format used by LoadTableConfigs
func ParseTableConfigs(data []byte) (map[uint32]TableConfig, error) {
	var file presetFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing table presets: %w", err)
	}

	out := make(map[uint32]TableConfig, len(file.Tables))
	for key, p := range file.Tables {
		index, err := strconv.ParseUint(key, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid table index %q in presets: %w", key, err)
		}
		out[uint32(index)] = p.config()
	}
	return out, nil
}
