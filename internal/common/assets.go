package common

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v2"
)

// AssetConfig is one crypto asset the treasury can pay out
type AssetConfig struct {
	Symbol  string `yaml:"symbol"`
	Network string `yaml:"network"`
}

type AssetsConfig struct {
	Assets []AssetConfig `yaml:"assets"`
}

// Key is the SYMBOL-network form used in logs and lookups
func (a AssetConfig) Key() string {
	return fmt.Sprintf("%s-%s", a.Symbol, a.Network)
}

// LoadAssetConfig reads the payout asset list. Symbols are upper-cased and
// networks lower-cased; a pair listed twice is an error.
func LoadAssetConfig(assetsFile string) ([]AssetConfig, error) {
	assetsPath := assetsFile
	if !filepath.IsAbs(assetsFile) {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		assetsPath = filepath.Join(wd, assetsFile)
	}

	data, err := os.ReadFile(assetsPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", assetsFile, err)
	}
	return ParseAssetConfig(data)
}

func ParseAssetConfig(data []byte) ([]AssetConfig, error) {
	var config AssetsConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("unable to parse asset config: %w", err)
	}
	if len(config.Assets) == 0 {
		return nil, fmt.Errorf("asset config lists no assets")
	}

	seen := make(map[string]bool, len(config.Assets))
	assets := make([]AssetConfig, 0, len(config.Assets))
	for i, asset := range config.Assets {
		asset.Symbol = strings.ToUpper(strings.TrimSpace(asset.Symbol))
		asset.Network = strings.ToLower(strings.TrimSpace(asset.Network))
		if asset.Symbol == "" {
			return nil, fmt.Errorf("asset at index %d missing symbol", i)
		}
		if asset.Network == "" {
			return nil, fmt.Errorf("asset at index %d missing network", i)
		}
		if seen[asset.Key()] {
			return nil, fmt.Errorf("asset %s listed twice", asset.Key())
		}
		seen[asset.Key()] = true
		assets = append(assets, asset)
	}
	return assets, nil
}
