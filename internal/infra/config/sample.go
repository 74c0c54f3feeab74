package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

var durationKeys = map[string]bool{
	"timeout":       true,
	"initial_delay": true,
	"increment":     true,
}

const sampleHeader = `# gotrack configuration
# Every key can also be set through the environment, e.g. GOTRACK_DOWNLOAD_OUT_DIR.
# codec.block_secret must be set (16 bytes) before block-cipher tracks can be decrypted.
`

// Sample renders the default configuration as YAML.
func Sample() ([]byte, error) {
	var doc yaml.Node
	if err := doc.Encode(Default()); err != nil {
		return nil, err
	}
	humanizeDurations(&doc)

	out, err := yaml.Marshal(&doc)
	if err != nil {
		return nil, err
	}
	return append([]byte(sampleHeader), out...), nil
}

// CreateSample writes Sample to path, refusing to replace an existing file
// unless overwrite is set.
func CreateSample(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists at %s (use --overwrite to replace it)", path)
		}
	}

	data, err := Sample()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// humanizeDurations rewrites nanosecond integers under duration keys as "30s".
func humanizeDurations(n *yaml.Node) {
	if n.Kind == yaml.MappingNode {
		for i := 0; i+1 < len(n.Content); i += 2 {
			key, val := n.Content[i], n.Content[i+1]
			if durationKeys[key.Value] && val.Kind == yaml.ScalarNode {
				if ns, err := strconv.ParseInt(val.Value, 10, 64); err == nil {
					val.Value = time.Duration(ns).String()
					val.Tag = "!!str"
				}
			}
		}
	}
	for _, c := range n.Content {
		humanizeDurations(c)
	}
}
