// Package source loads webhook targets from a YAML file or from PostgreSQL.
package source

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/qiniu/alarmhook/internal/webhook"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// DefaultGroup receives the URLs listed under the plain "webhooks" key.
const DefaultGroup = "default"

// fileConfig is the layout of the targets file:
//
//	webhooks:                 # shorthand for the "default" group
//	  - http://127.0.0.1/notify
//	remoteEndpoints:          # group key -> urls, order is kept
//	  slack:
//	    - https://hooks.slack.com/services/x
type fileConfig struct {
	Webhooks        []string        `yaml:"webhooks"`
	RemoteEndpoints webhook.Targets `yaml:"remoteEndpoints"`
}

// LoadFile reads webhook targets from path. A missing file yields empty
// targets so the process can start without any receiver configured.
func LoadFile(path string) (webhook.Targets, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.Warn().Str("path", path).Msg("webhook targets file not found, no webhook configured")
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read webhook targets file %s: %w", path, err)
	}
	targets, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse webhook targets file %s: %w", path, err)
	}
	log.Info().
		Str("path", path).
		Int("groups", len(targets)).
		Int("urls", targets.Len()).
		Msg("webhook targets loaded")
	return targets, nil
}

// Parse decodes the targets document.
func Parse(data []byte) (webhook.Targets, error) {
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, err
	}
	var targets webhook.Targets
	if len(fc.Webhooks) > 0 {
		targets.Add(DefaultGroup, fc.Webhooks...)
	}
	return webhook.Merge(targets, fc.RemoteEndpoints), nil
}
