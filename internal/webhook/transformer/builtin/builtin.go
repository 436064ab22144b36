// Package builtin registers the compiled-in receiver families. Import it for
// its side effects:
//
//	import _ "github.com/qiniu/alarmhook/internal/webhook/transformer/builtin"
package builtin

import "github.com/qiniu/alarmhook/internal/webhook/transformer"

const (
	KeyDefault      = "default"
	KeyAlertmanager = "alertmanager"
	KeySlack        = "slack"
	KeyTeams        = "teams"
)

func init() {
	for _, t := range All() {
		transformer.Register(t)
	}
}

// All returns a fresh instance of every builtin transformer.
func All() []transformer.Transformer {
	return []transformer.Transformer{
		Default{},
		Alertmanager{},
		Slack{},
		Teams{},
	}
}
