package builtin

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/qiniu/alarmhook/internal/alarm"
	"github.com/qiniu/alarmhook/internal/webhook/transformer"
)

// Slack encodes the batch as one incoming-webhook message, one line per event.
type Slack struct{}

func (Slack) Key() string { return KeySlack }

func (Slack) Transform(events []alarm.Event) (transformer.Payload, error) {
	lines := make([]string, 0, len(events))
	for _, e := range events {
		lines = append(lines, "*"+summary(e)+"* "+e.Message)
	}
	body, err := json.Marshal(map[string]string{"text": strings.Join(lines, "\n")})
	if err != nil {
		return transformer.Payload{}, fmt.Errorf("marshal slack message: %w", err)
	}
	return transformer.Payload{Body: body, ContentType: transformer.ContentTypeJSON}, nil
}

// Teams encodes the batch as an Office 365 connector MessageCard.
type Teams struct{}

type teamsSection struct {
	ActivityTitle string `json:"activityTitle"`
	Text          string `json:"text"`
}

type teamsCard struct {
	Type       string         `json:"@type"`
	Context    string         `json:"@context"`
	ThemeColor string         `json:"themeColor"`
	Summary    string         `json:"summary"`
	Title      string         `json:"title"`
	Sections   []teamsSection `json:"sections"`
}

func (Teams) Key() string { return KeyTeams }

func (Teams) Transform(events []alarm.Event) (transformer.Payload, error) {
	card := teamsCard{
		Type:       "MessageCard",
		Context:    "http://schema.org/extensions",
		ThemeColor: "FF4F6A",
		Summary:    fmt.Sprintf("%d alarm(s) fired", len(events)),
		Title:      fmt.Sprintf("Alarm: %d alarm(s) fired", len(events)),
		Sections:   make([]teamsSection, 0, len(events)),
	}
	for _, e := range events {
		card.Sections = append(card.Sections, teamsSection{ActivityTitle: summary(e), Text: e.Message})
	}
	body, err := json.Marshal(card)
	if err != nil {
		return transformer.Payload{}, fmt.Errorf("marshal teams card: %w", err)
	}
	return transformer.Payload{Body: body, ContentType: transformer.ContentTypeJSON}, nil
}

// summary renders "[SCOPE] name (rule)" leaving out empty parts.
func summary(e alarm.Event) string {
	var b strings.Builder
	b.WriteString("[" + string(e.Scope) + "]")
	if e.Name != "" {
		b.WriteString(" " + e.Name)
	}
	if e.RuleName != "" {
		b.WriteString(" (" + e.RuleName + ")")
	}
	return b.String()
}
