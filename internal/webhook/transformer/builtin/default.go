package builtin

import (
	"encoding/json"
	"fmt"

	"github.com/qiniu/alarmhook/internal/alarm"
	"github.com/qiniu/alarmhook/internal/webhook/transformer"
)

// alarmMessage is the element of the default webhook body.
type alarmMessage struct {
	ScopeID      int    `json:"scopeId"`
	Scope        string `json:"scope"`
	Name         string `json:"name"`
	ID0          string `json:"id0"`
	ID1          string `json:"id1"`
	RuleName     string `json:"ruleName"`
	AlarmMessage string `json:"alarmMessage"`
	StartTime    int64  `json:"startTime"` // epoch millis
}

// Default encodes the batch as a JSON array of alarm messages.
type Default struct{}

func (Default) Key() string { return KeyDefault }

func (Default) Transform(events []alarm.Event) (transformer.Payload, error) {
	msgs := make([]alarmMessage, 0, len(events))
	for _, e := range events {
		var start int64
		if !e.StartTime.IsZero() {
			start = e.StartTime.UnixMilli()
		}
		msgs = append(msgs, alarmMessage{
			ScopeID:      e.Scope.ID(),
			Scope:        string(e.Scope),
			Name:         e.Name,
			ID0:          e.ID0,
			ID1:          e.ID1,
			RuleName:     e.RuleName,
			AlarmMessage: e.Message,
			StartTime:    start,
		})
	}
	body, err := json.Marshal(msgs)
	if err != nil {
		return transformer.Payload{}, fmt.Errorf("marshal alarm messages: %w", err)
	}
	return transformer.Payload{Body: body, ContentType: transformer.ContentTypeJSON}, nil
}
