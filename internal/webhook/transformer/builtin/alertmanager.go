package builtin

import (
	"encoding/json"
	"fmt"

	"github.com/prometheus/common/model"
	"github.com/qiniu/alarmhook/internal/alarm"
	"github.com/qiniu/alarmhook/internal/webhook/transformer"
)

// Alertmanager encodes the batch as the alert list accepted by the
// Alertmanager v2 API (POST /api/v2/alerts).
type Alertmanager struct{}

func (Alertmanager) Key() string { return KeyAlertmanager }

func (Alertmanager) Transform(events []alarm.Event) (transformer.Payload, error) {
	alerts := make([]model.Alert, 0, len(events))
	for _, e := range events {
		labels := model.LabelSet{
			model.AlertNameLabel: model.LabelValue(alertName(e)),
			"scope":              model.LabelValue(e.Scope),
		}
		setLabel(labels, "name", e.Name)
		setLabel(labels, "id0", e.ID0)
		setLabel(labels, "id1", e.ID1)

		annotations := model.LabelSet{"message": model.LabelValue(e.Message)}
		for k, v := range e.Tags {
			setLabel(annotations, k, v)
		}

		alerts = append(alerts, model.Alert{
			Labels:      labels,
			Annotations: annotations,
			StartsAt:    e.StartTime,
		})
	}
	body, err := json.Marshal(alerts)
	if err != nil {
		return transformer.Payload{}, fmt.Errorf("marshal alertmanager alerts: %w", err)
	}
	return transformer.Payload{Body: body, ContentType: transformer.ContentTypeJSON}, nil
}

func alertName(e alarm.Event) string {
	if e.RuleName != "" {
		return e.RuleName
	}
	return "alarm_" + string(e.Scope)
}

func setLabel(ls model.LabelSet, name, value string) {
	if value == "" {
		return
	}
	ls[model.LabelName(name)] = model.LabelValue(value)
}
