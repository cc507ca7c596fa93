package mqtt

import (
	"encoding/json"
	"log/slog"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// ChoiceSink accepts a player selection on the current choice moment.
type ChoiceSink interface {
	SelectChoice(choiceID string) (bool, error)
}

type choiceMessage struct {
	ChoiceID string `json:"choice_id"`
}

// ChoiceHandler forwards {"choice_id": "..."} messages from an input
// device (watch buttons, headset remote) to sink.
func ChoiceHandler(sink ChoiceSink, log *slog.Logger) paho.MessageHandler {
	if log == nil {
		log = slog.Default()
	}
	return func(_ paho.Client, msg paho.Message) {
		var m choiceMessage
		if err := json.Unmarshal(msg.Payload(), &m); err != nil || m.ChoiceID == "" {
			log.Warn("dropping choice input", "topic", msg.Topic(), "payload", string(msg.Payload()))
			return
		}
		ok, err := sink.SelectChoice(m.ChoiceID)
		if err != nil {
			log.Info("choice input rejected", "choice_id", m.ChoiceID, "error", err)
			return
		}
		log.Debug("choice input", "choice_id", m.ChoiceID, "selected", ok)
	}
}
