package mqtt

import "encoding/json"

// eventEnvelope is the JSON shape published on the event topic.
type eventEnvelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// Broadcast publishes a resolver event on the per-type event topic. It
// satisfies the resolver's broadcaster contract, which must not block,
// so delivery is fire and forget: a disconnected client drops the
// event and publish failures are logged, never returned.
func (c *Client) Broadcast(eventType string, payload any) {
	if eventType == "" || !c.IsConnected() {
		return
	}

	body, err := json.Marshal(eventEnvelope{Type: eventType, Payload: payload})
	if err != nil {
		if logger := c.getLogger(); logger != nil {
			logger.Warn("event payload not serialisable",
				"type", eventType, "error", err)
		}
		return
	}

	topic := Topics{}.Event(eventType)
	token := c.client.Publish(topic, byte(c.cfg.QoS), false, body)
	go func() {
		if token.WaitTimeout(defaultPublishTimeout) && token.Error() == nil {
			return
		}
		if logger := c.getLogger(); logger != nil {
			logger.Warn("event publish failed", "topic", topic, "error", token.Error())
		}
	}()
}
