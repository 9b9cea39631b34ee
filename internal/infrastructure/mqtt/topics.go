package mqtt

import (
	"fmt"
	"strconv"
	"strings"
)

// Topic layout:
//
//	slotline/package/added            payload: {"package": "..."}
//	slotline/package/changed          payload: {"package": "..."}
//	slotline/package/removed          payload: {"package": "..."}
//	slotline/override/{slot}          payload: {"package": "..."} or {} to clear
//	slotline/slot/{slot}/enabled      payload: {"enabled": true|false}
//	slotline/system/status            retained service status
//	slotline/event/{type}             resolver events for subscribers
const (
	// TopicPrefix is the base for all resolver topics.
	TopicPrefix = "slotline"

	// TopicPrefixSystem is the base for service status topics.
	TopicPrefixSystem = "slotline/system"
)

// Topics provides builders for resolver MQTT topics. Using these
// helpers keeps topic naming consistent across publishers and
// subscribers.
type Topics struct{}

// PackageEvent returns the topic carrying one kind of package
// notification: "added", "changed" or "removed".
func (Topics) PackageEvent(kind string) string {
	return fmt.Sprintf("%s/package/%s", TopicPrefix, kind)
}

// AllPackageEvents returns the wildcard matching every package
// notification.
func (Topics) AllPackageEvents() string {
	return TopicPrefix + "/package/+"
}

// Override returns the topic carrying override commands for one slot.
func (Topics) Override(slot int) string {
	return fmt.Sprintf("%s/override/%d", TopicPrefix, slot)
}

// AllOverrides returns the wildcard matching override commands for
// every slot.
func (Topics) AllOverrides() string {
	return TopicPrefix + "/override/+"
}

// SlotEnabled returns the topic carrying enable/disable commands for
// one slot.
func (Topics) SlotEnabled(slot int) string {
	return fmt.Sprintf("%s/slot/%d/enabled", TopicPrefix, slot)
}

// AllSlotEnabled returns the wildcard matching enable commands for
// every slot.
func (Topics) AllSlotEnabled() string {
	return TopicPrefix + "/slot/+/enabled"
}

// SystemStatus returns the retained service status topic.
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}

// Event returns the topic for one resolver event type.
func (Topics) Event(eventType string) string {
	return fmt.Sprintf("%s/event/%s", TopicPrefix, eventType)
}

// PackageEventKind extracts the notification kind from a package event
// topic. Returns false for topics outside the package hierarchy.
func PackageEventKind(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, TopicPrefix+"/package/")
	if !ok || rest == "" || strings.Contains(rest, "/") {
		return "", false
	}
	return rest, true
}

// OverrideSlot extracts the slot index from an override command topic.
func OverrideSlot(topic string) (int, bool) {
	rest, ok := strings.CutPrefix(topic, TopicPrefix+"/override/")
	if !ok {
		return 0, false
	}
	slot, err := strconv.Atoi(rest)
	if err != nil || slot < 0 {
		return 0, false
	}
	return slot, true
}

// SlotEnabledSlot extracts the slot index from a slot enable topic.
func SlotEnabledSlot(topic string) (int, bool) {
	rest, ok := strings.CutPrefix(topic, TopicPrefix+"/slot/")
	if !ok {
		return 0, false
	}
	rest, ok = strings.CutSuffix(rest, "/enabled")
	if !ok {
		return 0, false
	}
	slot, err := strconv.Atoi(rest)
	if err != nil || slot < 0 {
		return 0, false
	}
	return slot, true
}
