package types

import (
	"fmt"
	"strings"
)

// VehicleIdentity names one gateway/aircraft pair. Index is zero based.
type VehicleIdentity struct {
	GatewaySN string
	Index     int
}

func (v VehicleIdentity) String() string {
	return fmt.Sprintf("UAV%d(%s)", v.Index+1, v.GatewaySN)
}

func (v VehicleIdentity) DRCDownTopic() string {
	return fmt.Sprintf("thing/product/%s/drc/down", v.GatewaySN)
}

func (v VehicleIdentity) DRCUpTopic() string {
	return fmt.Sprintf("thing/product/%s/drc/up", v.GatewaySN)
}

func (v VehicleIdentity) EventsTopic() string {
	return fmt.Sprintf("thing/product/%s/events", v.GatewaySN)
}

func (v VehicleIdentity) ServicesTopic() string {
	return fmt.Sprintf("thing/product/%s/services", v.GatewaySN)
}

func (v VehicleIdentity) ServicesReplyTopic() string {
	return fmt.Sprintf("thing/product/%s/services_reply", v.GatewaySN)
}

func (v VehicleIdentity) StatusTopic() string {
	return fmt.Sprintf("sys/product/%s/status", v.GatewaySN)
}

// InboundTopics are the topics a vehicle connection subscribes to.
func (v VehicleIdentity) InboundTopics() []string {
	return []string{
		v.DRCUpTopic(),
		v.EventsTopic(),
		v.ServicesReplyTopic(),
		v.StatusTopic(),
	}
}

// TopicKind classifies an inbound topic for this vehicle.
type TopicKind int

const (
	TopicUnknown TopicKind = iota
	TopicDRCUp
	TopicEvents
	TopicServicesReply
	TopicStatus
)

// Classify maps a topic to its kind. Topics of other gateways are TopicUnknown.
func (v VehicleIdentity) Classify(topic string) TopicKind {
	switch {
	case topic == v.StatusTopic():
		return TopicStatus
	case !strings.HasPrefix(topic, "thing/product/"+v.GatewaySN+"/"):
		return TopicUnknown
	}
	switch strings.TrimPrefix(topic, "thing/product/"+v.GatewaySN+"/") {
	case "drc/up":
		return TopicDRCUp
	case "events":
		return TopicEvents
	case "services_reply":
		return TopicServicesReply
	default:
		return TopicUnknown
	}
}
