package telemetry

// Topic is a hierarchical MQTT publish destination.
type Topic string

const (
	TopicCPUTemp        Topic = "TPU/OnBoard/CpuTemp"
	TopicCPUUsage       Topic = "TPU/OnBoard/CpuUsage"
	TopicBrokerCPUUsage Topic = "TPU/OnBoard/BrokerCpuUsage"
	TopicMemAvailable   Topic = "TPU/OnBoard/MemAvailable"
)

// Units
const (
	UnitCelsius   = "celsius"
	UnitPercent   = "%"
	UnitMegabytes = "MB"
)

// units pairs every known topic with the unit its readings are reported in.
var units = map[Topic]string{
	TopicCPUTemp:        UnitCelsius,
	TopicCPUUsage:       UnitPercent,
	TopicBrokerCPUUsage: UnitPercent,
	TopicMemAvailable:   UnitMegabytes,
}

// Unit returns the unit paired with the topic, or "" for unknown topics.
func (t Topic) Unit() string {
	return units[t]
}

// Known reports whether the topic is part of the fixed topic table.
func (t Topic) Known() bool {
	_, ok := units[t]
	return ok
}

func (t Topic) String() string {
	return string(t)
}

// Topics returns every known topic.
func Topics() []Topic {
	return []Topic{TopicCPUTemp, TopicCPUUsage, TopicBrokerCPUUsage, TopicMemAvailable}
}
