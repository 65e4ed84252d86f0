package subscription

import "time"

// EdenPolicy selects how a subscription queries the remote feed before it
// has ever saved an offset.
type EdenPolicy int

const (
	// BeginningOfTime requests after_offset=-1 on the first run ("before
	// all"), then switches to the saved offset.
	BeginningOfTime EdenPolicy = iota
	// FromNow requests after_timestamp equal to the moment the subscription
	// was created, captured once, until an offset has been saved.
	FromNow
)

// SubscriberConfig names a subscription and its eden policy.
type SubscriberConfig struct {
	Name       string
	EdenPolicy EdenPolicy
}

// FeedConfig supplies everything the consumer needs to address the remote
// feed and tune each subscription's polling behavior.
type FeedConfig interface {
	EndpointProtocol() string
	EndpointHost() string
	EndpointPort() int
	EndpointPath() string
	BatchSizeFor(name string) int
	RepeatScheduleFor(name string) time.Duration
	TimeoutFor(name string) time.Duration
	Enabled(name string) bool
}

// SubscriptionSettings is the per-subscription tuning held by
// StaticFeedConfig.
type SubscriptionSettings struct {
	BatchSize      int
	RepeatSchedule time.Duration
	Timeout        time.Duration
	Disabled       bool
}

// StaticFeedConfig is a FeedConfig backed by a fixed endpoint and a map of
// per-subscription settings, with a fallback applied to any subscription
// not listed — the same shape as eventsourcing.StaticConfig.
type StaticFeedConfig struct {
	Protocol string
	Host     string
	Port     int
	Path     string

	DefaultSettings SubscriptionSettings
	PerName         map[string]SubscriptionSettings
}

func (c StaticFeedConfig) EndpointProtocol() string { return c.Protocol }
func (c StaticFeedConfig) EndpointHost() string     { return c.Host }
func (c StaticFeedConfig) EndpointPort() int         { return c.Port }
func (c StaticFeedConfig) EndpointPath() string      { return c.Path }

func (c StaticFeedConfig) settingsFor(name string) SubscriptionSettings {
	if s, ok := c.PerName[name]; ok {
		return s
	}
	return c.DefaultSettings
}

func (c StaticFeedConfig) BatchSizeFor(name string) int { return c.settingsFor(name).BatchSize }

func (c StaticFeedConfig) RepeatScheduleFor(name string) time.Duration {
	return c.settingsFor(name).RepeatSchedule
}

func (c StaticFeedConfig) TimeoutFor(name string) time.Duration {
	return c.settingsFor(name).Timeout
}

func (c StaticFeedConfig) Enabled(name string) bool { return !c.settingsFor(name).Disabled }

var _ FeedConfig = StaticFeedConfig{}
