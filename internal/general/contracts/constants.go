package contracts

// Exchanges
const (
	ExchangeNavigationTopic   = "nav_topic"
	ExchangeNavProgressFanout = "nav_progress_fanout"
)

// Queues
const (
	QueueNavigationStatus   = "navigation_status"
	QueueNavigationProgress = "navigation_progress_dispatch"
)

// Routing patterns
const (
	RouteNavStatusPrefix = "nav.status." // {state}
)

// Producer names stamped into Envelope.Producer.
const (
	ProducerNavigationService = "navigation-service"
)
