package service

import (
	"context"
	"sync"
	"time"

	"fieldnav/internal/domain/geo"
	"fieldnav/internal/general/logger"
	"fieldnav/internal/ports"
	"fieldnav/internal/software/navigation/engine"

	amqp "github.com/rabbitmq/amqp091-go"
)

// EventPublisher is the part of *rabbitmq.MQPublisher the service uses.
type EventPublisher interface {
	PublishJSON(ctx context.Context, exchange, routingKey string, v any) error
}

// DeliveryConsumer is the part of *rabbitmq.Client the service uses.
type DeliveryConsumer interface {
	ConsumeLoop(ctx context.Context, queue, consumerTag string, prefetch int, handler func(context.Context, amqp.Delivery) error)
}

// Metrics extends the engine counters with service-level ones.
// *metrics.Navigation implements it.
type Metrics interface {
	engine.Metrics
	SessionOpened()
	SessionClosed()
	EventFailed(sink string)
}

// Options carry the tuning read from config.
type Options struct {
	Engine          engine.Config
	HistoryInterval time.Duration
	Prefetch        int
}

// Deps holds everything the navigation service talks to.
type Deps struct {
	Logger      *logger.Logger
	UoW         ports.UnitOfWork
	Sessions    ports.NavigationSessionRepository
	History     ports.LocationHistoryRepository
	Geocoder    ports.GeocodingProvider
	Directions  ports.DirectionsProvider
	Publisher   EventPublisher
	Consumer    DeliveryConsumer
	Broadcaster ports.ProgressBroadcaster
	Metrics     Metrics
	Now         func() time.Time
}

// navigationService hosts one engine.Session per technician.
type navigationService struct {
	logger      *logger.Logger
	uow         ports.UnitOfWork
	sessions    ports.NavigationSessionRepository
	history     ports.LocationHistoryRepository
	geocoder    ports.GeocodingProvider
	directions  ports.DirectionsProvider
	pub         EventPublisher
	consumer    DeliveryConsumer
	broadcaster ports.ProgressBroadcaster
	metrics     Metrics
	now         func() time.Time
	opts        Options

	mu          sync.Mutex
	technicians map[string]*technician
	closed      bool
	background  sync.WaitGroup
}

// NewNavigationService constructs the service with required dependencies.
func NewNavigationService(deps Deps, opts Options) ports.NavigationService {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Metrics == nil {
		deps.Metrics = nopMetrics{}
	}
	if opts.Prefetch <= 0 {
		opts.Prefetch = 20
	}
	return &navigationService{
		logger:      deps.Logger,
		uow:         deps.UoW,
		sessions:    deps.Sessions,
		history:     deps.History,
		geocoder:    deps.Geocoder,
		directions:  deps.Directions,
		pub:         deps.Publisher,
		consumer:    deps.Consumer,
		broadcaster: deps.Broadcaster,
		metrics:     deps.Metrics,
		now:         deps.Now,
		opts:        opts,
		technicians: make(map[string]*technician),
	}
}

// technicianFor returns the entry for id, creating it on first use.
func (service *navigationService) technicianFor(id string) *technician {
	service.mu.Lock()
	defer service.mu.Unlock()
	t, ok := service.technicians[id]
	if !ok {
		t = newTechnician(id)
		service.technicians[id] = t
	}
	return t
}

func (service *navigationService) lookup(id string) (*technician, bool) {
	service.mu.Lock()
	defer service.mu.Unlock()
	t, ok := service.technicians[id]
	return t, ok
}

func toCoordinate(p *ports.GeoPoint) *geo.Coordinate {
	if p == nil {
		return nil
	}
	return &geo.Coordinate{Lat: p.Latitude, Lng: p.Longitude}
}

type nopMetrics struct{}

func (nopMetrics) RouteRequested(bool)                 {}
func (nopMetrics) RouteCompleted(time.Duration, error) {}
func (nopMetrics) StaleDiscarded()                     {}
func (nopMetrics) SampleDropped()                      {}
func (nopMetrics) StateEntered(string, string)         {}
func (nopMetrics) SessionOpened()                      {}
func (nopMetrics) SessionClosed()                      {}
func (nopMetrics) EventFailed(string)                  {}
