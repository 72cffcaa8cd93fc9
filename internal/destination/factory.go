package destination

import (
	"fmt"
	"net/http"

	"github.com/IBM/sarama"

	"github.com/djlord-it/easy-relay/internal/circuitbreaker"
	"github.com/djlord-it/easy-relay/internal/domain"
)

// Deps carries the shared clients destinations are built on.
// Only the clients required by the configured destination types need to be set.
type Deps struct {
	HTTPClient *http.Client
	Kafka      sarama.SyncProducer
	JetStream  JetStreamPublisher
	AMQP       AMQPChannel
	Breakers   *circuitbreaker.Breakers
}

// Build constructs the destination described by cfg, wrapped in a breaker
// when deps.Breakers is enabled.
func Build(cfg domain.DestinationConfig, deps Deps) (Destination, error) {
	var d Destination

	switch cfg.Type {
	case domain.DestinationTypeHTTP:
		h := NewHTTP(cfg.URL, cfg.Secret, cfg.Timeout)
		if deps.HTTPClient != nil {
			h.WithClient(deps.HTTPClient)
		}
		d = h
	case domain.DestinationTypeERP:
		e := NewERP(cfg.URL, cfg.Username, cfg.Secret, cfg.Client, cfg.Timeout)
		if deps.HTTPClient != nil {
			e.WithClient(deps.HTTPClient)
		}
		d = e
	case domain.DestinationTypeFile:
		if cfg.Path == "" {
			return nil, fmt.Errorf("destination %q: path is required", cfg.Name)
		}
		d = NewFile(cfg.Path)
	case domain.DestinationTypeKafka:
		if deps.Kafka == nil {
			return nil, fmt.Errorf("destination %q: kafka producer not configured", cfg.Name)
		}
		d = NewKafka(deps.Kafka, cfg.Topic)
	case domain.DestinationTypeNATS:
		if deps.JetStream == nil {
			return nil, fmt.Errorf("destination %q: nats not configured", cfg.Name)
		}
		d = NewNATS(deps.JetStream, cfg.Topic)
	case domain.DestinationTypeAMQP:
		if deps.AMQP == nil {
			return nil, fmt.Errorf("destination %q: amqp not configured", cfg.Name)
		}
		d = NewAMQP(deps.AMQP, cfg.Exchange, cfg.Topic, cfg.Timeout)
	default:
		return nil, fmt.Errorf("destination %q: unknown type %q", cfg.Name, cfg.Type)
	}

	if deps.Breakers.Enabled() {
		d = NewGuarded(cfg.Name, d, deps.Breakers)
	}
	return d, nil
}
