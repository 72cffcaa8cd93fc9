package domain

import "time"

type DestinationType string

const (
	DestinationTypeHTTP  DestinationType = "http"
	DestinationTypeFile  DestinationType = "file"
	DestinationTypeERP   DestinationType = "erp"
	DestinationTypeKafka DestinationType = "kafka"
	DestinationTypeNATS  DestinationType = "nats"
	DestinationTypeAMQP  DestinationType = "amqp"
)

// DestinationConfig describes one entry of the ordered destination list.
type DestinationConfig struct {
	Name     string
	Type     DestinationType
	Category Category

	URL      string // http, erp
	Path     string // file
	Topic    string // kafka topic, nats subject, amqp routing key
	Exchange string // amqp

	Secret   string // HMAC secret (http), password (erp)
	Username string // erp
	Client   string // erp sap-client

	Timeout time.Duration
}

type MergePolicy string

const (
	MergePolicyAny MergePolicy = "any"
	MergePolicyAll MergePolicy = "all"
)

// CategoryConfig declares a category and how its destinations merge.
type CategoryConfig struct {
	Name     Category
	Policy   MergePolicy
	Required bool
}
