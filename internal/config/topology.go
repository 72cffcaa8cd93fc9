package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/djlord-it/easy-relay/internal/domain"
)

// Topology is the ordered category and destination list, normally read from
// DESTINATIONS_FILE.
type Topology struct {
	Categories   []CategorySpec    `yaml:"categories"`
	Destinations []DestinationSpec `yaml:"destinations"`
}

type CategorySpec struct {
	Name     string `yaml:"name"`
	Policy   string `yaml:"policy"`
	Required bool   `yaml:"required"`
}

type DestinationSpec struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	Category string `yaml:"category"`

	URL      string `yaml:"url,omitempty"`
	Path     string `yaml:"path,omitempty"`
	Topic    string `yaml:"topic,omitempty"`
	Exchange string `yaml:"exchange,omitempty"`

	Secret   string `yaml:"secret,omitempty"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
	Client   string `yaml:"client,omitempty"`

	Timeout string `yaml:"timeout,omitempty"`
}

const defaultDestinationName = "relay-endpoint"

// LoadTopology reads a destinations file. ${VAR} references are expanded
// from the environment so secrets can stay out of the file.
func LoadTopology(path string) (Topology, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Topology{}, fmt.Errorf("read destinations file %s: %w", path, err)
	}

	var t Topology
	dec := yaml.NewDecoder(bytes.NewReader([]byte(os.ExpandEnv(string(data)))))
	dec.KnownFields(true)
	if err := dec.Decode(&t); err != nil {
		if errors.Is(err, io.EOF) {
			return Topology{}, fmt.Errorf("destinations file %s is empty", path)
		}
		return Topology{}, fmt.Errorf("parse destinations file %s: %w", path, err)
	}
	return t, nil
}

// DefaultTopology posts every request to the relay endpoint as the only
// primary destination.
func DefaultTopology() Topology {
	return Topology{
		Categories: []CategorySpec{{Name: string(domain.CategoryPrimary), Policy: string(domain.MergePolicyAny)}},
		Destinations: []DestinationSpec{{
			Name:     defaultDestinationName,
			Type:     string(domain.DestinationTypeHTTP),
			Category: string(domain.CategoryPrimary),
		}},
	}
}

// Topology returns the configured topology: the destinations file when set,
// DefaultTopology otherwise.
func (c Config) Topology() (Topology, error) {
	if c.DestinationsFile == "" {
		return DefaultTopology(), nil
	}
	return LoadTopology(c.DestinationsFile)
}

// Resolve converts the topology into domain configuration. Categories not
// declared explicitly are appended in order of first use with the "any" policy.
func (t Topology) Resolve() ([]domain.CategoryConfig, []domain.DestinationConfig, error) {
	cats := make([]domain.CategoryConfig, 0, len(t.Categories))
	declared := make(map[domain.Category]bool)
	for _, c := range t.Categories {
		name := domain.Category(c.Name)
		cats = append(cats, domain.CategoryConfig{
			Name:     name,
			Policy:   domain.MergePolicy(c.Policy),
			Required: c.Required,
		})
		declared[name] = true
	}

	dests := make([]domain.DestinationConfig, 0, len(t.Destinations))
	for _, d := range t.Destinations {
		cat := domain.Category(d.Category)
		if cat == "" {
			cat = domain.CategoryPrimary
		}
		if !declared[cat] {
			cats = append(cats, domain.CategoryConfig{Name: cat, Policy: domain.MergePolicyAny})
			declared[cat] = true
		}

		var timeout time.Duration
		if d.Timeout != "" {
			v, err := time.ParseDuration(d.Timeout)
			if err != nil {
				return nil, nil, fmt.Errorf("destination %q: invalid timeout: %w", d.Name, err)
			}
			timeout = v
		}

		secret := d.Secret
		if d.Type == string(domain.DestinationTypeERP) && d.Password != "" {
			secret = d.Password
		}

		dests = append(dests, domain.DestinationConfig{
			Name:     d.Name,
			Type:     domain.DestinationType(d.Type),
			Category: cat,
			URL:      d.URL,
			Path:     d.Path,
			Topic:    d.Topic,
			Exchange: d.Exchange,
			Secret:   secret,
			Username: d.Username,
			Client:   d.Client,
			Timeout:  timeout,
		})
	}

	return cats, dests, nil
}
