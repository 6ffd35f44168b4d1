// Package asyncapi checks CloudEvent payloads against the stock engine's
// AsyncAPI contract. Component schemas tagged with x-event-type are compiled
// once at startup; x-kind separates inbound commands from emitted events.
package asyncapi

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"

	"github.com/wms-platform/stock-engine/pkg/cloudevents"
)

//go:embed stock-engine.asyncapi.yaml
var stockEngineContract []byte

var (
	// ErrUnknownType is returned for a CloudEvent type the contract does not describe
	ErrUnknownType = errors.New("no schema for event type")
	// ErrEmptyPayload is returned when a CloudEvent carries no data
	ErrEmptyPayload = errors.New("event data is required")
)

// Kind tells commands from events
type Kind string

const (
	KindEvent   Kind = "event"
	KindCommand Kind = "command"
)

type contract struct {
	Channels map[string]struct {
		Address  string `yaml:"address"`
		Messages map[string]struct {
			Ref string `yaml:"$ref"`
		} `yaml:"messages"`
	} `yaml:"channels"`
	Components struct {
		Messages map[string]struct {
			Payload struct {
				Ref string `yaml:"$ref"`
			} `yaml:"payload"`
		} `yaml:"messages"`
		Schemas map[string]map[string]any `yaml:"schemas"`
	} `yaml:"components"`
}

type typeSchema struct {
	name   string
	kind   Kind
	topic  string
	schema *jsonschema.Schema
}

// EventValidator validates CloudEvent payloads by type
type EventValidator struct {
	types map[string]typeSchema
}

// NewStockEngineValidator compiles the embedded stock engine contract
func NewStockEngineValidator() (*EventValidator, error) {
	return NewEventValidatorFromBytes(stockEngineContract)
}

// NewEventValidatorFromBytes compiles every x-event-type schema of an AsyncAPI document
func NewEventValidatorFromBytes(doc []byte) (*EventValidator, error) {
	var c contract
	if err := yaml.Unmarshal(doc, &c); err != nil {
		return nil, fmt.Errorf("parse asyncapi document: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	v := &EventValidator{types: make(map[string]typeSchema)}
	for name, raw := range c.Components.Schemas {
		eventType, _ := raw["x-event-type"].(string)
		if eventType == "" {
			continue
		}
		if prev, dup := v.types[eventType]; dup {
			return nil, fmt.Errorf("event type %s declared by both %s and %s", eventType, prev.name, name)
		}

		schema, err := compile(compiler, name, raw)
		if err != nil {
			return nil, fmt.Errorf("schema %s: %w", name, err)
		}
		kind := KindEvent
		if k, _ := raw["x-kind"].(string); Kind(k) == KindCommand {
			kind = KindCommand
		}
		v.types[eventType] = typeSchema{name: name, kind: kind, schema: schema}
	}

	v.bindTopics(c)
	return v, nil
}

func compile(compiler *jsonschema.Compiler, name string, raw map[string]any) (*jsonschema.Schema, error) {
	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(encoded))
	if err != nil {
		return nil, err
	}
	uri := "asyncapi://components/schemas/" + name
	if err := compiler.AddResource(uri, doc); err != nil {
		return nil, err
	}
	return compiler.Compile(uri)
}

// bindTopics follows channel -> message -> payload references to learn each type's topic
func (v *EventValidator) bindTopics(c contract) {
	schemaOf := func(ref, section string) string {
		return strings.TrimPrefix(ref, "#/components/"+section+"/")
	}
	byName := make(map[string]string, len(v.types))
	for eventType, ts := range v.types {
		byName[ts.name] = eventType
	}

	for _, channel := range c.Channels {
		for _, m := range channel.Messages {
			msg, ok := c.Components.Messages[schemaOf(m.Ref, "messages")]
			if !ok {
				continue
			}
			eventType, ok := byName[schemaOf(msg.Payload.Ref, "schemas")]
			if !ok {
				continue
			}
			ts := v.types[eventType]
			ts.topic = channel.Address
			v.types[eventType] = ts
		}
	}
}

// ValidateEvent checks ce's data against the schema of its type
func (v *EventValidator) ValidateEvent(ce *cloudevents.WMSCloudEvent) error {
	if ce == nil || ce.Type == "" {
		return fmt.Errorf("%w: empty type", ErrUnknownType)
	}
	ts, ok := v.types[ce.Type]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownType, ce.Type)
	}
	if len(ce.Data) == 0 {
		return ErrEmptyPayload
	}

	payload, err := jsonschema.UnmarshalJSON(bytes.NewReader(ce.Data))
	if err != nil {
		return fmt.Errorf("decode %s payload: %w", ce.Type, err)
	}
	if err := ts.schema.Validate(payload); err != nil {
		return fmt.Errorf("%s payload violates %s: %w", ce.Type, ts.name, err)
	}
	return nil
}

// Types returns the sorted types of the given kind
func (v *EventValidator) Types(kind Kind) []string {
	var out []string
	for eventType, ts := range v.types {
		if ts.kind == kind {
			out = append(out, eventType)
		}
	}
	sort.Strings(out)
	return out
}

// HasSchema reports whether eventType is described
func (v *EventValidator) HasSchema(eventType string) bool {
	_, ok := v.types[eventType]
	return ok
}

// Topic returns the channel address eventType travels on
func (v *EventValidator) Topic(eventType string) (string, bool) {
	ts, ok := v.types[eventType]
	if !ok || ts.topic == "" {
		return "", false
	}
	return ts.topic, true
}
