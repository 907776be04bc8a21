package connector

import (
	"codeberg.org/mutker/hostmon/internal/errors"
	"gopkg.in/yaml.v3"
)

// Serialization marks an element that must run under the connector's
// forced-serialization lock.
type Serialization struct {
	ForceSerialization bool `yaml:"forceSerialization"`
}

func (s Serialization) Serialized() bool {
	return s.ForceSerialization
}

// decodeVariant reads the `type` discriminator of node and decodes the node
// into the matching concrete element.
func decodeVariant[T any](node *yaml.Node, factories map[string]func() T, what string) (T, error) {
	var zero T
	var head struct {
		Type string `yaml:"type"`
	}
	if err := node.Decode(&head); err != nil {
		return zero, err
	}

	newElement, ok := factories[head.Type]
	if !ok {
		return zero, errors.New().WithData(ErrUnknownVariant, struct {
			Element string
			Type    string
			Line    int
		}{
			Element: what,
			Type:    head.Type,
			Line:    node.Line,
		})
	}

	element := newElement()
	if err := node.Decode(element); err != nil {
		return zero, err
	}
	return element, nil
}

func decodeSequence[T any](node *yaml.Node, factories map[string]func() T, what string) ([]T, error) {
	if node.Kind != yaml.SequenceNode {
		return nil, errors.New().WithData(errors.ErrInvalidConfig, struct {
			Element string
			Line    int
		}{
			Element: what + " list expected",
			Line:    node.Line,
		})
	}
	out := make([]T, 0, len(node.Content))
	for _, item := range node.Content {
		element, err := decodeVariant(item, factories, what)
		if err != nil {
			return nil, err
		}
		out = append(out, element)
	}
	return out, nil
}
