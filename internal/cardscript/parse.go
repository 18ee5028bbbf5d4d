package cardscript

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema.json
var schemaJSON string

const schemaURL = "https://cardlab.local/schemas/cardscript.json"

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		if err := c.AddResource(schemaURL, strings.NewReader(schemaJSON)); err != nil {
			schemaErr = fmt.Errorf("load card script schema: %w", err)
			return
		}
		schema, schemaErr = c.Compile(schemaURL)
	})
	return schema, schemaErr
}

// Validate checks a JSON document against the card script schema.
func Validate(data []byte) error {
	s, err := compiledSchema()
	if err != nil {
		return err
	}
	// the validator expects numbers as json.Number
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("card script: %w", err)
	}
	if err := s.Validate(doc); err != nil {
		return fmt.Errorf("card script: %w", err)
	}
	return nil
}

// Parse validates and decodes a card script.
func Parse(data []byte) (*Script, error) {
	if err := Validate(data); err != nil {
		return nil, err
	}
	var sc Script
	if err := json.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("card script: %w", err)
	}
	return &sc, nil
}

// FromValue converts an already decoded value, such as a YAML mapping, to
// a script by going through its JSON form.
func FromValue(v any) (*Script, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("card script: %w", err)
	}
	return Parse(data)
}

// Walk calls fn for every action of the script, nested ones included.
func (s *Script) Walk(fn func(a Action)) {
	for _, h := range s.Handlers {
		walkActions(h.Actions, fn)
	}
}

func walkActions(as Actions, fn func(a Action)) {
	for _, a := range as {
		fn(a)
		switch v := a.(type) {
		case *SingleConditionalAction:
			walkActions(v.Actions, fn)
		case *MultiConditionalAction:
			walkActions(v.Actions, fn)
		case *RandomConditionalAction:
			walkActions(v.Actions, fn)
		}
	}
}
