// SPDX-License-Identifier: MIT

// Package registry implements the per-stage-kind factory table: every
// concrete Source, Codec, Filter, Muxer, Demuxer, Stream, or Sink adapter
// registers its name, a capability predicate over a parsed parameter map,
// and a constructor, before the pipeline builder runs. The graph builder
// uses Create to instantiate a named stage and IsMatch as a non-constructing
// probe to check type compatibility before wiring an edge.
package registry

import (
	"sync"

	"github.com/flowforge/mediaflow/internal/errs"
	"github.com/flowforge/mediaflow/internal/paramstring"
)

// Kind identifies a factory table: Source, Codec, Filter, Muxer, Demuxer,
// Stream, or Sink. There is no separate Flow kind; flows are built around
// stages of these kinds.
type Kind string

const (
	KindSource  Kind = "source"
	KindCodec   Kind = "codec"
	KindFilter  Kind = "filter"
	KindMuxer   Kind = "muxer"
	KindDemuxer Kind = "demuxer"
	KindStream  Kind = "stream"
	KindSink    Kind = "sink"
)

// Predicate reports whether a factory accepts the parameters in m. A nil
// Predicate accepts anything.
type Predicate func(m *paramstring.Map) bool

// Constructor builds a concrete stage from a parsed parameter map. Its
// return type depends on kind (e.g. stage.Source for KindSource); callers
// type-assert the result. A constructor that itself fails returns a nil
// value and a non-nil error; Create surfaces that as InvalidParam.
type Constructor func(m *paramstring.Map) (any, error)

type factory struct {
	name      string
	predicate Predicate
	construct Constructor
}

// Registry holds every registered factory, keyed by (Kind, name).
type Registry struct {
	mu    sync.RWMutex
	table map[Kind]map[string]*factory
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{table: make(map[Kind]map[string]*factory)}
}

// Register adds a factory under (kind, name). A nil predicate accepts any
// parameter map (an empty factory set accepts anything). Registering the
// same (kind, name) twice replaces the earlier factory: last-registration-
// wins for named plugins assembled at init time.
func (r *Registry) Register(kind Kind, name string, predicate Predicate, construct Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.table[kind] == nil {
		r.table[kind] = make(map[string]*factory)
	}
	r.table[kind][name] = &factory{name: name, predicate: predicate, construct: construct}
}

// Create looks up (kind, name), parses paramString, checks the factory's
// predicate, and invokes its constructor.
func (r *Registry) Create(kind Kind, name string, paramString string) (any, error) {
	f := r.lookup(kind, name)
	if f == nil {
		return nil, errs.NewNotFound("registry.Registry.Create", notFoundErr(kind, name))
	}

	params := paramstring.Parse(paramString, paramstring.Options{})
	if f.predicate != nil && !f.predicate(params) {
		return nil, errs.NewInvalidParam("registry.Registry.Create", rejectedErr(kind, name))
	}

	stage, err := f.construct(params)
	if err != nil {
		return nil, errs.NewInvalidParam("registry.Registry.Create", err)
	}
	if stage == nil {
		return nil, errs.NewInvalidParam("registry.Registry.Create", constructNilErr(kind, name))
	}
	return stage, nil
}

// IsMatch is a non-constructing probe: it reports whether (kind, name)'s
// capability predicate accepts ruleString, without building a stage. An
// unregistered (kind, name) never matches.
func (r *Registry) IsMatch(kind Kind, name string, ruleString string) bool {
	f := r.lookup(kind, name)
	if f == nil {
		return false
	}
	if f.predicate == nil {
		return true
	}
	return f.predicate(paramstring.Parse(ruleString, paramstring.Options{}))
}

// Names returns every registered factory name for kind, useful for the
// config wizard to enumerate choices.
func (r *Registry) Names(kind Kind) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.table[kind]))
	for name := range r.table[kind] {
		names = append(names, name)
	}
	return names
}

func (r *Registry) lookup(kind Kind, name string) *factory {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.table[kind][name]
}

// MediaTypePredicate builds a Predicate implementing the registry's
// capability DSL: a factory declares the input_data_type/output_data_type
// token sets it accepts; the predicate matches a request's tokens of the
// same keys by non-empty intersection (an empty factory set accepts
// anything; an explicit empty request imposes no constraint).
func MediaTypePredicate(acceptedInput, acceptedOutput []string) Predicate {
	return func(m *paramstring.Map) bool {
		if !tokensMatch(acceptedInput, m, "input_data_type") {
			return false
		}
		return tokensMatch(acceptedOutput, m, "output_data_type")
	}
}

func tokensMatch(accepted []string, m *paramstring.Map, key string) bool {
	if len(accepted) == 0 {
		return true
	}
	raw, ok := m.Get(key)
	if !ok {
		return false
	}
	requested := paramstring.CSVTokens(raw)
	if len(requested) == 0 {
		return true
	}
	acceptedSet := make(map[string]struct{}, len(accepted))
	for _, t := range accepted {
		acceptedSet[t] = struct{}{}
	}
	for _, t := range requested {
		if _, ok := acceptedSet[t]; ok {
			return true
		}
	}
	return false
}
