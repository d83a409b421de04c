package batch

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Parameter names shared by every job.
const (
	ParamStartedAt      = "startedAt"
	ParamErrorThreshold = "errorThreshold"
)

type paramKind string

const (
	kindLong   paramKind = "long"
	kindString paramKind = "string"
)

type param struct {
	Name  string    `json:"name"`
	Kind  paramKind `json:"kind"`
	Long  int64     `json:"long,omitempty"`
	Value string    `json:"value,omitempty"`
}

// Params is an ordered bag of typed job parameters. The zero value is empty
// and ready to use.
type Params struct {
	entries []param
}

func (p *Params) set(entry param) *Params {
	for i := range p.entries {
		if p.entries[i].Name == entry.Name {
			p.entries[i] = entry
			return p
		}
	}
	p.entries = append(p.entries, entry)
	return p
}

// SetLong stores an integer parameter.
func (p *Params) SetLong(name string, value int64) *Params {
	return p.set(param{Name: name, Kind: kindLong, Long: value})
}

// SetString stores a string parameter.
func (p *Params) SetString(name, value string) *Params {
	return p.set(param{Name: name, Kind: kindString, Value: value})
}

func (p Params) lookup(name string) (param, bool) {
	for _, entry := range p.entries {
		if entry.Name == name {
			return entry, true
		}
	}
	return param{}, false
}

// Long returns an integer parameter.
func (p Params) Long(name string) (int64, bool) {
	entry, ok := p.lookup(name)
	if !ok || entry.Kind != kindLong {
		return 0, false
	}
	return entry.Long, true
}

// String returns a string parameter.
func (p Params) String(name string) (string, bool) {
	entry, ok := p.lookup(name)
	if !ok || entry.Kind != kindString {
		return "", false
	}
	return entry.Value, true
}

// Has reports whether name is present.
func (p Params) Has(name string) bool {
	_, ok := p.lookup(name)
	return ok
}

// Names returns parameter names in insertion order.
func (p Params) Names() []string {
	names := make([]string, len(p.entries))
	for i, entry := range p.entries {
		names[i] = entry.Name
	}
	return names
}

// Len returns the number of parameters.
func (p Params) Len() int { return len(p.entries) }

// Key returns a canonical identity for the parameter set, independent of
// insertion order. Two launches with the same key are the same job instance.
func (p Params) Key() string {
	parts := make([]string, 0, len(p.entries))
	for _, entry := range p.entries {
		value := entry.Value
		if entry.Kind == kindLong {
			value = strconv.FormatInt(entry.Long, 10)
		}
		parts = append(parts, entry.Name+"("+string(entry.Kind)+")="+value)
	}
	sort.Strings(parts)
	return strings.Join(parts, ";")
}

// MarshalJSON encodes the parameters as an ordered list.
func (p Params) MarshalJSON() ([]byte, error) {
	if p.entries == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(p.entries)
}

// UnmarshalJSON decodes parameters produced by MarshalJSON.
func (p *Params) UnmarshalJSON(data []byte) error {
	var entries []param
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("decode job parameters: %w", err)
	}
	p.entries = entries
	return nil
}

// Clone returns an independent copy.
func (p Params) Clone() Params {
	return Params{entries: append([]param(nil), p.entries...)}
}
