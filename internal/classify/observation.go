// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package classify

import "strings"

// Observation is either a NetworkObservation or a DomObservation.
type Observation interface {
	observation()
	contextID() *int64
}

// Header is one response header as reported by the interception layer.
type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// NetworkObservation is a completed network transaction.
type NetworkObservation struct {
	Locator   string   `json:"url"`
	Headers   []Header `json:"headers"`
	ContextID *int64   `json:"contextId,omitempty"`
}

func (NetworkObservation) observation()        {}
func (o NetworkObservation) contextID() *int64 { return o.ContextID }

// Header returns the first header value matching name case-insensitively.
func (o NetworkObservation) Header(name string) string {
	for _, h := range o.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// DomObservation is a media element found on a page.
type DomObservation struct {
	Tag       string `json:"tag"`
	Source    string `json:"src"`
	ContextID *int64 `json:"contextId,omitempty"`
}

func (DomObservation) observation()        {}
func (o DomObservation) contextID() *int64 { return o.ContextID }
