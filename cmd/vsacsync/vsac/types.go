// types.go
package vsac

import (
	"fmt"
	"strings"
	"time"
)

const (
	DefaultFHIRBaseURL = "https://cts.nlm.nih.gov/fhir"
	DefaultSVSBaseURL  = "https://vsac.nlm.nih.gov/vsac/svs"
)

// Format selects which VSAC API is used and how cache files are encoded.
type Format string

const (
	FormatFHIR Format = "fhir" // FHIR R4 ValueSet/$expand, JSON
	FormatSVS  Format = "svs"  // IHE SVS RetrieveMultipleValueSets, XML
)

func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatFHIR:
		return FormatFHIR, nil
	case FormatSVS:
		return FormatSVS, nil
	}
	return "", fmt.Errorf("unknown format %q (want %q or %q)", s, FormatFHIR, FormatSVS)
}

func (f Format) extension() string {
	if f == FormatSVS {
		return ".xml"
	}
	return ".json"
}

func (f Format) accept() string {
	if f == FormatSVS {
		return "application/xml"
	}
	return "application/fhir+json"
}

func (f Format) defaultBaseURL() string {
	if f == FormatSVS {
		return DefaultSVSBaseURL
	}
	return DefaultFHIRBaseURL
}

// Code is one concept of a ValueSet expansion.
type Code struct {
	System  string `json:"system"`
	Code    string `json:"code"`
	Display string `json:"display,omitempty"`
	Version string `json:"version,omitempty"`
}

type Config struct {
	APIKey   string
	CacheDir string
	Verbose  bool

	Format  Format
	BaseURL string

	Timeout      time.Duration // per request, default 60s
	RetryMax     int           // default 3
	RetryWaitMin time.Duration // default 1s
	RetryWaitMax time.Duration // default 30s

	// MaxAge marks cache entries older than this as stale. Zero keeps
	// entries forever.
	MaxAge time.Duration

	// Workers bounds concurrent downloads. Values below 2 download one
	// ValueSet at a time.
	Workers int
}

// Result is the outcome of one ValueSet download. An empty Codes slice means
// the download failed or the ValueSet has no concepts.
type Result struct {
	Name   string
	OID    string
	Codes  []Code
	Cached bool
	Err    error
}

func (r Result) OK() bool {
	return len(r.Codes) > 0
}

// Results holds the per-entry outcomes of a batch in input order.
type Results struct {
	items []Result
}

func (r *Results) All() []Result {
	return r.items
}

func (r *Results) Len() int {
	return len(r.items)
}

// Codes returns the codes downloaded for the declared name, or nil.
func (r *Results) Codes(name string) []Code {
	for i := len(r.items) - 1; i >= 0; i-- {
		if r.items[i].Name == name {
			return r.items[i].Codes
		}
	}
	return nil
}

func (r *Results) Succeeded() int {
	n := 0
	for _, item := range r.items {
		if item.OK() {
			n++
		}
	}
	return n
}

func (r *Results) Failed() int {
	return len(r.items) - r.Succeeded()
}
