package vsac

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const testSecret = "0d6a1c1e-2b6f-4c8e-9f54-1f2a3b4c5d6e"

// fakeVSAC serves canned ValueSets for both VSAC APIs and counts requests
// per OID.
type fakeVSAC struct {
	mu     sync.Mutex
	bodies map[string]string
	status map[string]int
	hits   map[string]int
	server *httptest.Server
}

func newFakeVSAC(t *testing.T) *fakeVSAC {
	t.Helper()
	f := &fakeVSAC{
		bodies: make(map[string]string),
		status: make(map[string]int),
		hits:   make(map[string]int),
	}

	r := mux.NewRouter()
	r.HandleFunc("/ValueSet/{oid}/$expand", f.serve).Methods(http.MethodGet)
	r.HandleFunc("/RetrieveMultipleValueSets", f.serve).Methods(http.MethodGet).Queries("id", "{oid}")

	f.server = httptest.NewServer(r)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeVSAC) serve(w http.ResponseWriter, r *http.Request) {
	oid := mux.Vars(r)["oid"]

	f.mu.Lock()
	f.hits[oid]++
	body, found := f.bodies[oid]
	status, hasStatus := f.status[oid]
	f.mu.Unlock()

	want := "Basic " + base64.StdEncoding.EncodeToString([]byte("apikey:"+testSecret))
	if r.Header.Get("Authorization") != want {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	switch {
	case hasStatus:
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	case !found:
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"resourceType":"OperationOutcome","issue":[{"severity":"error","code":"not-found","diagnostics":"ValueSet not found"}]}`)
	default:
		fmt.Fprint(w, body)
	}
}

func (f *fakeVSAC) set(oid, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bodies[oid] = body
}

func (f *fakeVSAC) fail(oid string, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status[oid] = status
}

func (f *fakeVSAC) count(oid string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[oid]
}

func (f *fakeVSAC) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, v := range f.hits {
		n += v
	}
	return n
}

func (f *fakeVSAC) config(dir string) Config {
	return Config{
		APIKey:       testSecret,
		CacheDir:     dir,
		Verbose:      true,
		BaseURL:      f.server.URL,
		RetryMax:     2,
		RetryWaitMin: time.Millisecond,
		RetryWaitMax: 2 * time.Millisecond,
	}
}

func newTestClient(t *testing.T, cfg Config) *Client {
	t.Helper()
	c, err := New(cfg, zerolog.Nop())
	require.NoError(t, err)
	return c
}

// expansion returns a FHIR ValueSet whose expansion contains the given
// SNOMED CT codes.
func expansion(t *testing.T, oid string, codes ...string) string {
	t.Helper()
	contains := make([]map[string]string, 0, len(codes))
	for _, code := range codes {
		contains = append(contains, map[string]string{
			"system":  "http://snomed.info/sct",
			"code":    code,
			"display": "Concept " + code,
		})
	}
	b, err := json.Marshal(map[string]any{
		"resourceType": "ValueSet",
		"id":           oid,
		"url":          "http://cts.nlm.nih.gov/fhir/ValueSet/" + oid,
		"expansion": map[string]any{
			"timestamp": "2024-01-01T00:00:00Z",
			"total":     len(codes),
			"contains":  contains,
		},
	})
	require.NoError(t, err)
	return string(b)
}

func svsDocument(oid string, codes ...string) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	b.WriteString(`<ns0:RetrieveMultipleValueSetsResponse xmlns:ns0="urn:ihe:iti:svs:2008">`)
	fmt.Fprintf(&b, `<ns0:DescribedValueSet ID="%s" displayName="Test" version="20240101"><ns0:ConceptList>`, oid)
	for _, code := range codes {
		fmt.Fprintf(&b, `<ns0:Concept code="%s" codeSystem="2.16.840.1.113883.6.96" codeSystemName="SNOMEDCT" codeSystemVersion="2024-03" displayName="Concept %s"/>`, code, code)
	}
	b.WriteString(`</ns0:ConceptList></ns0:DescribedValueSet></ns0:RetrieveMultipleValueSetsResponse>`)
	return b.String()
}
