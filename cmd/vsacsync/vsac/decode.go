package vsac

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/gofhir/fhir/r4"
)

// Decode turns a VSAC response body of the given format into its codes.
func Decode(format Format, body []byte) ([]Code, error) {
	if format == FormatSVS {
		return decodeSVS(body)
	}
	return decodeFHIR(body)
}

type resourceProbe struct {
	ResourceType string `json:"resourceType"`
}

type operationOutcome struct {
	Issue []struct {
		Severity    string `json:"severity"`
		Code        string `json:"code"`
		Diagnostics string `json:"diagnostics"`
	} `json:"issue"`
}

func decodeFHIR(body []byte) ([]Code, error) {
	var probe resourceProbe
	if err := json.Unmarshal(body, &probe); err != nil {
		return nil, fmt.Errorf("failed to parse response JSON: %w", err)
	}

	switch probe.ResourceType {
	case "ValueSet":
	case "OperationOutcome":
		return nil, fmt.Errorf("server returned OperationOutcome: %s", outcomeMessage(body))
	default:
		return nil, fmt.Errorf("unexpected resourceType %q", probe.ResourceType)
	}

	var vs r4.ValueSet
	if err := json.Unmarshal(body, &vs); err != nil {
		return nil, fmt.Errorf("failed to decode ValueSet: %w", err)
	}

	codes := make([]Code, 0)
	if vs.Expansion != nil {
		for i := range vs.Expansion.Contains {
			codes = appendContains(codes, &vs.Expansion.Contains[i])
		}
		return codes, nil
	}

	// Not expanded: fall back to the enumerated concepts of the definition.
	if vs.Compose != nil {
		for i := range vs.Compose.Include {
			include := &vs.Compose.Include[i]
			system := deref(include.System)
			for j := range include.Concept {
				concept := &include.Concept[j]
				if concept.Code == nil {
					continue
				}
				codes = append(codes, Code{
					System:  system,
					Code:    *concept.Code,
					Display: deref(concept.Display),
				})
			}
		}
	}
	return codes, nil
}

func appendContains(codes []Code, contains *r4.ValueSetExpansionContains) []Code {
	if contains.Code != nil {
		codes = append(codes, Code{
			System:  deref(contains.System),
			Code:    *contains.Code,
			Display: deref(contains.Display),
		})
	}
	for i := range contains.Contains {
		codes = appendContains(codes, &contains.Contains[i])
	}
	return codes
}

func outcomeMessage(body []byte) string {
	var oo operationOutcome
	if err := json.Unmarshal(body, &oo); err != nil || len(oo.Issue) == 0 {
		return "no details"
	}
	msgs := make([]string, 0, len(oo.Issue))
	for _, issue := range oo.Issue {
		msg := issue.Diagnostics
		if msg == "" {
			msg = issue.Code
		}
		msgs = append(msgs, msg)
	}
	return strings.Join(msgs, "; ")
}

type svsResponse struct {
	ValueSets []struct {
		ID          string       `xml:"ID,attr"`
		DisplayName string       `xml:"displayName,attr"`
		Version     string       `xml:"version,attr"`
		Concepts    []svsConcept `xml:"ConceptList>Concept"`
	} `xml:"DescribedValueSet"`
}

type svsConcept struct {
	Code              string `xml:"code,attr"`
	CodeSystem        string `xml:"codeSystem,attr"`
	CodeSystemName    string `xml:"codeSystemName,attr"`
	CodeSystemVersion string `xml:"codeSystemVersion,attr"`
	DisplayName       string `xml:"displayName,attr"`
}

func decodeSVS(body []byte) ([]Code, error) {
	var resp svsResponse
	if err := xml.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response XML: %w", err)
	}
	if len(resp.ValueSets) == 0 {
		return nil, fmt.Errorf("response contains no DescribedValueSet")
	}

	codes := make([]Code, 0)
	for _, vs := range resp.ValueSets {
		for _, c := range vs.Concepts {
			if c.Code == "" {
				continue
			}
			codes = append(codes, Code{
				System:  c.CodeSystem,
				Code:    c.Code,
				Display: c.DisplayName,
				Version: c.CodeSystemVersion,
			})
		}
	}
	return codes, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
