package project

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/Strob0t/CaseForge/internal/domain"
)

// Fragment is a hierarchy produced outside the store, typically the final
// JSON of the generation pipeline. Epics stay raw so that one malformed
// epic fails alone.
type Fragment struct {
	ProjectID       string            `json:"project_id,omitempty"`
	ProjectName     string            `json:"project_name,omitempty"`
	Epics           []json.RawMessage `json:"epics"`
	CoverageSummary *string           `json:"coverage_summary,omitempty"`
	TotalEpics      int               `json:"total_epics,omitempty"`
	TotalFeatures   int               `json:"total_features,omitempty"`
	TotalUseCases   int               `json:"total_use_cases,omitempty"`
	TotalTestCases  int               `json:"total_test_cases,omitempty"`
}

// ImportError describes one epic that could not be imported.
type ImportError struct {
	Key   string `json:"key"`
	Error string `json:"error"`
}

// ImportResult reports a bulk import item by item.
type ImportResult struct {
	SuccessCount int           `json:"success_count"`
	ErrorCount   int           `json:"error_count"`
	Errors       []ImportError `json:"errors"`
	ProcessedIDs []string      `json:"processed_ids"`
}

// DecodeFragment accepts JSON or YAML, optionally wrapped in a Markdown
// code fence as language models tend to emit.
func DecodeFragment(data []byte) (*Fragment, error) {
	data = stripFence(bytes.TrimSpace(data))
	if len(data) == 0 {
		return nil, fmt.Errorf("empty fragment: %w", domain.ErrValidation)
	}

	if data[0] != '{' {
		var doc any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse fragment yaml: %v: %w", err, domain.ErrValidation)
		}
		converted, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("convert fragment yaml: %v: %w", err, domain.ErrValidation)
		}
		data = converted
	}

	var f Fragment
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fragment: %v: %w", err, domain.ErrValidation)
	}
	if f.Epics == nil {
		return nil, fmt.Errorf("fragment has no epics: %w", domain.ErrValidation)
	}
	return &f, nil
}

// DecodeEpic decodes one raw epic from a fragment.
func DecodeEpic(raw json.RawMessage) (Epic, error) {
	var e Epic
	if err := json.Unmarshal(raw, &e); err != nil {
		return Epic{}, fmt.Errorf("decode epic: %v: %w", err, domain.ErrValidation)
	}
	return e, nil
}

// EpicKey returns a label for an epic payload suitable for error reports:
// its name, else its ID, else its position.
func EpicKey(raw json.RawMessage, index int) string {
	var head struct {
		ID   string `json:"epic_id"`
		Name string `json:"epic_name"`
	}
	_ = json.Unmarshal(raw, &head)
	switch {
	case head.Name != "":
		return head.Name
	case head.ID != "":
		return head.ID
	}
	return fmt.Sprintf("epics[%d]", index)
}

func stripFence(data []byte) []byte {
	if !bytes.HasPrefix(data, []byte("```")) {
		return data
	}
	if nl := bytes.IndexByte(data, '\n'); nl >= 0 {
		data = data[nl+1:]
	} else {
		return nil
	}
	data = bytes.TrimSuffix(bytes.TrimSpace(data), []byte("```"))
	return bytes.TrimSpace(data)
}
