package service

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/Strob0t/CaseForge/internal/domain"
	"github.com/Strob0t/CaseForge/internal/domain/project"
	"github.com/Strob0t/CaseForge/internal/port/messagequeue"
)

const fragment = `{
  "project_name": "Radiology Suite",
  "epics": [
    {
      "epic_name": "Image Upload",
      "features": [{
        "feature_name": "DICOM Validation",
        "use_cases": [{
          "title": "Reject malformed header",
          "compliance_mapping": ["IEC 62304:5.1"],
          "test_cases": [
            {"title": "empty file", "test_steps": ["Select", "Upload"], "expected_result": "rejected", "test_type": "security"}
          ]
        }]
      }]
    },
    {
      "epic_name": "Broken",
      "features": [{
        "feature_name": "F",
        "use_cases": [{"title": "U", "test_cases": [
          {"title": "a", "test_steps": ["s"], "expected_result": "r"},
          {"title": "b", "test_steps": ["s"], "expected_result": "r", "test_type": "Smoke"}
        ]}]
      }]
    },
    {"epic_name": "Reporting"}
  ],
  "coverage_summary": "2 of 3 epics"
}`

func TestImportCollectsPerEpicErrors(t *testing.T) {
	svc, _ := newTestHierarchy()
	q := &mockQueue{}
	svc.SetQueue(q)
	p := mustCreate(t, svc, "Radiology Suite")
	ctx := context.Background()

	res, err := NewImporter(svc).ImportRaw(ctx, p.ID, []byte(fragment))
	if err != nil {
		t.Fatalf("ImportRaw: %v", err)
	}
	if res.SuccessCount != 2 || res.ErrorCount != 1 || len(res.ProcessedIDs) != 2 {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.Errors[0].Key != "Broken" {
		t.Errorf("expected key Broken, got %q", res.Errors[0].Key)
	}
	want := `epics[1].features[0].use_cases[0].test_cases[1]: unknown test_type "Smoke"`
	if !strings.HasPrefix(res.Errors[0].Error, want) {
		t.Errorf("expected error starting with %q, got %q", want, res.Errors[0].Error)
	}

	got, _ := svc.GetProject(ctx, p.ID)
	if len(got.Epics) != 2 || got.Epics[0].Name != "Image Upload" || got.Epics[1].Name != "Reporting" {
		t.Fatalf("unexpected epics %+v", got.Epics)
	}
	if got.CoverageSummary != "2 of 3 epics" {
		t.Errorf("coverage summary not written: %q", got.CoverageSummary)
	}
	tc := got.Epics[0].Features[0].UseCases[0].TestCases[0]
	if tc.ID == "" || tc.TestType != "Security" {
		t.Errorf("test case not prepared: %+v", tc)
	}
	if !slices.Contains(q.subjects(), messagequeue.SubjectImportDone) {
		t.Errorf("expected import event, got %v", q.subjects())
	}
}

func TestImportAppendsToExistingEpics(t *testing.T) {
	svc, _ := newTestHierarchy()
	p := mustCreate(t, svc, "Radiology Suite")
	ctx := context.Background()

	const m = 2
	if _, err := svc.AddEpic(ctx, p.ID, project.Epic{ID: "E001", Name: "Image Upload"}); err != nil {
		t.Fatal(err)
	}
	fid, _ := svc.AddFeature(ctx, p.ID, "E001", project.Feature{Name: "DICOM Validation"})
	uid, _ := svc.AddUseCase(ctx, p.ID, "E001", fid, project.UseCase{Title: "Reject malformed header"})
	if _, err := svc.AddTestCase(ctx, p.ID, "E001", fid, uid, testCase("empty file")); err != nil {
		t.Fatal(err)
	}
	if err := svc.UpdateEpicJiraStatus(ctx, p.ID, "E001", project.JiraPushed, "RAD-7", "qa"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.AddEpic(ctx, p.ID, project.Epic{Name: "Reporting"}); err != nil {
		t.Fatal(err)
	}

	// Pipeline output reuses E001 for every run, and here for both epics.
	const again = `{"epics": [
	  {"epic_id": "E001", "epic_name": "Image Upload v2"},
	  {"epic_id": "E001", "epic_name": "Audit Trail"}
	]}`
	const k = 2
	res, err := NewImporter(svc).ImportRaw(ctx, p.ID, []byte(again))
	if err != nil {
		t.Fatalf("ImportRaw: %v", err)
	}
	if res.SuccessCount != k || res.ErrorCount != 0 {
		t.Fatalf("unexpected result %+v", res)
	}

	got, _ := svc.GetProject(ctx, p.ID)
	if len(got.Epics) != m+k {
		t.Fatalf("expected %d epics, got %d", m+k, len(got.Epics))
	}
	ids := map[string]bool{}
	for _, e := range got.Epics {
		ids[e.ID] = true
	}
	if len(ids) != m+k {
		t.Errorf("expected distinct epic ids, got %v", ids)
	}
	for _, id := range res.ProcessedIDs {
		if id == "E001" || !ids[id] {
			t.Errorf("processed id %q should be a fresh stored id", id)
		}
	}

	first := got.Epics[0]
	if first.ID != "E001" || first.Name != "Image Upload" {
		t.Fatalf("existing epic replaced: %+v", first)
	}
	if first.JiraStatus != project.JiraPushed || first.JiraIssueKey != "RAD-7" {
		t.Errorf("existing sync state lost: %+v", first.JiraSyncState)
	}
	if n := len(first.Features[0].UseCases[0].TestCases); n != 1 {
		t.Errorf("existing test cases lost, got %d", n)
	}
}

func TestImportRejectsDuplicateNestedIDs(t *testing.T) {
	svc, _ := newTestHierarchy()
	p := mustCreate(t, svc, "x")
	const dup = `{"epics": [{"epic_name": "E", "features": [
	  {"feature_id": "F001", "feature_name": "a"},
	  {"feature_id": "F001", "feature_name": "b"}
	]}]}`

	res, err := NewImporter(svc).ImportRaw(context.Background(), p.ID, []byte(dup))
	if err != nil {
		t.Fatalf("ImportRaw: %v", err)
	}
	if res.ErrorCount != 1 || !strings.Contains(res.Errors[0].Error, `epics[0].features[1]: duplicate id "F001"`) {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestImportMissingProject(t *testing.T) {
	svc, _ := newTestHierarchy()
	res, err := NewImporter(svc).ImportRaw(context.Background(), "PROJ_missing", []byte(fragment))
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if res.SuccessCount != 0 {
		t.Errorf("expected nothing imported, got %+v", res)
	}
}

func TestImportAbortsOnOutage(t *testing.T) {
	svc, st := newTestHierarchy()
	p := mustCreate(t, svc, "x")
	st.updateErr = domain.ErrUnavailable

	_, err := NewImporter(svc).ImportRaw(context.Background(), p.ID, []byte(fragment))
	if !errors.Is(err, domain.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestImportRejectsMalformedFragment(t *testing.T) {
	svc, _ := newTestHierarchy()
	p := mustCreate(t, svc, "x")
	_, err := NewImporter(svc).ImportRaw(context.Background(), p.ID, []byte(`{"project_name": "x"}`))
	if !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}

func TestFragmentSubscriber(t *testing.T) {
	svc, st := newTestHierarchy()
	p := mustCreate(t, svc, "x")
	q := &mockQueue{}
	im := NewImporter(svc)
	ctx := context.Background()

	if _, err := im.SubscribeFragments(ctx, q); err != nil {
		t.Fatalf("SubscribeFragments: %v", err)
	}
	handler := q.handlers[messagequeue.SubjectPipelineFragment]
	if handler == nil {
		t.Fatal("no handler registered")
	}

	// The fragment arrives as a fenced string, as the pipeline emits it.
	wrapped, _ := json.Marshal("```json\n" + fragment + "\n```")
	msg, _ := json.Marshal(messagequeue.PipelineFragmentPayload{ProjectID: p.ID, Fragment: wrapped})
	if err := handler(ctx, messagequeue.SubjectPipelineFragment, msg); err != nil {
		t.Fatalf("handler: %v", err)
	}
	got, _ := svc.GetProject(ctx, p.ID)
	if len(got.Epics) != 2 {
		t.Errorf("expected 2 imported epics, got %d", len(got.Epics))
	}

	// Unknown projects are dropped, outages are redelivered.
	msg, _ = json.Marshal(messagequeue.PipelineFragmentPayload{ProjectID: "PROJ_gone", Fragment: json.RawMessage(fragment)})
	if err := handler(ctx, messagequeue.SubjectPipelineFragment, msg); err != nil {
		t.Errorf("missing project should be dropped, got %v", err)
	}
	st.getErr = domain.ErrUnavailable
	msg, _ = json.Marshal(messagequeue.PipelineFragmentPayload{ProjectID: p.ID, Fragment: json.RawMessage(fragment)})
	if err := handler(ctx, messagequeue.SubjectPipelineFragment, msg); !errors.Is(err, domain.ErrUnavailable) {
		t.Errorf("expected outage to be returned, got %v", err)
	}
}
