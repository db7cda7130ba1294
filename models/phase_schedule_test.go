package models

import (
	"testing"
	"time"
)

func TestMissingStageTypes_AllMissingInCanonicalOrder(t *testing.T) {
	missing := MissingStageTypes(nil)
	if len(missing) != len(CanonicalStageTypes) {
		t.Fatalf("expected %d missing stage types, got %d", len(CanonicalStageTypes), len(missing))
	}
	for i, st := range CanonicalStageTypes {
		if missing[i] != st {
			t.Fatalf("missing[%d] = %s, expected canonical order %s", i, missing[i], st)
		}
	}
}

func TestMissingStageTypes_PartialSet(t *testing.T) {
	provided := []StageType{StageTypePublication, StageTypeClaims, StageTypeFinalResults}
	missing := MissingStageTypes(provided)

	expected := []StageType{StageTypeAccreditation, StageTypeTieEvaluation, StageTypePreliminaryResults, StageTypeClaimResolution}
	if len(missing) != len(expected) {
		t.Fatalf("expected %d missing stage types, got %v", len(expected), missing)
	}
	for i, st := range expected {
		if missing[i] != st {
			t.Fatalf("missing[%d] = %s, expected %s", i, missing[i], st)
		}
	}
}

func TestMissingStageTypes_CompleteSet(t *testing.T) {
	if missing := MissingStageTypes(CanonicalStageTypes); len(missing) != 0 {
		t.Fatalf("expected no missing stage types, got %v", missing)
	}
}

func TestValidateStageDates(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	end := start.Add(48 * time.Hour)

	if err := ValidateStageDates(&start, &end); err != nil {
		t.Fatalf("expected valid range, got %v", err)
	}
	if err := ValidateStageDates(nil, nil); err != nil {
		t.Fatalf("unscheduled stage (no dates) must be allowed, got %v", err)
	}
	if err := ValidateStageDates(&start, nil); err != nil {
		t.Fatalf("half-open range must be allowed, got %v", err)
	}
	if err := ValidateStageDates(&start, &start); err == nil {
		t.Fatalf("expected error when start equals end")
	}
	if err := ValidateStageDates(&end, &start); err == nil {
		t.Fatalf("expected error when start is after end")
	}
}

func TestEarliestStartAndLatestEnd(t *testing.T) {
	day := func(d int) *time.Time {
		ts := time.Date(2026, 3, d, 0, 0, 0, 0, time.UTC)
		return &ts
	}

	input := NewPhase{Stages: []NewPhaseStage{
		{StageType: StageTypePublication, StartDate: day(10), EndDate: day(12)},
		{StageType: StageTypeAccreditation, StartDate: day(3), EndDate: day(5)},
		{StageType: StageTypeClaims}, // unscheduled
	}}
	if got := input.EarliestStart(); got == nil || !got.Equal(*day(3)) {
		t.Fatalf("EarliestStart = %v, expected %v", got, day(3))
	}

	phase := Phase{Stages: []PhaseStage{
		{StageType: StageTypePublication, EndDate: day(12)},
		{StageType: StageTypeFinalResults, EndDate: day(20)},
		{StageType: StageTypeClaims},
	}}
	if got := phase.LatestEnd(); got == nil || !got.Equal(*day(20)) {
		t.Fatalf("LatestEnd = %v, expected %v", got, day(20))
	}

	var undated NewPhase
	if undated.EarliestStart() != nil {
		t.Fatalf("an undated phase has no earliest start")
	}
	if (&Phase{}).LatestEnd() != nil {
		t.Fatalf("an undated phase has no latest end")
	}
}

func TestStageTypeValidate(t *testing.T) {
	for _, st := range CanonicalStageTypes {
		if err := st.Validate(); err != nil {
			t.Fatalf("canonical stage type %s must validate, got %v", st, err)
		}
	}
	if err := StageType("INSCRIPCION").Validate(); err == nil {
		t.Fatalf("expected error for unknown stage type")
	}
}
