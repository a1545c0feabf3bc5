package models

import (
	"reflect"
	"testing"
)

func TestNewConversationState(t *testing.T) {
	state := NewConversationState()
	if state.Phase != PhaseIntroduction {
		t.Errorf("new state phase = %s", state.Phase)
	}
	if state.GatheredInformation == nil || len(state.GatheredInformation) != 0 {
		t.Error("gathered information must start empty and non-nil")
	}
	if state.MissingInfo == nil {
		t.Error("missing info must start non-nil")
	}
}

func TestRecomputeMissingInfo(t *testing.T) {
	schema := validSchema()
	state := NewConversationState()

	state.RecomputeMissingInfo(&schema)
	if want := []string{"budget", "email", "name"}; !reflect.DeepEqual(state.MissingInfo, want) {
		t.Errorf("MissingInfo = %v, want %v", state.MissingInfo, want)
	}

	state.GatheredInformation["email"] = "jane@example.com"
	state.RecomputeMissingInfo(&schema)
	if want := []string{"budget", "name"}; !reflect.DeepEqual(state.MissingInfo, want) {
		t.Errorf("MissingInfo = %v, want %v", state.MissingInfo, want)
	}

	state.GatheredInformation["name"] = "Jane Doe"
	state.GatheredInformation["budget"] = "500"
	state.RecomputeMissingInfo(&schema)
	if len(state.MissingInfo) != 0 {
		t.Errorf("MissingInfo = %v, want empty", state.MissingInfo)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	original := NewConversationState()
	original.GatheredInformation["name"] = "Jane Doe"
	original.MissingInfo = []string{"email"}
	original.UploadedFiles = []UploadedFile{{Filename: "leak.jpg"}}
	original.Phase = PhaseCollecting

	clone := original.Clone()
	clone.GatheredInformation["email"] = "jane@example.com"
	clone.MissingInfo = append(clone.MissingInfo, "budget")
	clone.UploadedFiles = append(clone.UploadedFiles, UploadedFile{Filename: "quote.pdf"})
	clone.Phase = PhaseConfirmation

	if _, ok := original.GatheredInformation["email"]; ok {
		t.Error("clone map mutation leaked into original")
	}
	if len(original.MissingInfo) != 1 {
		t.Error("clone slice mutation leaked into original")
	}
	if len(original.UploadedFiles) != 1 {
		t.Error("clone file append leaked into original")
	}
	if original.Phase != PhaseCollecting {
		t.Error("clone phase change leaked into original")
	}
}

func TestIsValidPhase(t *testing.T) {
	for _, p := range []Phase{PhaseIntroduction, PhaseCollecting, PhaseAnsweringQuestions, PhaseConfirmation, PhaseCompleted} {
		if !IsValidPhase(p) {
			t.Errorf("IsValidPhase(%s) = false", p)
		}
	}
	if IsValidPhase("banana") || IsValidPhase("") {
		t.Error("invalid phases must be rejected")
	}
}
