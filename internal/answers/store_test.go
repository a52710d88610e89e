package answers

import (
	"testing"

	"github.com/acadio/assess-backend/internal/model"
	"github.com/google/uuid"
)

func codeAnswer(src string, results *model.TestRunSummary) model.Answer {
	return model.Answer{
		Kind: model.AnswerKindCode,
		Code: &model.CodeAnswer{Source: src, Language: "python", Results: results},
	}
}

func TestSetCodePreservesResults(t *testing.T) {
	store := NewStore()
	key := Key(uuid.New())

	results := &model.TestRunSummary{TotalScore: 3, MaxScore: 4, PassedCount: 2, PartialCount: 1}
	store.Set(key, codeAnswer("print(1)", nil))
	store.AttachResults(key, results)

	// Editing the source must keep the previously computed results.
	store.Set(key, codeAnswer("print(2)", nil))

	got, ok := store.Get(key)
	if !ok {
		t.Fatal("answer missing after update")
	}
	if got.Code.Source != "print(2)" {
		t.Errorf("source = %q, want %q", got.Code.Source, "print(2)")
	}
	if got.Code.Results != results {
		t.Error("results were dropped by a code edit")
	}

	// An explicitly attached summary replaces the old one.
	newer := &model.TestRunSummary{TotalScore: 4, MaxScore: 4, PassedCount: 3}
	store.Set(key, codeAnswer("print(3)", newer))
	got, _ = store.Get(key)
	if got.Code.Results != newer {
		t.Error("explicit results were not applied")
	}
}

func TestAttachResultsIgnoresNonCode(t *testing.T) {
	store := NewStore()
	key := Key(uuid.New())
	store.Set(key, model.Answer{Kind: model.AnswerKindText, Text: &model.TextAnswer{Text: "hi"}})

	store.AttachResults(key, &model.TestRunSummary{TotalScore: 1})

	got, _ := store.Get(key)
	if got.Kind != model.AnswerKindText || got.Text.Text != "hi" {
		t.Errorf("text answer corrupted: %+v", got)
	}
}

func TestAudioMergeKeepsRecording(t *testing.T) {
	store := NewStore()
	key := Key(uuid.New())

	store.Set(key, model.Answer{
		Kind:  model.AnswerKindAudio,
		Audio: &model.AudioAnswer{Path: "/uploads/a.webm", MIME: "audio/webm"},
	})
	// A note-only patch must not drop the blob reference.
	store.Set(key, model.Answer{
		Kind:  model.AnswerKindAudio,
		Audio: &model.AudioAnswer{Note: "spoke about topic 2"},
	})

	got, _ := store.Get(key)
	if got.Audio.Path != "/uploads/a.webm" || got.Audio.MIME != "audio/webm" {
		t.Errorf("recording lost on note patch: %+v", got.Audio)
	}
	if got.Audio.Note != "spoke about topic 2" {
		t.Errorf("note not merged: %+v", got.Audio)
	}
}

func TestCompletionCounting(t *testing.T) {
	store := NewStore()

	choiceQ := model.Question{ID: uuid.New(), QuestionType: model.QuestionTypeChoice}
	textQ := model.Question{ID: uuid.New(), QuestionType: model.QuestionTypeFreeText}
	audioQ := model.Question{ID: uuid.New(), QuestionType: model.QuestionTypeAudio}
	codeQ := model.Question{ID: uuid.New(), QuestionType: model.QuestionTypeCode}
	questions := []model.Question{choiceQ, textQ, audioQ, codeQ}

	if got := store.CompletionCount(questions); got != 0 {
		t.Fatalf("empty store completion = %d, want 0", got)
	}

	store.Set(Key(choiceQ.ID), model.Answer{Kind: model.AnswerKindChoice, Choice: &model.ChoiceAnswer{Selected: "B"}})
	store.Set(Key(textQ.ID), model.Answer{Kind: model.AnswerKindText, Text: &model.TextAnswer{Text: ""}})
	store.Set(Key(audioQ.ID), model.Answer{Kind: model.AnswerKindAudio, Audio: &model.AudioAnswer{Path: "/uploads/x.ogg", MIME: "audio/ogg"}})
	// Code with source but no results must NOT count as answered.
	store.Set(Key(codeQ.ID), codeAnswer("print(1)", nil))

	if got := store.CompletionCount(questions); got != 3 {
		t.Fatalf("completion before validation = %d, want 3", got)
	}

	store.AttachResults(Key(codeQ.ID), &model.TestRunSummary{TotalScore: 1, MaxScore: 1, PassedCount: 1})
	if got := store.CompletionCount(questions); got != 4 {
		t.Fatalf("completion after validation = %d, want 4", got)
	}
}

func TestKindSwitchReplacesWholesale(t *testing.T) {
	store := NewStore()
	key := Key(uuid.New())

	store.Set(key, model.Answer{Kind: model.AnswerKindChoice, Choice: &model.ChoiceAnswer{Selected: "A"}})
	store.Set(key, model.Answer{Kind: model.AnswerKindText, Text: &model.TextAnswer{Text: "changed my mind"}})

	got, _ := store.Get(key)
	if got.Kind != model.AnswerKindText || got.Choice != nil {
		t.Errorf("kind switch left stale variant: %+v", got)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	store := NewStore()
	key := Key(uuid.New())
	store.Set(key, model.Answer{Kind: model.AnswerKindChoice, Choice: &model.ChoiceAnswer{Selected: "A"}})

	snap := store.Snapshot()
	delete(snap, key)

	if _, ok := store.Get(key); !ok {
		t.Error("mutating the snapshot affected the store")
	}
}
