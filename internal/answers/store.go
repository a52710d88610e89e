// Package answers holds the in-session response collection for one attempt.
//
// All keys are the canonical string form of the question UUID; callers never
// index the store with raw or numeric identifiers. This is what keeps the
// client-side keys and the grading-side lookup in agreement.
package answers

import (
	"github.com/acadio/assess-backend/internal/model"
	"github.com/google/uuid"
)

// Store is a keyed collection of per-question answers with merge-on-set
// semantics. It is not safe for concurrent use; the session controller
// serializes all access.
type Store struct {
	byQuestion map[string]model.Answer
}

// NewStore creates an empty answer store.
func NewStore() *Store {
	return &Store{byQuestion: make(map[string]model.Answer)}
}

// Key normalizes a question ID to its canonical store key.
func Key(questionID uuid.UUID) string {
	return questionID.String()
}

// ParseKey parses a raw question ID string. Keying always goes through the
// parsed form so equivalent spellings of the same UUID cannot produce two
// entries for one question.
func ParseKey(raw string) (uuid.UUID, error) {
	return uuid.Parse(raw)
}

// Set merges an answer into the existing entry for the question. Merge rules
// per variant:
//   - CHOICE: the selected label replaces the previous one.
//   - TEXT: the text replaces the previous one.
//   - AUDIO: zero-valued fields inherit from the existing clip, so attaching
//     a note does not drop the recording and vice versa.
//   - CODE: source and language always update, but an existing Results is
//     preserved unless the incoming answer carries its own. A code edit must
//     not invisibly wipe evidence of an already-graded run.
//
// Setting an answer of a different kind replaces the entry wholesale.
func (s *Store) Set(key string, in model.Answer) {
	existing, ok := s.byQuestion[key]
	if !ok || existing.Kind != in.Kind {
		s.byQuestion[key] = in
		return
	}

	switch in.Kind {
	case model.AnswerKindAudio:
		if in.Audio != nil && existing.Audio != nil {
			merged := *existing.Audio
			if in.Audio.Path != "" {
				merged.Path = in.Audio.Path
				merged.MIME = in.Audio.MIME
			}
			if in.Audio.Note != "" {
				merged.Note = in.Audio.Note
			}
			in.Audio = &merged
		}
	case model.AnswerKindCode:
		if in.Code != nil && in.Code.Results == nil && existing.Code != nil {
			in.Code.Results = existing.Code.Results
		}
	}

	s.byQuestion[key] = in
}

// AttachResults explicitly replaces the grading results on a code answer.
// This is the only way Results changes once set.
func (s *Store) AttachResults(key string, results *model.TestRunSummary) {
	existing, ok := s.byQuestion[key]
	if !ok || existing.Kind != model.AnswerKindCode || existing.Code == nil {
		return
	}
	code := *existing.Code
	code.Results = results
	existing.Code = &code
	s.byQuestion[key] = existing
}

// Get returns the current answer for a question, if any.
func (s *Store) Get(key string) (model.Answer, bool) {
	a, ok := s.byQuestion[key]
	return a, ok
}

// Len returns the number of stored answers.
func (s *Store) Len() int {
	return len(s.byQuestion)
}

// Snapshot returns a copy of the stored answers for payload building.
func (s *Store) Snapshot() map[string]model.Answer {
	out := make(map[string]model.Answer, len(s.byQuestion))
	for k, v := range s.byQuestion {
		out[k] = v
	}
	return out
}

// Restore replaces the store contents, used when resuming from autosave.
func (s *Store) Restore(saved map[string]model.Answer) {
	s.byQuestion = make(map[string]model.Answer, len(saved))
	for k, v := range saved {
		s.byQuestion[k] = v
	}
}

// IsAnswered reports whether the stored answer qualifies as complete for the
// given question type. A code question counts only once it has grading
// results; code text alone is not a complete answer.
func (s *Store) IsAnswered(key string, qt model.QuestionType) bool {
	a, ok := s.byQuestion[key]
	if !ok {
		return false
	}

	switch qt {
	case model.QuestionTypeChoice:
		return a.Kind == model.AnswerKindChoice && a.Choice != nil && a.Choice.Selected != ""
	case model.QuestionTypeFreeText:
		return a.Kind == model.AnswerKindText && a.Text != nil
	case model.QuestionTypeAudio:
		return a.Kind == model.AnswerKindAudio && a.Audio != nil && a.Audio.Path != ""
	case model.QuestionTypeCode:
		return a.Kind == model.AnswerKindCode && a.Code != nil && a.Code.Results != nil
	default:
		return false
	}
}

// CompletionCount returns how many of the given questions have a qualifying
// answer.
func (s *Store) CompletionCount(questions []model.Question) int {
	count := 0
	for i := range questions {
		if s.IsAnswered(Key(questions[i].ID), questions[i].QuestionType) {
			count++
		}
	}
	return count
}
