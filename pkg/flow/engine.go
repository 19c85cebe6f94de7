package flow

import (
	"strings"
)

// Answer is one recorded key/value pair, in ask order.
type Answer struct {
	Key   string
	Value string
}

// State tracks one call's position in the script and everything the caller
// has answered so far. Each call owns exactly one State; it is never shared
// across calls.
type State struct {
	// MainStep indexes the next unanswered main-sequence question.
	MainStep int
	// Branch is assigned exactly once, when the claim-type answer is
	// recorded, and never changes afterward.
	Branch Branch
	// BranchStep indexes the next unanswered branch question. Only advanced
	// once the main sequence is exhausted and a branch is set.
	BranchStep int
	// Answers holds every recorded answer in insertion order.
	Answers []Answer
}

// NewState returns a State positioned at the start of the script.
func NewState() *State {
	return &State{}
}

// record appends an answer; keys are unique by construction of the script.
func (s *State) record(key, value string) {
	s.Answers = append(s.Answers, Answer{Key: key, Value: value})
}

// Engine walks a State through a Script. All methods are pure with respect
// to the Script; the only mutation target is the State passed in.
type Engine struct {
	script *Script
}

// NewEngine creates an engine for the given script.
func NewEngine(script *Script) *Engine {
	return &Engine{script: script}
}

// InSequence reports whether the state still points at a scripted question,
// i.e. whether the next caller utterance should be recorded as an answer.
func (e *Engine) InSequence(st *State) bool {
	if st.MainStep < len(e.script.Main) {
		return true
	}
	return st.BranchStep < len(e.script.BranchQuestions(st.Branch))
}

// NextPrompt returns the next question to ask. done is true when the script
// is complete and the summary should be sent instead.
func (e *Engine) NextPrompt(st *State) (prompt string, done bool) {
	if st.MainStep < len(e.script.Main) {
		return e.script.Main[st.MainStep].Prompt, false
	}
	if st.Branch == BranchNone {
		return e.script.FallbackPrompt, false
	}
	if branch := e.script.BranchQuestions(st.Branch); st.BranchStep < len(branch) {
		return branch[st.BranchStep].Prompt, false
	}
	return "", true
}

// RecordAnswer stores rawText under the current question's key and advances
// the step pointer. When the claim-type answer is recorded the branch is
// classified and set; that assignment happens exactly once. Input is never
// rejected: whatever the caller said is stored verbatim.
func (e *Engine) RecordAnswer(st *State, rawText string) {
	if st.MainStep < len(e.script.Main) {
		q := e.script.Main[st.MainStep]
		st.record(q.Key, rawText)
		if q.Key == e.script.ClaimTypeKey && st.Branch == BranchUnset {
			st.Branch = ClassifyClaim(rawText)
		}
		st.MainStep++
		return
	}

	branch := e.script.BranchQuestions(st.Branch)
	if st.BranchStep < len(branch) {
		st.record(branch[st.BranchStep].Key, rawText)
		st.BranchStep++
	}
}

// HandleFreeText handles caller input once the script is exhausted (or no
// branch applies). Saying "done" in any casing completes the call; anything
// else gets a reminder prompt and mutates nothing.
func (e *Engine) HandleFreeText(st *State, rawText string) (prompt string, done bool) {
	if strings.Contains(strings.ToLower(rawText), "done") {
		return "", true
	}
	return e.script.MorePrompt, false
}

// Finalize renders the claim summary: every recorded answer in insertion
// order, followed by a closing sentence.
func (e *Engine) Finalize(st *State) string {
	var b strings.Builder
	b.WriteString("Here is the summary of your claim:\n")
	for _, a := range st.Answers {
		b.WriteString("- ")
		b.WriteString(a.Key)
		b.WriteString(": ")
		b.WriteString(a.Value)
		b.WriteString("\n")
	}
	b.WriteString("Thank you! We'll store these details. Have a wonderful day!")
	return b.String()
}
