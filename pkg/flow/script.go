// Package flow implements the scripted claim-intake conversation: a fixed
// main question sequence, one branch sequence per claim type, and the
// engine that walks a caller through them.
package flow

import "strings"

// Branch identifies which claim-type question sequence a call follows.
type Branch int

const (
	// BranchUnset means the claim-type question has not been answered yet.
	BranchUnset Branch = iota
	// BranchCar is the car accident flow.
	BranchCar
	// BranchTheft is the theft flow.
	BranchTheft
	// BranchVandalism is the vandalism flow.
	BranchVandalism
	// BranchNone means the claim type was not recognized; no branch questions.
	BranchNone
)

// String returns the branch name for logging.
func (b Branch) String() string {
	switch b {
	case BranchCar:
		return "car"
	case BranchTheft:
		return "theft"
	case BranchVandalism:
		return "vandalism"
	case BranchNone:
		return "none"
	}
	return "unset"
}

// ClassifyClaim maps a claim-type answer to a branch by case-insensitive
// substring match. Priority order is fixed: car before theft before
// vandalism, so "car theft" classifies as car.
func ClassifyClaim(text string) Branch {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "car"):
		return BranchCar
	case strings.Contains(lower, "theft"):
		return BranchTheft
	case strings.Contains(lower, "vandal"):
		return BranchVandalism
	}
	return BranchNone
}

// Question pairs an answer key with the prompt that elicits it.
type Question struct {
	Key    string
	Prompt string
}

// Script is the immutable question script for a conversation.
type Script struct {
	// Main is the top-level sequence asked to every caller.
	Main []Question
	// Branches holds the follow-up sequence per recognized claim type.
	Branches map[Branch][]Question
	// ClaimTypeKey is the main-sequence key whose answer selects the branch.
	ClaimTypeKey string
	// FallbackPrompt is asked when no branch applies and the caller has not
	// said "done" yet.
	FallbackPrompt string
	// MorePrompt is asked after all scripted questions when the caller keeps
	// talking without saying "done".
	MorePrompt string
}

// BranchQuestions returns the question sequence for a branch.
// Unset and unrecognized branches have no questions.
func (s *Script) BranchQuestions(b Branch) []Question {
	return s.Branches[b]
}

// ClaimScript returns the auto insurance claim-intake script.
func ClaimScript() *Script {
	return &Script{
		Main: []Question{
			{Key: "policyId", Prompt: "First, can you please tell me your policy ID?"},
			{Key: "claimType", Prompt: "Great, now please describe the nature of your claim: Car accident, theft, or vandalism?"},
		},
		Branches: map[Branch][]Question{
			BranchCar: {
				{Key: "alcoholInvolvement", Prompt: "Was there any alcohol involved? (yes/no/details)"},
				{Key: "accidentSeverity", Prompt: "How severe was the accident? (minor, moderate, total loss?)"},
				{Key: "accidentInjuries", Prompt: "Were there any injuries? If so, please describe briefly."},
				{Key: "accidentComplete", Prompt: "Thanks. Anything else you'd like to add about the accident?"},
			},
			BranchTheft: {
				{Key: "theftLocation", Prompt: "Where did the theft occur? (parking lot, street, home, etc.)"},
				{Key: "theftItemsStolen", Prompt: "Which items or parts were stolen?"},
				{Key: "theftPoliceReport", Prompt: "Have you filed a police report? If yes, do you have a report number?"},
				{Key: "theftComplete", Prompt: "Anything else you wish to add about this theft?"},
			},
			BranchVandalism: {
				{Key: "vandalismDetails", Prompt: "Please describe the vandalism (e.g., broken windows, spray paint)."},
				{Key: "vandalismPoliceReport", Prompt: "Did you report this vandalism to authorities? If so, any reference?"},
				{Key: "vandalismComplete", Prompt: "Understood. Anything else to add regarding this vandalism incident?"},
			},
		},
		ClaimTypeKey:   "claimType",
		FallbackPrompt: "We have minimal details for your claim. Anything else to add? Otherwise say 'done'.",
		MorePrompt:     "Noted. Anything else? Or say 'done' to finalize.",
	}
}
