package prompts

// AskUserQuestionTool is the only tool name file-derived prompt detection
// is allowed to surface. Widening this allowlist needs more evidence than
// we have today that polling-inferred prompts for other tools are safe to
// trust (see DESIGN.md).
const AskUserQuestionTool = "ask-user-question"

var fileEligibleTools = map[string]struct{}{
	AskUserQuestionTool: {},
}

// IsFileEligible reports whether a tool_use observed via log polling
// (rather than a live control request or hook callback) is allowed to
// become a prompt.
func IsFileEligible(toolName string) bool {
	_, ok := fileEligibleTools[toolName]
	return ok
}
