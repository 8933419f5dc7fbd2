package types

// Identifier names a session either by its short name or by an explicit
// file path, per spec §3 "SessionFile".
type Identifier struct {
	Name string `json:"name,omitempty"`
	Path string `json:"path,omitempty"`
}

func NameIdentifier(name string) Identifier { return Identifier{Name: name} }
func PathIdentifier(path string) Identifier { return Identifier{Path: path} }

// IsPath reports whether the identifier was constructed from an explicit path.
func (i Identifier) IsPath() bool { return i.Path != "" }

// SessionMetadata is the line-0 header of a SessionFile.
type SessionMetadata struct {
	WorkingDir  string `json:"working_dir"`
	Description string `json:"description"`
	ScheduleID  string `json:"schedule_id,omitempty"`

	MessageCount int `json:"message_count"`

	InputTokens  *int `json:"input_tokens,omitempty"`
	OutputTokens *int `json:"output_tokens,omitempty"`
	TotalTokens  *int `json:"total_tokens,omitempty"`

	AccumulatedInputTokens  int `json:"accumulated_input_tokens"`
	AccumulatedOutputTokens int `json:"accumulated_output_tokens"`
	AccumulatedTotalTokens  int `json:"accumulated_total_tokens"`
}

// ApplyUsage folds one turn's provider usage into metadata per spec §4.7.a:
// the latest-turn counters are overwritten, the accumulated counters add.
func (m *SessionMetadata) ApplyUsage(u ProviderUsage) {
	input := u.Usage.InputTokens
	output := u.Usage.OutputTokens
	total := u.Usage.TotalTokens
	if total == 0 {
		total = input + output
	}

	m.InputTokens = &input
	m.OutputTokens = &output
	m.TotalTokens = &total

	m.AccumulatedInputTokens += input
	m.AccumulatedOutputTokens += output
	m.AccumulatedTotalTokens += total
}
