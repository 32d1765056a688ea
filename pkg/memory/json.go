package memory

import "encoding/json"

// UnmarshalJSON decodes a memory, defaulting fields that legacy records lack
// and clamping scores into range.
func (m *SemanticMemory) UnmarshalJSON(data []byte) error {
	type alias SemanticMemory
	raw := struct {
		*alias
		ImportanceScore *float64 `json:"importance_score"`
		Confidence      *float64 `json:"confidence"`
		DecayRate       *float64 `json:"decay_rate"`
		Type            string   `json:"type"`
		Priority        string   `json:"priority"`
	}{alias: (*alias)(m)}

	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	m.Type, _ = ParseMemoryType(raw.Type)
	m.Priority, _ = ParsePriority(raw.Priority)
	m.ImportanceScore = floatOr(raw.ImportanceScore, DefaultImportance)
	m.Confidence = floatOr(raw.Confidence, DefaultConfidence)
	m.DecayRate = floatOr(raw.DecayRate, DefaultDecayRate)
	if m.Tags == nil {
		m.Tags = []string{}
	}
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = m.CreatedAt
	}

	m.Clamp()
	return nil
}

// UnmarshalJSON decodes an action node; a missing success flag means true.
func (n *ActionNode) UnmarshalJSON(data []byte) error {
	type alias ActionNode
	raw := struct {
		*alias
		Success *bool `json:"success"`
	}{alias: (*alias)(n)}

	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	n.Success = raw.Success == nil || *raw.Success
	return nil
}

// UnmarshalJSON decodes an episode with legacy defaults.
func (e *Episode) UnmarshalJSON(data []byte) error {
	type alias Episode
	raw := struct {
		*alias
		ImportanceScore *float64 `json:"importance_score"`
	}{alias: (*alias)(e)}

	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	e.ImportanceScore = Clamp01(floatOr(raw.ImportanceScore, DefaultImportance), DefaultImportance)
	if e.Outcome == "" {
		e.Outcome = DefaultOutcome
	}
	if e.Source == "" {
		e.Source = DefaultEpisodeSource
	}
	if e.ActionNodes == nil {
		e.ActionNodes = []ActionNode{}
	}
	if e.Entities == nil {
		e.Entities = []string{}
	}
	if e.ToolsUsed == nil {
		e.ToolsUsed = []string{}
	}
	if e.LinkedMemoryIDs == nil {
		e.LinkedMemoryIDs = []string{}
	}
	return nil
}

// UnmarshalJSON decodes a scratchpad with legacy defaults.
func (s *Scratchpad) UnmarshalJSON(data []byte) error {
	type alias Scratchpad
	raw := struct{ *alias }{alias: (*alias)(s)}

	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	if s.UserID == "" {
		s.UserID = DefaultUserID
	}
	if s.ActiveProjects == nil {
		s.ActiveProjects = []string{}
	}
	if s.OpenQuestions == nil {
		s.OpenQuestions = []string{}
	}
	if s.NextSteps == nil {
		s.NextSteps = []string{}
	}
	return nil
}

// UnmarshalJSON decodes an attachment, normalizing its direction.
func (a *Attachment) UnmarshalJSON(data []byte) error {
	type alias Attachment
	raw := struct {
		*alias
		Direction string `json:"direction"`
	}{alias: (*alias)(a)}

	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	a.Direction = ParseDirection(raw.Direction)
	if a.OriginalFilename == "" {
		a.OriginalFilename = a.Filename
	}
	if a.Tags == nil {
		a.Tags = []string{}
	}
	if a.LinkedMemoryIDs == nil {
		a.LinkedMemoryIDs = []string{}
	}
	return nil
}

func floatOr(v *float64, fallback float64) float64 {
	if v == nil {
		return fallback
	}
	return *v
}
