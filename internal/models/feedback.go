package models

// ScoreBand classifies a 0-10 score for presentation.
type ScoreBand string

const (
	ScoreExcellent ScoreBand = "excellent"
	ScoreGood      ScoreBand = "good"
	ScoreNeedsWork ScoreBand = "needs_work"
)

// BandFor classifies a score on the 0-10 scale.
func BandFor(score float64) ScoreBand {
	switch {
	case score >= 8:
		return ScoreExcellent
	case score >= 6:
		return ScoreGood
	default:
		return ScoreNeedsWork
	}
}

// TalkRatio is the share of speaking time, in percent.
type TalkRatio struct {
	Seller float64 `json:"seller"`
	Client float64 `json:"client"`
}

// TimelineEvent is a scored moment of the conversation.
type TimelineEvent struct {
	Timestamp   string  `json:"timestamp"`
	Type        string  `json:"type,omitempty"`
	Description string  `json:"description"`
	Score       float64 `json:"score"`
	Suggestion  string  `json:"suggestion,omitempty"`
}

// StructurePhase is one phase of a sector-specific conversation structure.
type StructurePhase struct {
	Name       string  `json:"name"`
	Duration   float64 `json:"duration"`
	TargetTime float64 `json:"target_time"`
	Completed  bool    `json:"completed"`
}

// StructureAnalysis compares the conversation against a target structure.
type StructureAnalysis struct {
	Phases          []StructurePhase `json:"phases,omitempty"`
	TotalTime       float64          `json:"total_time"`
	TargetTotalTime float64          `json:"target_total_time"`
}

// RelationshipMetrics measures rapport with the simulated client.
type RelationshipMetrics struct {
	TrustIndex        float64  `json:"trust_index"`
	TrustFactors      []string `json:"trust_factors,omitempty"`
	ReferralPotential float64  `json:"referral_potential"`
	ReferralActions   []string `json:"referral_actions,omitempty"`
}

// Analogy is a persuasive analogy detected in the conversation.
type Analogy struct {
	Text        string  `json:"text"`
	Context     string  `json:"context,omitempty"`
	ImpactScore float64 `json:"impact_score"`
}

// Story is a storytelling passage detected in the conversation.
type Story struct {
	Summary        string  `json:"summary"`
	StructureScore float64 `json:"structure_score,omitempty"`
}

// Moment is the standout moment of the conversation.
type Moment struct {
	Timestamp   string `json:"timestamp"`
	Description string `json:"description"`
	Impact      string `json:"impact"`
}

// AdaptiveReaction is a difficulty adjustment made by the avatar.
type AdaptiveReaction struct {
	Timestamp string `json:"timestamp"`
	Trigger   string `json:"trigger"`
	Reaction  string `json:"reaction"`
}

// AdaptiveAnalysis tracks how the avatar's difficulty evolved.
type AdaptiveAnalysis struct {
	InitialDifficulty float64            `json:"initial_difficulty"`
	FinalDifficulty   float64            `json:"final_difficulty"`
	Reactions         []AdaptiveReaction `json:"reactions,omitempty"`
}

// Feedback is the server-computed evaluation of one ended conversation. It is created
// asynchronously after the conversation ends and is immutable once created.
type Feedback struct {
	ID                  int64                `json:"id"`
	ConversationID      int64                `json:"conversation_id"`
	OverallScore        float64              `json:"overall_score"`
	ScoresByCategory    map[string]float64   `json:"scores_by_category,omitempty"`
	Strengths           []string             `json:"strengths,omitempty"`
	AreasForImprovement []string             `json:"areas_for_improvement,omitempty"`
	Suggestions         []string             `json:"suggestions,omitempty"`
	TalkRatio           *TalkRatio           `json:"talk_ratio,omitempty"`
	TimelineEvents      []TimelineEvent      `json:"timeline_events,omitempty"`
	StructureAnalysis   *StructureAnalysis   `json:"structure_analysis,omitempty"`
	RelationshipMetrics *RelationshipMetrics `json:"relationship_metrics,omitempty"`
	Analogies           []Analogy            `json:"analogies,omitempty"`
	Storytelling        []Story              `json:"storytelling,omitempty"`
	PersuasionScore     float64              `json:"persuasion_score,omitempty"`
	BrilliantMoment     *Moment              `json:"moment_brillant,omitempty"`
	AdaptiveAnalysis    *AdaptiveAnalysis    `json:"adaptive_analysis,omitempty"`
	Conversation        *Conversation        `json:"conversation,omitempty"`
}

// IsEmpty reports whether f carries no evaluation yet.
func (f *Feedback) IsEmpty() bool {
	if f == nil {
		return true
	}
	return f.ID == 0 && len(f.ScoresByCategory) == 0 && f.OverallScore == 0 &&
		len(f.Strengths) == 0 && len(f.AreasForImprovement) == 0 && len(f.Suggestions) == 0
}

// GenerateFeedbackResult is the answer to feedback.generate.
type GenerateFeedbackResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}
