package task

import "github.com/randalmurphal/llmkit/model"

// Type is the stage an agent call serves.
type Type string

const (
	Plan   Type = "plan"
	Code   Type = "code"
	Test   Type = "test"
	Review Type = "review"
	Notify Type = "notify"
)

// Types lists the stages in run order.
var Types = []Type{Plan, Code, Test, Review, Notify}

// Stages missing here use the default tier.
var stageTiers = map[Type]model.Tier{
	Plan:   model.TierThinking,
	Test:   model.TierFast,
	Notify: model.TierFast,
}

var tierModels = map[model.Tier]model.ModelName{
	model.TierThinking: model.ModelOpus,
	model.TierDefault:  model.ModelSonnet,
	model.TierFast:     model.ModelHaiku,
}

var apiIDs = map[model.ModelName]string{
	model.ModelOpus:   "claude-opus-4-1",
	model.ModelSonnet: "claude-sonnet-4-5",
	model.ModelHaiku:  "claude-haiku-4-5",
}

// Tier is the model tier for stage t.
func Tier(t Type) model.Tier {
	if tier, ok := stageTiers[t]; ok {
		return tier
	}
	return model.TierDefault
}

// DefaultModel is the model chosen for t without overrides.
func DefaultModel(t Type) model.ModelName {
	return tierModels[Tier(t)]
}

// NewSelector builds an llmkit selector that knows the stage tiers.
// Overrides such as model.WithGlobalOverride apply on top.
func NewSelector(opts ...model.SelectorOption) *model.Selector {
	byStage := model.WithTierFunc(func(v any) model.Tier {
		t, _ := v.(Type)
		return Tier(t)
	})
	return model.NewSelector(append([]model.SelectorOption{byStage}, opts...)...)
}

// APIModel maps a short model name to its API identifier. Unknown names
// pass through as already being identifiers.
func APIModel(m model.ModelName) string {
	if id, ok := apiIDs[m]; ok {
		return id
	}
	return string(m)
}
