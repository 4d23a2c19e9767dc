// Package task maps pipeline stages to model tiers.
//
// Planning uses the thinking tier, coding and review the default tier, and
// test summarization and notification the fast tier.
//
// Example:
//
//	selector := task.NewSelector(model.WithTaskOverride(task.Review, model.ModelOpus))
//	name := selector.Select(task.Review)
//	apiID := task.APIModel(name)
package task
