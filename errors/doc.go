// Package errors classifies failures from the pipeline packages into
// CLIErrors: a category sentinel, a message for a person and a suggestion
// for what to do next. The command line calls ForCLI on every error it
// prints; ErrorMessenger lets other front ends reword the messages.
//
//	if err := driver.Resume(ctx, runID); err != nil {
//		return errors.ForCLI(err, errors.Target{RunID: runID})
//	}
package errors
