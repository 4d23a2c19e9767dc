// Package artifact stores the files a run leaves behind.
//
// Each run owns a directory under <BaseDir>/runs/<runID>/ holding the
// machine-readable report, the human summary and one test result per
// ticket. Large artifacts are gzip-compressed transparently.
//
//	mgr := artifact.NewManager(artifact.Config{BaseDir: ".pipeline"})
//	err := mgr.SaveJSON(runID, artifact.ReportName, report)
//	data, err := mgr.Load(runID, artifact.SummaryName)
package artifact
