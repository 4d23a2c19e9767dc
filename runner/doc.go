// Package runner drives pipeline runs end to end.
//
// A Driver owns the compiled workflow graph and its checkpoint store. It
// starts runs from a spec file, resumes them, records human approval,
// writes per-run artifacts and maps outcomes to process exit codes.
// Services assembles a Driver and its collaborators from config.Settings.
//
// Example usage:
//
//	svc, err := runner.NewServices(ctx, settings, logger)
//	if err != nil {
//	    return err
//	}
//	defer svc.Close()
//
//	d, _ := svc.Driver(runner.WithProgress(func(node string) { fmt.Println(node) }))
//	out, err := d.Start(ctx, "SPEC.md")
//	os.Exit(int(out.Exit))
package runner
