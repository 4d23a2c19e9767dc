// Package ticket defines the unit of work the pipeline delivers and the
// rules for how its status may change.
//
// Status flow:
//
//	pending -> in_progress -> tested -> approved
//	                 |           |
//	                 v           v
//	           test_failed  review_rejected
//	                 \           /
//	                  -> pending (requeue)
//
// Any pending or failed ticket can be escalated once its retry budget is
// spent. Escalated and approved tickets are terminal.
package ticket
