// Package auth issues and validates approval tokens.
//
// An approval token is an HS256 JWT whose subject is the approver. A token
// may be scoped to one run; an unscoped token may approve any run.
//
//	cfg := auth.TokenConfig{Secret: secret}
//	token, err := auth.IssueApprovalToken(cfg, "alice", "a1b2c3d4")
//
//	claims, err := auth.ValidateApprovalToken(cfg, token)
//	if err == nil && claims.Authorizes("a1b2c3d4") {
//	    // record the approval
//	}
package auth
