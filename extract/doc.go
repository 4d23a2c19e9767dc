// Package extract recovers structured data from free-form worker output.
//
// Workers answer in prose, sometimes with a fenced block, sometimes with
// bare JSON. Extract and its typed helpers find the first JSON object or
// array in that text and report absence with a boolean rather than an
// error, so callers can treat "nothing usable" as an ordinary outcome:
//
//	res, ok := extract.Decode[codeResult](raw)
//	if !ok {
//	    // retryable failure
//	}
package extract
