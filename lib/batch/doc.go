// Package batch implements the multi-result aggregator shared by all
// sub-operations of one client call.
//
// A batch is one logical operation issued by the caller (for example a get for
// ten keys) that fans out into several engine level sub-operations. Every
// completion for the batch is folded into the same MultiResult:
//
//   - a key -> result.Result mapping, one record per key
//   - AllOk, false as soon as a sub-operation failed (quiet mode ignores "not found"
//     on read and delete operations)
//   - FirstError, the first failing record for fast single error reporting
//   - Exceptions, fatal errors (decode failures, inconsistent completions) that are
//     reported separately from per-key failures
//   - Remaining, the number of sub-operations that have not completed yet
//
// Usage:
//
//	mres := batch.New(batch.FlagQuiet, batch.Durability{})
//	// ... the dispatcher issues commands with mres as cookie ...
//	mres.Wait()
//	if !mres.AllOk() {
//	    fmt.Println(mres.FirstError())
//	}
//
// AsyncResult wraps a MultiResult and invokes a callback once all sub-operations
// completed instead of requiring the issuer to block in Wait.
package batch
