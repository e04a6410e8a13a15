/*
Package request implements the control plane's unit of worker-directed
work. A Request is created against a specific worker,
validated synchronously (unknown worker, disabled worker), then run
with a caller-supplied Execute closure that performs the actual RPC
over pkg/wire. Six first-class kinds plus the Sql* family share one
envelope and one state machine:

	CREATED -> IN_PROGRESS -> FINISHED(ext) | CANCELLED

Cancellation is cooperative and idempotent: Cancel closes the request's
Done channel immediately if it is still CREATED, or cancels the
in-flight context if IN_PROGRESS, whichever observer wins the race.

This package does not decide which worker to target and does not
retry a failed request.
*/
package request
