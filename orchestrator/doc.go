// Package orchestrator drives one request's lifecycle: build context,
// look up the cache, replay or run the agent live, and settle the
// caller's future with a validated result or a structured failure.
//
//	NEW --build context--> READY
//	READY --cache lookup--> (HIT) --> REPLAY --ok--> RETURN
//	                                       --mismatch-->
//	READY --(MISS or mismatch)--> LIVE --agent completes--> COMPLETING
//	COMPLETING --set_result ok--> RETURN
//	COMPLETING --bail / agent exit / abort--> FAIL
package orchestrator
