// Package agent defines the contract between the orchestrator and
// whatever drives an LLM against the Tool Surface — in-process or over
// a local socket. No concrete LLM-backed adapter ships here: building
// and maintaining one is out of scope. agent/agenttest supplies a
// deterministic fake used by this module's own tests.
package agent
