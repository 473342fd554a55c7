// Package analysis implements response ingestion and the asynchronous
// enrichment pipeline. Submissions persist synchronously and announce
// ResponseReceived immediately; eligible responses are then dispatched to a
// bounded worker pool whose completions feed the NLPAnalysisCompleted
// broadcast. Analysis failures are recorded on the response row and never
// fail the submission.
package analysis
