// Package moderation decides whether a user-submitted comment violates
// content policy. It combines cheap deterministic heuristics (length,
// repeated characters, shouting, offensive-term lexicon) with a remote
// language-model classifier whose free-form replies are recovered by an
// escalating parser, and falls back to heuristic-only judgment when the model
// path fails. Every call ends in exactly one Result; expected failures
// (network, unparseable output) never escape as errors.
package moderation
