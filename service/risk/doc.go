// Package risk scores how likely an approval is to be wrong or abusive.
//
// The score is a weighted sum of five factors (amount, admin experience,
// resource complexity, historical rejection pattern and time of day) clamped
// to [0,1]. Scoring is bounded by a timeout; when it expires, or a history
// source fails, a heuristic fallback score is returned instead. Every
// assessment is persisted for the external model-training pipeline.
package risk
