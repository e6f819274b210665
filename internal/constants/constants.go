// Package constants holds small fixed values shared across the agent runtime
// that don't belong to any single package's configuration.
package constants

// RecitationReminderTag wraps the periodic goal-reminder text injected into
// the most recent tool-result message every ReminderInterval rounds.
const RecitationReminderTag = "system-reminder"

// SkippedBySteeringText is the literal text used for synthetic tool results
// when a queued steering message preempts the remaining tool calls in an
// assistant turn.
const SkippedBySteeringText = "Skipped due to queued user message."

// NoResultProvidedText is the literal text used for synthetic tool results
// repairing an orphaned tool call during cross-model message transform.
const NoResultProvidedText = "No result provided"

// SplitTurnJoin separates the history summary from the turn-prefix summary
// when a compaction cut falls inside a turn.
const SplitTurnJoin = "\n\n---\n\n**Turn Context (split turn):**\n\n"
