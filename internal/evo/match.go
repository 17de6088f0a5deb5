package evo

import "palaestra/internal/model"

// MatchResult reports the outcome of one match for the genome under
// evaluation.
type MatchResult struct {
	// Genome identifies the evaluated individual by content.
	Genome model.Genome
	// Won reports whether the evaluated genome won the match.
	Won bool
	// InGoal reports whether a win ended exactly in the goal rather than at
	// the round limit.
	InGoal bool
	// Turn is the turn count at match end.
	Turn int
}

// EvaluationResult carries the trainer's verdict on a finished match.
type EvaluationResult struct {
	// Fitness is recorded for the evaluated genome.
	Fitness float32
	// CounterDelta advances the evaluation slot; zero records fitness
	// without advancing.
	CounterDelta int
	// SkipToNextGeneration forces a generation boundary on the next
	// advance regardless of the counter position.
	SkipToNextGeneration bool
}
