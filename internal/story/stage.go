package story

// Stage is the narrative phase a story is written in.
type Stage string

// Narrative stages in order of appearance.
const (
	StageInitial   Stage = "initial"
	StageDeepening Stage = "deepening"
	StageSurreal   Stage = "surreal"
	StageMythic    Stage = "mythic"
)

// SelectStage maps a 1-based sequence number within a (user, category)
// pair to its stage: 1-2 initial, 3-4 deepening, 5-6 surreal, 7+ mythic.
func SelectStage(sequence int) Stage {
	switch {
	case sequence <= 2:
		return StageInitial
	case sequence <= 4:
		return StageDeepening
	case sequence <= 6:
		return StageSurreal
	default:
		return StageMythic
	}
}
