package dice

import "go.uber.org/zap"

// Roller wraps a Source and logger to provide logged die rolls.
type Roller struct {
	src    Source
	logger *zap.Logger
}

// NewLoggedRoller creates a Roller that rolls with src and logs each roll to logger.
//
// Precondition: src and logger must be non-nil.
func NewLoggedRoller(src Source, logger *zap.Logger) *Roller {
	return &Roller{src: src, logger: logger}
}

// Face rolls a zero-based die with the given number of sides and returns a
// value in [0, sides). The roll is logged at debug level under purpose.
//
// Precondition: sides > 0.
func (r *Roller) Face(sides int, purpose string) int {
	v := r.src.Intn(sides)
	r.logger.Debug("dice roll",
		zap.String("purpose", purpose),
		zap.Int("sides", sides),
		zap.Int("face", v),
	)
	return v
}
