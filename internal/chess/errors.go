package chess

// Errors
var (
	ErrInvalidPosition   = errf("invalid position")
	ErrIllegalMove       = errf("illegal move")
	ErrTimerNotAvailable = errf("timer not available for untimed game")
	ErrGameNotInPlay     = errf("game is not in play")
	ErrNothingToUndo     = errf("no ply to take back")
)

type staticErr string

func (e staticErr) Error() string { return string(e) }
func errf(s string) error         { return staticErr(s) }
