package risk

import "errors"

var (
	ErrKillSwitch      = errors.New("kill switch engaged")
	ErrDeRiskOnly      = errors.New("de-risk only mode")
	ErrPositionExceed  = errors.New("position limit exceed")
	ErrRateLimited     = errors.New("action rate limit exceed")
	ErrUnknownAction   = errors.New("unknown action kind")
	ErrLimitsRequired  = errors.New("limits not configured")
	ErrZeroSizedAction = errors.New("zero sized action")
)
