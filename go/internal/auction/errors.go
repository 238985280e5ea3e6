package auction

import "errors"

var (
	// ErrClockNotFound is returned when a clock id is not in the registry.
	ErrClockNotFound = errors.New("clock not found")

	// ErrLotNotFound is returned when a lot id does not belong to the clock.
	ErrLotNotFound = errors.New("lot not found")

	// ErrClockNotAccepting is returned for bids against a clock that is not
	// running, or against a lot that is not the current one.
	ErrClockNotAccepting = errors.New("clock not accepting bids")

	// ErrInsufficientStock is returned when a bid asks for more units than
	// the current lot has left.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrStalePrice is returned when a bid offers less than the live price.
	ErrStalePrice = errors.New("bid below current price")

	// ErrInvalidTransition is returned for an illegal state-machine move.
	ErrInvalidTransition = errors.New("invalid clock transition")
)
