package orders

import "errors"

// Sentinel errors for the order domain. The matching engine's CancelOrder
// wraps ErrNotFound and ErrAlreadyTerminal; callers can match them with
// errors.Is.
var (
	ErrNotFound        = errors.New("orders: not found")
	ErrAlreadyTerminal = errors.New("orders: order already terminal")
	ErrSymbolHalted    = errors.New("orders: symbol halted")
	ErrValidation      = errors.New("orders: validation failed")
)
