package oracle

import "errors"

var (
	// ErrOracleConfig means the adapter is not configured for this deployment.
	ErrOracleConfig = errors.New("oracle is not configured")
	// ErrAdapterFailed wraps any remote data provider failure.
	ErrAdapterFailed = errors.New("oracle adapter failed")
	// ErrInvalidTimestamp means no block within the look-behind window was
	// old enough for the requested timestamp.
	ErrInvalidTimestamp = errors.New("no block old enough for requested timestamp")
	// ErrReturnDataTooLarge means the eth_call response exceeded the cap.
	ErrReturnDataTooLarge = errors.New("call return data exceeds limit")
)
