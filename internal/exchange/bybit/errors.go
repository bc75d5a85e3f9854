package bybit

import (
	"errors"
	"fmt"

	bybit_api "github.com/bybit-exchange/bybit.go.api"

	"github.com/zeedohq/reversal-bot/internal/exchange"
)

// APIError is a non-zero retCode from the Bybit API.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("bybit API error %d: %s", e.Code, e.Message)
}

// Bybit error codes the client reacts to.
const (
	errCodeRateLimitExceeded = 10006
	errCodeOrderNotFound     = 110001
	errCodeTooManyVisits     = 10018
)

// checkResponse validates a ServerResponse and returns the typed error for
// a non-zero retCode. Rate-limit codes are wrapped with ErrRateLimited so
// the engine can back off the whole cycle.
func checkResponse(response interface{}) (*bybit_api.ServerResponse, error) {
	serverResp, ok := response.(*bybit_api.ServerResponse)
	if !ok {
		return nil, fmt.Errorf("invalid response type %T", response)
	}
	if serverResp.RetCode != 0 {
		apiErr := &APIError{Code: serverResp.RetCode, Message: serverResp.RetMsg}
		if apiErr.Code == errCodeRateLimitExceeded || apiErr.Code == errCodeTooManyVisits {
			return nil, fmt.Errorf("%w: %s", exchange.ErrRateLimited, apiErr)
		}
		return nil, apiErr
	}
	return serverResp, nil
}

// IsOrderNotFound reports whether err is the venue telling us the order no
// longer exists, which cancellation paths treat as success.
func IsOrderNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == errCodeOrderNotFound
}
