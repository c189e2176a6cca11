// internal/llmclient/errors.go
package llmclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
)

// ErrDecision is matched by every *DecisionError.
var ErrDecision = errors.New("decision service failed")

// DecisionError reports a failed call to a decision service.
type DecisionError struct {
	Provider string
	// Retryable marks timeouts, transport failures and server-side errors.
	Retryable bool
	Err       error
}

func (e *DecisionError) Error() string {
	return fmt.Sprintf("%s decision request failed: %v", e.Provider, e.Err)
}

func (e *DecisionError) Unwrap() error { return e.Err }

func (e *DecisionError) Is(target error) bool { return target == ErrDecision }

// classify wraps err from a provider SDK, deciding whether a retry may help.
func classify(provider string, err error) *DecisionError {
	var de *DecisionError
	if errors.As(err, &de) {
		return de
	}
	return &DecisionError{Provider: provider, Retryable: retryable(err), Err: err}
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var oaiAPI *openai.APIError
	if errors.As(err, &oaiAPI) {
		return retryableStatus(oaiAPI.HTTPStatusCode)
	}
	var oaiReq *openai.RequestError
	if errors.As(err, &oaiReq) {
		return retryableStatus(oaiReq.HTTPStatusCode)
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code == http.StatusRequestTimeout || code >= 500
}
