package public

import (
	"errors"

	"github.com/paypro-bridge/internal/http/response"
	"github.com/paypro-bridge/internal/payment/paypro"
	"github.com/paypro-bridge/internal/service"

	"github.com/gin-gonic/gin"
)

// mappedHandlerError maps a sentinel error to a status and message.
// An empty message echoes the error text, which carries the upstream diagnostic.
type mappedHandlerError struct {
	target  error
	code    int
	message string
}

func respondWithMappedError(c *gin.Context, err error, rules []mappedHandlerError, fallbackCode int, fallbackMessage string) {
	for _, rule := range rules {
		if errors.Is(err, rule.target) {
			message := rule.message
			if message == "" {
				message = err.Error()
			}
			if rule.code >= response.CodeInternal {
				respondError(c, rule.code, message, err)
				return
			}
			requestLog(c).Infow("handler_request_rejected", "code", rule.code, "error", err)
			respondError(c, rule.code, message, nil)
			return
		}
	}
	respondError(c, fallbackCode, fallbackMessage, err)
}

func concatMappedHandlerErrors(groups ...[]mappedHandlerError) []mappedHandlerError {
	total := 0
	for _, group := range groups {
		total += len(group)
	}
	result := make([]mappedHandlerError, 0, total)
	for _, group := range groups {
		result = append(result, group...)
	}
	return result
}

var upstreamErrorRules = []mappedHandlerError{
	{target: service.ErrGatewayNotReady, code: response.CodeInternal, message: "payment gateway not configured"},
	{target: paypro.ErrConfigInvalid, code: response.CodeInternal, message: "payment gateway not configured"},
	{target: paypro.ErrAuthFailed, code: response.CodeInternal},
	{target: paypro.ErrGatewayFailed, code: response.CodeInternal},
	{target: paypro.ErrRequestFailed, code: response.CodeInternal},
	{target: paypro.ErrPaymentIDEmpty, code: response.CodeBadRequest, message: "gatewayPaymentId is required"},
}

var storeErrorRules = []mappedHandlerError{
	{target: service.ErrStoreFailed, code: response.CodeInternal, message: "failed to store payment state"},
	{target: service.ErrLockUnavailable, code: response.CodeInternal, message: "order is busy, try again"},
}

var createPaymentErrorRules = concatMappedHandlerErrors(
	[]mappedHandlerError{
		{target: service.ErrValidation, code: response.CodeBadRequest},
		{target: service.ErrOrderAlreadyPaid, code: response.CodeBadRequest, message: "order already paid"},
		{target: service.ErrAmountMismatch, code: response.CodeBadRequest, message: "amount differs from the initiated order"},
	},
	upstreamErrorRules,
	storeErrorRules,
)

var verifyPaymentErrorRules = concatMappedHandlerErrors(
	[]mappedHandlerError{
		{target: service.ErrValidation, code: response.CodeBadRequest},
	},
	upstreamErrorRules,
	storeErrorRules,
)

var getOrderErrorRules = concatMappedHandlerErrors(
	[]mappedHandlerError{
		{target: service.ErrValidation, code: response.CodeBadRequest},
		{target: service.ErrMappingNotFound, code: response.CodeNotFound, message: "order not found"},
	},
	storeErrorRules,
)
