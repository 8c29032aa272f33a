package connectors

import "fmt"

const (
	codeNewOrderRejected = -2010
	codeCancelRejected   = -2011
	codeUnknownOrder     = -2013
)

// BinanceErrorCodes maps Binance spot error codes to their names.
var BinanceErrorCodes = map[int]string{
	-1000: "UNKNOWN",
	-1003: "TOO_MANY_REQUESTS",
	-1013: "INVALID_MESSAGE",
	-1021: "INVALID_TIMESTAMP",
	-1022: "INVALID_SIGNATURE",
	-1100: "ILLEGAL_CHARS",
	-1102: "MANDATORY_PARAM_EMPTY",
	-1111: "BAD_PRECISION",
	-1121: "BAD_SYMBOL",
	-2010: "NEW_ORDER_REJECTED",
	-2011: "CANCEL_REJECTED",
	-2013: "NO_SUCH_ORDER",
	-2014: "BAD_API_KEY_FMT",
	-2015: "REJECTED_MBX_KEY",
	-2026: "ORDER_ARCHIVED",
}

// GetErrorMsg returns the name of a Binance error code.
// If the code is unknown, returns a generic message including the code.
func GetErrorMsg(code int) string {
	if msg, ok := BinanceErrorCodes[code]; ok {
		return msg
	}
	return fmt.Sprintf("UNKNOWN_BINANCE_ERROR_%d", code)
}
