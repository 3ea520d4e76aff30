package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys shared by broker metrics. Names follow the OpenTelemetry namespace.attribute form.
const (
	// AttrEnvironment specifies the deployment environment (dev/staging/prod) for every metric.
	AttrEnvironment = attribute.Key("environment")
	// AttrVenue identifies the venue adapter producing the signal.
	AttrVenue = attribute.Key("venue")
	// AttrSymbol captures the instrument symbol (e.g. BTC-USDT).
	AttrSymbol = attribute.Key("symbol")
	// AttrOrderSide labels order telemetry with Buy/Sell intent.
	AttrOrderSide = attribute.Key("order.side")
	// AttrOrderType distinguishes limit vs market orders.
	AttrOrderType = attribute.Key("order.type")
	// AttrOrderStatus captures the venue-reported order status.
	AttrOrderStatus = attribute.Key("order.status")
	// AttrOperation differentiates broker operations (submit, list, fill).
	AttrOperation = attribute.Key("operation")
	// AttrResult records the outcome of an operation.
	AttrResult = attribute.Key("result")
	// AttrErrorType categorizes failures by error code.
	AttrErrorType = attribute.Key("error.type")
	// AttrHTTPMethod labels transport metrics.
	AttrHTTPMethod = attribute.Key("http.method")
)

// Operation values.
const (
	OperationSubmit    = "submit"
	OperationList      = "list_orders"
	OperationFill      = "fill_status"
	OperationReconcile = "reconcile"
)

// OrderAttributes returns attributes for order submission metrics.
func OrderAttributes(environment, venue, symbol, side, orderType string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		AttrEnvironment.String(environment),
		AttrVenue.String(venue),
	}
	if symbol != "" {
		attrs = append(attrs, AttrSymbol.String(symbol))
	}
	if side != "" {
		attrs = append(attrs, AttrOrderSide.String(side))
	}
	if orderType != "" {
		attrs = append(attrs, AttrOrderType.String(orderType))
	}
	return attrs
}

// OperationResultAttributes returns attributes for operation metrics with result classification.
func OperationResultAttributes(environment, venue, operation, result string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrEnvironment.String(environment),
		AttrVenue.String(venue),
		AttrOperation.String(operation),
		AttrResult.String(result),
	}
}

// StatusAttributes returns attributes for observed order status metrics.
func StatusAttributes(environment, venue, status string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrEnvironment.String(environment),
		AttrVenue.String(venue),
		AttrOrderStatus.String(status),
	}
}

// ErrorAttributes returns attributes for error metrics.
func ErrorAttributes(environment, venue, operation, errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrEnvironment.String(environment),
		AttrVenue.String(venue),
		AttrOperation.String(operation),
		AttrErrorType.String(errorType),
	}
}

// RequestAttributes returns attributes for transport request metrics.
func RequestAttributes(environment, method, result string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrEnvironment.String(environment),
		AttrHTTPMethod.String(method),
		AttrResult.String(result),
	}
}
