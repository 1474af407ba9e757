package metrics

import (
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/maauso/firefly-jobs/internal/provider"
)

// Attribute keys
const (
	attrFamily = "family"
	attrStatus = "status"
	attrResult = "result"
	attrMethod = "method"
	attrRoute  = "route"
	attrCode   = "code"
)

func familyAttr(f provider.Family) attribute.KeyValue {
	return attribute.String(attrFamily, string(f))
}

func statusAttr(s string) attribute.KeyValue {
	return attribute.String(attrStatus, s)
}

func resultAttr(err error) attribute.KeyValue {
	if err != nil {
		return attribute.String(attrResult, "error")
	}
	return attribute.String(attrResult, "success")
}

func methodAttr(method string) attribute.KeyValue {
	return attribute.String(attrMethod, method)
}

func routeAttr(route string) attribute.KeyValue {
	if route == "" {
		route = "unmatched"
	}
	return attribute.String(attrRoute, route)
}

func codeAttr(code int) attribute.KeyValue {
	// 200-299 -> 2xx, 400-499 -> 4xx, 500-599 -> 5xx
	return attribute.String(attrCode, fmt.Sprintf("%dxx", code/100))
}
