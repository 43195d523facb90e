package exchange

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

type OrderStatus struct {
	OrderID string
	Filled  bool
	Resting bool
	TotalSz float64
	AvgPx   float64
}

// OrderError is an order the exchange received but refused.
type OrderError struct {
	Message string
}

func (e *OrderError) Error() string {
	return "order rejected: " + e.Message
}

// ParseOrderResponse reads {"status":"ok","response":{"type":"order","data":{"statuses":[...]}}}
// and the {"status":"err","response":"..."} form.
func ParseOrderResponse(resp map[string]any) (OrderStatus, error) {
	if resp == nil {
		return OrderStatus{}, errors.New("empty exchange response")
	}
	status, _ := resp["status"].(string)
	if status != "ok" {
		msg := stringFromAny(resp["response"])
		if msg == "" {
			msg = "status " + strconv.Quote(status)
		}
		return OrderStatus{}, &OrderError{Message: msg}
	}
	body, _ := resp["response"].(map[string]any)
	data, _ := body["data"].(map[string]any)
	statuses, _ := data["statuses"].([]any)
	if len(statuses) == 0 {
		if id := orderIDFromAny(resp); id != "" {
			return OrderStatus{OrderID: id}, nil
		}
		return OrderStatus{}, errors.New("exchange response has no order statuses")
	}
	switch first := statuses[0].(type) {
	case string:
		// "waitingForFill" and similar plain statuses carry no id.
		return OrderStatus{}, nil
	case map[string]any:
		if msg, ok := first["error"]; ok {
			return OrderStatus{}, &OrderError{Message: stringFromAny(msg)}
		}
		if filled, ok := first["filled"].(map[string]any); ok {
			return OrderStatus{
				OrderID: orderIDFromAny(filled),
				Filled:  true,
				TotalSz: floatFromAny(filled["totalSz"]),
				AvgPx:   floatFromAny(filled["avgPx"]),
			}, nil
		}
		if resting, ok := first["resting"].(map[string]any); ok {
			return OrderStatus{OrderID: orderIDFromAny(resting), Resting: true}, nil
		}
		return OrderStatus{OrderID: orderIDFromAny(first)}, nil
	default:
		return OrderStatus{}, fmt.Errorf("unexpected order status %T", first)
	}
}

func stringFromAny(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatInt(int64(val), 10)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	default:
		return ""
	}
}

func floatFromAny(v any) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

func orderIDFromAny(v any) string {
	switch val := v.(type) {
	case map[string]any:
		for _, key := range []string{"oid", "orderId", "orderID", "id"} {
			if id := stringFromAny(val[key]); id != "" {
				return id
			}
		}
		for _, nested := range val {
			if id := orderIDFromAny(nested); id != "" {
				return id
			}
		}
	case []any:
		for _, nested := range val {
			if id := orderIDFromAny(nested); id != "" {
				return id
			}
		}
	}
	return ""
}
