package exchange

import (
	"bytes"
	"errors"

	"github.com/vmihailenco/msgpack/v5"
)

// wireEncoder writes msgpack in a fixed key order and keeps the first error,
// since the action hash depends on the exact byte layout.
type wireEncoder struct {
	enc *msgpack.Encoder
	err error
}

func (w *wireEncoder) mapLen(n int) {
	if w.err == nil {
		w.err = w.enc.EncodeMapLen(n)
	}
}

func (w *wireEncoder) key(k string) {
	w.str(k)
}

func (w *wireEncoder) str(v string) {
	if w.err == nil {
		w.err = w.enc.EncodeString(v)
	}
}

func (w *wireEncoder) integer(v int64) {
	if w.err == nil {
		w.err = w.enc.EncodeInt(v)
	}
}

func (w *wireEncoder) boolean(v bool) {
	if w.err == nil {
		w.err = w.enc.EncodeBool(v)
	}
}

func (w *wireEncoder) arrayLen(n int) {
	if w.err == nil {
		w.err = w.enc.EncodeArrayLen(n)
	}
}

func EncodeOrderAction(action OrderAction) ([]byte, error) {
	if action.Type == "" {
		return nil, errors.New("action type is required")
	}
	if len(action.Orders) == 0 {
		return nil, errors.New("action orders are required")
	}
	if action.Grouping == "" {
		action.Grouping = "na"
	}
	for _, order := range action.Orders {
		if order.OrderType.Limit == nil {
			return nil, errors.New("limit order type required")
		}
	}
	var buf bytes.Buffer
	w := &wireEncoder{enc: msgpack.NewEncoder(&buf)}
	w.mapLen(3)
	w.key("type")
	w.str(action.Type)
	w.key("orders")
	w.arrayLen(len(action.Orders))
	for _, order := range action.Orders {
		encodeOrderWire(w, order)
	}
	w.key("grouping")
	w.str(action.Grouping)
	if w.err != nil {
		return nil, w.err
	}
	return buf.Bytes(), nil
}

func encodeOrderWire(w *wireEncoder, order OrderWire) {
	n := 6
	if order.Cloid != "" {
		n++
	}
	w.mapLen(n)
	w.key("a")
	w.integer(int64(order.Asset))
	w.key("b")
	w.boolean(order.IsBuy)
	w.key("p")
	w.str(order.Price)
	w.key("s")
	w.str(order.Size)
	w.key("r")
	w.boolean(order.ReduceOnly)
	w.key("t")
	w.mapLen(1)
	w.key("limit")
	w.mapLen(1)
	w.key("tif")
	w.str(string(order.OrderType.Limit.Tif))
	if order.Cloid != "" {
		w.key("c")
		w.str(order.Cloid)
	}
}
