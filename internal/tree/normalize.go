package tree

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Normalize turns a raw record value into a node label.
// nil, NaN, blank strings and any case variant of "nan" become sentinel.
func Normalize(raw any, sentinel string) string {
	var s string
	switch v := raw.(type) {
	case nil:
		return sentinel
	case string:
		s = v
	case []byte:
		s = string(v)
	case float64:
		if math.IsNaN(v) {
			return sentinel
		}
		s = strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		if math.IsNaN(float64(v)) {
			return sentinel
		}
		s = strconv.FormatFloat(float64(v), 'f', -1, 32)
	case int:
		s = strconv.FormatInt(int64(v), 10)
	case int8:
		s = strconv.FormatInt(int64(v), 10)
	case int16:
		s = strconv.FormatInt(int64(v), 10)
	case int32:
		s = strconv.FormatInt(int64(v), 10)
	case int64:
		s = strconv.FormatInt(v, 10)
	case uint:
		s = strconv.FormatUint(uint64(v), 10)
	case uint8:
		s = strconv.FormatUint(uint64(v), 10)
	case uint16:
		s = strconv.FormatUint(uint64(v), 10)
	case uint32:
		s = strconv.FormatUint(uint64(v), 10)
	case uint64:
		s = strconv.FormatUint(v, 10)
	case json.Number:
		s = v.String()
	case bool:
		s = strconv.FormatBool(v)
	case fmt.Stringer:
		s = v.String()
	default:
		s = fmt.Sprint(v)
	}

	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "nan") {
		return sentinel
	}
	return s
}
