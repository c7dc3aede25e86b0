package bootstrap

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/derickschaefer/energyratio/internal/model"
)

// ParseCount converts a loosely typed bootstrap or block count (from JSON
// config, flags or environment) to an int. Values that are not whole numbers
// fail with model.ErrType; whole numbers below one fail with
// model.ErrConfiguration.
func ParseCount(name string, v any) (int, error) {
	var n int
	switch x := v.(type) {
	case int:
		n = x
	case int64:
		n = int(x)
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) || x != math.Trunc(x) {
			return 0, fmt.Errorf("%s: %v is not an integer: %w", name, x, model.ErrType)
		}
		n = int(x)
	case json.Number:
		i, err := x.Int64()
		if err != nil {
			return 0, fmt.Errorf("%s: %q is not an integer: %w", name, x.String(), model.ErrType)
		}
		n = int(i)
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(x))
		if err != nil {
			return 0, fmt.Errorf("%s: %q is not an integer: %w", name, x, model.ErrType)
		}
		n = i
	default:
		return 0, fmt.Errorf("%s: unsupported type %T: %w", name, v, model.ErrType)
	}
	if n < 1 {
		return 0, fmt.Errorf("%s must be positive, got %d: %w", name, n, model.ErrConfiguration)
	}
	return n, nil
}
