package deposit

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Strob0t/depositrelay/internal/domain"
)

// Required fields of the proxy requests.
const (
	FieldOrderID   = "orderId"
	FieldAmount    = "amount"
	FieldDepositID = "depositId"
)

// RequireFields checks that body is a JSON object holding a non-empty string
// or number under each name and returns those values. Other fields are left
// for the caller to forward untouched.
func RequireFields(body []byte, names ...string) (map[string]string, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil || fields == nil {
		return nil, fmt.Errorf("%w: request body must be a JSON object", domain.ErrValidation)
	}

	values := make(map[string]string, len(names))
	var missing []string
	for _, name := range names {
		v := strings.TrimSpace(scalarString(fields[name]))
		if v == "" {
			missing = append(missing, name)
			continue
		}
		values[name] = v
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing required field(s): %s", domain.ErrValidation, strings.Join(missing, ", "))
	}
	return values, nil
}
