package event

import (
	"encoding/json"
	"strconv"
)

// flexInt64 unmarshals a JSON number or numeric string into an int64.
// Several OneBot implementations emit ids as JSON strings to avoid
// JavaScript's 53-bit safe-integer limit; this tolerates both forms,
// grounded on the flexible parsing picoclaw's OneBot channel uses for
// the same reason.
type flexInt64 int64

func (f *flexInt64) UnmarshalJSON(b []byte) error {
	var n int64
	if err := json.Unmarshal(b, &n); err == nil {
		*f = flexInt64(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return err
	}
	*f = flexInt64(n)
	return nil
}
