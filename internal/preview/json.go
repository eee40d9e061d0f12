package preview

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// MarshalJSON writes the row as an object with keys in column order.
func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range r.Columns {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(name)
		if err != nil {
			return nil, fmt.Errorf("marshal column name %q: %w", name, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		value, err := json.Marshal(SafeValue(r.Values[i]))
		if err != nil {
			return nil, fmt.Errorf("marshal cell in column %q: %w", name, err)
		}
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
