package adminstore

import "encoding/json"

func marshalJSON(v any) ([]byte, error)      { return json.Marshal(v) }
func unmarshalJSON(raw []byte, v any) error  { return json.Unmarshal(raw, v) }
