package payments

import (
	"encoding/json"

	"gorm.io/datatypes"
)

// mergeMetadata sets key on the stored JSON object. Unreadable or non-object
// metadata is kept under "previous" rather than discarded.
func mergeMetadata(existing datatypes.JSON, key string, value any) (datatypes.JSON, error) {
	doc := map[string]any{}
	if len(existing) > 0 {
		if err := json.Unmarshal(existing, &doc); err != nil {
			doc = map[string]any{"previous": string(existing)}
		}
	}
	if doc == nil {
		doc = map[string]any{}
	}
	doc[key] = value
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}
