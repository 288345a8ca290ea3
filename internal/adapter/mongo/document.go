package mongo

import (
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// keyMatch is the _id condition for a URL/document id. A 24-char hex id may
// be stored as an ObjectID or as a plain string, so it matches either.
func keyMatch(id string) any {
	if oid, err := primitive.ObjectIDFromHex(id); err == nil {
		return bson.D{{Key: "$in", Value: bson.A{oid, id}}}
	}
	return id
}

// idString renders a decoded _id for the wire.
func idString(v any) string {
	switch id := v.(type) {
	case primitive.ObjectID:
		return id.Hex()
	case string:
		return id
	case nil:
		return ""
	default:
		return fmt.Sprint(id)
	}
}

// normalize converts BSON-specific values into plain JSON-friendly ones.
func normalize(doc bson.M) map[string]any {
	if doc == nil {
		return nil
	}
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v any) any {
	switch x := v.(type) {
	case bson.M:
		return normalize(x)
	case map[string]any:
		return normalize(bson.M(x))
	case bson.D:
		m := make(map[string]any, len(x))
		for _, e := range x {
			m[e.Key] = normalizeValue(e.Value)
		}
		return m
	case bson.A:
		arr := make([]any, len(x))
		for i, e := range x {
			arr[i] = normalizeValue(e)
		}
		return arr
	case primitive.ObjectID:
		return x.Hex()
	case primitive.DateTime:
		return x.Time().UTC()
	case primitive.Decimal128:
		return x.String()
	case primitive.Timestamp:
		return x.T
	default:
		return v
	}
}
