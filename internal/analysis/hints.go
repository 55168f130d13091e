package analysis

import (
	"encoding/json"
	"fmt"
)

// Context hint keys understood by the built-in analyzers.
const (
	HintSessionData         = "session_data"
	HintUserHistory         = "user_history"
	HintRecentSentiments    = "recent_sentiments"
	HintUserTags            = "user_tags"
	HintSessionTopics       = "session_topics"
	HintRecentQueries       = "recent_queries"
	HintConversationState   = "conversation_state"
	HintConversationStage   = "conversation_stage"
	HintKnowledgeCandidates = "knowledge_candidates"
)

// StringsHint reads a hint holding a list of strings. Lists decoded
// from JSON arrive as []any.
func StringsHint(req Request, key string) []string {
	v, ok := req.Hint(key)
	if !ok {
		return nil
	}
	switch t := v.(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case fmt.Stringer:
		return []string{t.String()}
	case string:
		return []string{t}
	}
	// Named string slices such as []sentiment.Label.
	var out []string
	if err := decodeHint(v, &out); err == nil {
		return out
	}
	return nil
}

// StringHint reads a string hint.
func StringHint(req Request, key string) string {
	v, ok := req.Hint(key)
	if !ok {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	}
	var s string
	if err := decodeHint(v, &s); err == nil {
		return s
	}
	return ""
}

// DecodeHint converts a hint into out. Values already of out's type are
// copied directly; loosely typed values such as JSON maps are re-decoded.
func DecodeHint[T any](req Request, key string) (T, bool, error) {
	var zero T
	v, ok := req.Hint(key)
	if !ok || v == nil {
		return zero, false, nil
	}
	if t, ok := v.(T); ok {
		return t, true, nil
	}
	if p, ok := v.(*T); ok && p != nil {
		return *p, true, nil
	}
	var out T
	if err := decodeHint(v, &out); err != nil {
		return zero, false, fmt.Errorf("decode hint %s: %w", key, err)
	}
	return out, true, nil
}

func decodeHint(v any, out any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	}
	return 0, false
}

func asInt(v any) (int, bool) {
	f, ok := asFloat(v)
	if !ok || f != float64(int(f)) {
		return 0, false
	}
	return int(f), true
}
