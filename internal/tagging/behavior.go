package tagging

// SessionData is the behavioral summary of the current session.
type SessionData struct {
	MessageCount    int     `json:"message_count"`
	DurationMinutes float64 `json:"duration_minutes"`
	AvgResponseTime float64 `json:"avg_response_time"` // seconds
}

// HistorySession is one past session of the user.
type HistorySession struct {
	HasPurchase bool `json:"has_purchase"`
}

func behaviorTags(s SessionData, history []HistorySession) []string {
	var tags []string
	switch {
	case s.MessageCount > 10:
		tags = append(tags, "active_user")
	case s.MessageCount > 5:
		tags = append(tags, "engaged_user")
	}
	switch {
	case s.DurationMinutes > 30:
		tags = append(tags, "long_session")
	case s.DurationMinutes > 10:
		tags = append(tags, "medium_session")
	}
	// A zero average means no timing data.
	if s.AvgResponseTime > 0 && s.AvgResponseTime < 10 {
		tags = append(tags, "quick_responder")
	}

	if len(history) > 5 {
		tags = append(tags, "frequent_visitor")
	}
	purchases := 0
	for _, h := range history {
		if h.HasPurchase {
			purchases++
		}
	}
	if purchases > 0 {
		tags = append(tags, "previous_buyer")
	}
	if purchases > 2 {
		tags = append(tags, "loyal_customer")
	}
	return tags
}
