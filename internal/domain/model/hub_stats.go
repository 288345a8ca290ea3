package model

import "time"

type HubStats struct {
	TotalTopics   int           `json:"total_topics"`
	TotalSessions int           `json:"total_sessions"`
	Uptime        time.Duration `json:"uptime"`
	Topics        []TopicStats  `json:"topics,omitempty"`
}

type TopicStats struct {
	Topic    string `json:"topic"`
	Sessions int    `json:"sessions"`
}
