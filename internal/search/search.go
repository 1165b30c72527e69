// Package search provides full-text search over message history, backed by
// Meilisearch. The index is advisory: the message log remains the source of
// truth, and the service degrades to "no results" when Meilisearch is down.
package search

// MessageRecord is the data indexed for one message.
type MessageRecord struct {
	ID         string `json:"id"`
	Community  string `json:"community"`
	Channel    string `json:"channel"`
	Sender     string `json:"sender"`
	SenderName string `json:"senderName"`
	Text       string `json:"text"`
	Timestamp  int64  `json:"timestamp"`
}

// Query describes a message search request.
type Query struct {
	Text      string
	Community string
	Channel   string
	Limit     int
}

// Result is a single hit with highlight markup in Snippet.
type Result struct {
	ID         string `json:"id"`
	Community  string `json:"community"`
	Channel    string `json:"channel"`
	SenderName string `json:"senderName"`
	Snippet    string `json:"snippet"`
	Timestamp  int64  `json:"timestamp"`
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}
