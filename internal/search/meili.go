package search

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
)

const idxMessages = "huddle_messages"

// Meili wraps the Meilisearch client with a background health monitor.
type Meili struct {
	client  meili.ServiceManager
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a Meilisearch client and configures the message index.
// The caller should proceed without search if the instance stays unhealthy.
func NewMeili(url, apiKey string) *Meili {
	client := meili.New(url, meili.WithAPIKey(apiKey))

	m := &Meili{
		client: client,
		done:   make(chan struct{}),
	}

	if _, err := client.Health(); err != nil {
		log.Printf("search: meilisearch unavailable at %s: %v", url, err)
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndex()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndex() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{
		Uid:        idxMessages,
		PrimaryKey: "id",
	}); err != nil {
		log.Printf("search: create index %s (may already exist): %v", idxMessages, err)
	}

	index := m.client.Index(idxMessages)
	filterable := []interface{}{"community", "channel", "sender"}
	if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
		log.Printf("search: update filterable attrs for %s: %v", idxMessages, err)
	}
	searchable := []string{"text", "senderName"}
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		log.Printf("search: update searchable attrs for %s: %v", idxMessages, err)
	}
	sortable := []string{"timestamp"}
	if _, err := index.UpdateSortableAttributes(&sortable); err != nil {
		log.Printf("search: update sortable attrs for %s: %v", idxMessages, err)
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				log.Println("search: meilisearch recovered, reconfiguring index")
				m.configureIndex()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

// Healthy reports whether Meilisearch is reachable.
func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// IndexMessage adds one message to the index.
func (m *Meili) IndexMessage(record MessageRecord) error {
	if _, err := m.client.Index(idxMessages).AddDocuments([]MessageRecord{record}, nil); err != nil {
		return fmt.Errorf("index message %s: %w", record.ID, err)
	}
	return nil
}

// DeleteCommunity drops every indexed message of a community.
func (m *Meili) DeleteCommunity(community string) error {
	filter := fmt.Sprintf("community = %q", community)
	if _, err := m.client.Index(idxMessages).DeleteDocumentsByFilter(filter, nil); err != nil {
		return fmt.Errorf("delete community %s from index: %w", community, err)
	}
	return nil
}

// Search runs a highlighted full-text query over the message index.
func (m *Meili) Search(q Query) ([]Result, int, error) {
	if !m.healthy.Load() {
		return nil, 0, fmt.Errorf("meilisearch unhealthy")
	}

	limit := int64(q.Limit)
	if limit == 0 {
		limit = 20
	}

	request := &meili.SearchRequest{
		Limit:                 limit,
		AttributesToHighlight: []string{"text"},
		HighlightPreTag:       "<mark>",
		HighlightPostTag:      "</mark>",
		Sort:                  []string{"timestamp:desc"},
	}
	var filters []string
	if q.Community != "" {
		filters = append(filters, fmt.Sprintf("community = %q", q.Community))
	}
	if q.Channel != "" {
		filters = append(filters, fmt.Sprintf("channel = %q", q.Channel))
	}
	if len(filters) > 0 {
		request.Filter = filters
	}

	resp, err := m.client.Index(idxMessages).Search(q.Text, request)
	if err != nil {
		m.healthy.Store(false)
		return nil, 0, fmt.Errorf("meilisearch search: %w", err)
	}

	results := make([]Result, 0, len(resp.Hits))
	for _, hit := range resp.Hits {
		results = append(results, hitToResult(hit))
	}
	return results, int(resp.EstimatedTotalHits), nil
}

func hitToResult(hit meili.Hit) Result {
	var ts int64
	if raw, ok := hit["timestamp"]; ok {
		_ = json.Unmarshal(raw, &ts)
	}
	snippet := decodeFormattedString(hit, "text")
	if snippet == "" {
		snippet = decodeString(hit, "text")
	}
	return Result{
		ID:         decodeString(hit, "id"),
		Community:  decodeString(hit, "community"),
		Channel:    decodeString(hit, "channel"),
		SenderName: decodeString(hit, "senderName"),
		Snippet:    snippet,
		Timestamp:  ts,
	}
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

func decodeFormattedString(hit meili.Hit, key string) string {
	raw, ok := hit["_formatted"]
	if !ok {
		return ""
	}
	var formatted map[string]string
	if err := json.Unmarshal(raw, &formatted); err != nil {
		return ""
	}
	return strings.TrimSpace(formatted[key])
}
