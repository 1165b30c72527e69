package search

import "log"

// Service is the nil-safe facade over Meilisearch. meili may be nil when
// search is not configured; every operation then degrades quietly.
type Service struct {
	meili *Meili
}

func NewService(meili *Meili) *Service {
	return &Service{meili: meili}
}

// Enabled reports whether a search backend is configured and reachable.
func (s *Service) Enabled() bool {
	return s != nil && s.meili != nil && s.meili.Healthy()
}

// Search runs the query, returning an empty response when search is
// unavailable rather than an error.
func (s *Service) Search(q Query) Response {
	if !s.Enabled() {
		return Response{Results: []Result{}, Query: q.Text}
	}
	results, total, err := s.meili.Search(q)
	if err != nil {
		log.Printf("search: query failed: %v", err)
		return Response{Results: []Result{}, Query: q.Text}
	}
	if results == nil {
		results = []Result{}
	}
	return Response{Results: results, Total: total, Query: q.Text}
}

// IndexMessage pushes one message into the index, fire-and-forget.
func (s *Service) IndexMessage(record MessageRecord) {
	if !s.Enabled() {
		return
	}
	go func() {
		if err := s.meili.IndexMessage(record); err != nil {
			log.Printf("search: index message %s: %v", record.ID, err)
		}
	}()
}

// DropCommunity removes a deleted community's messages from the index,
// fire-and-forget.
func (s *Service) DropCommunity(community string) {
	if !s.Enabled() {
		return
	}
	go func() {
		if err := s.meili.DeleteCommunity(community); err != nil {
			log.Printf("search: drop community %s: %v", community, err)
		}
	}()
}
