package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"time"
)

// Quote is a short motivational line shown on the health endpoint
type Quote struct {
	Text   string `json:"text"`
	Author string `json:"author"`
}

var builtinQuotes = []Quote{
	{Text: "The secret of getting ahead is getting started.", Author: "Mark Twain"},
	{Text: "It always seems impossible until it's done.", Author: "Nelson Mandela"},
	{Text: "You may delay, but time will not.", Author: "Benjamin Franklin"},
	{Text: "A year from now you may wish you had started today.", Author: "Karen Lamb"},
	{Text: "Well begun is half done.", Author: "Aristotle"},
	{Text: "Focus on being productive instead of busy.", Author: "Tim Ferriss"},
	{Text: "What gets scheduled gets done.", Author: "Michael Hyatt"},
}

// QuoteService serves a random quote, from a remote endpoint when one is
// configured and from the builtin list otherwise. Remote failures fall
// back to the builtin list so the health endpoint never depends on an
// external service.
type QuoteService struct {
	remoteURL string
	client    *http.Client
}

// NewQuoteService creates a new quote service. remoteURL may be empty.
func NewQuoteService(remoteURL string) *QuoteService {
	return &QuoteService{
		remoteURL: remoteURL,
		client:    &http.Client{Timeout: 5 * time.Second},
	}
}

// Random returns one quote
func (s *QuoteService) Random(ctx context.Context) Quote {
	if s.remoteURL != "" {
		if q, err := s.fetchRemote(ctx); err == nil {
			return q
		} else {
			log.Printf("Quote fetch failed, using builtin list: %v", err)
		}
	}
	return builtinQuotes[rand.Intn(len(builtinQuotes))]
}

func (s *QuoteService) fetchRemote(ctx context.Context) (Quote, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.remoteURL, nil)
	if err != nil {
		return Quote{}, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return Quote{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Quote{}, fmt.Errorf("quote endpoint returned %d", resp.StatusCode)
	}

	var q Quote
	if err := json.NewDecoder(resp.Body).Decode(&q); err != nil {
		return Quote{}, err
	}
	if q.Text == "" {
		return Quote{}, fmt.Errorf("quote endpoint returned empty text")
	}
	return q, nil
}
