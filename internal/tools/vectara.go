package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
)

// VectaraTool searches the Mawsuah (encyclopedia of Islamic jurisprudence)
// corpus hosted on Vectara
type VectaraTool struct {
	client     HTTPDoer
	authToken  string
	customerID string
	corpusID   string
	baseURL    string
	numResults int
}

type vectaraQueryRequest struct {
	Query []vectaraQuery `json:"query"`
}

type vectaraQuery struct {
	Query         string               `json:"query"`
	Start         int                  `json:"start"`
	NumResults    int                  `json:"numResults"`
	ContextConfig vectaraContextConfig `json:"contextConfig"`
	CorpusKey     []vectaraCorpusKey   `json:"corpusKey"`
}

type vectaraContextConfig struct {
	SentencesBefore int    `json:"sentencesBefore"`
	SentencesAfter  int    `json:"sentencesAfter"`
	StartTag        string `json:"startTag"`
	EndTag          string `json:"endTag"`
}

type vectaraCorpusKey struct {
	CustomerID int `json:"customerId"`
	CorpusID   int `json:"corpusId"`
}

type vectaraQueryResponse struct {
	ResponseSet []struct {
		Response []struct {
			Text  string  `json:"text"`
			Score float64 `json:"score"`
		} `json:"response"`
	} `json:"responseSet"`
}

// NewSearchMawsuah creates the search_mawsuah tool
func NewSearchMawsuah(client HTTPDoer, authToken, customerID, corpusID, baseURL string, numResults int) *VectaraTool {
	if client == nil {
		client = NewHTTPClient(DefaultRequestTimeout)
	}
	if baseURL == "" {
		baseURL = "https://api.vectara.io"
	}
	if numResults <= 0 {
		numResults = 10
	}
	return &VectaraTool{
		client:     client,
		authToken:  authToken,
		customerID: customerID,
		corpusID:   corpusID,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		numResults: numResults,
	}
}

func (vt *VectaraTool) Name() string {
	return "search_mawsuah"
}

func (vt *VectaraTool) Description() string {
	return "Search the Mawsuah, an encyclopedia of Islamic jurisprudence, for rulings and scholarly opinions. " +
		"Returns passages in Arabic."
}

func (vt *VectaraTool) Parameters() map[string]interface{} {
	return QueryParameters("Jurisprudence topic or question to look up, preferably in Arabic")
}

// Run sends the query to Vectara and returns the matching passages
func (vt *VectaraTool) Run(ctx context.Context, query string) ([]string, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query is required and must be a non-empty string")
	}

	customerID, err := strconv.Atoi(vt.customerID)
	if err != nil {
		return nil, fmt.Errorf("invalid vectara customer id %q: %w", vt.customerID, err)
	}
	corpusID, err := strconv.Atoi(vt.corpusID)
	if err != nil {
		return nil, fmt.Errorf("invalid vectara corpus id %q: %w", vt.corpusID, err)
	}

	payload := vectaraQueryRequest{Query: []vectaraQuery{{
		Query:      query,
		NumResults: vt.numResults,
		ContextConfig: vectaraContextConfig{
			SentencesBefore: 2,
			SentencesAfter:  2,
			StartTag:        "<match>",
			EndTag:          "</match>",
		},
		CorpusKey: []vectaraCorpusKey{{CustomerID: customerID, CorpusID: corpusID}},
	}}}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, vt.baseURL+"/v1/query", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("customer-id", vt.customerID)
	req.Header.Set("Authorization", "Bearer "+vt.authToken)

	resp, err := vt.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("vectara request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("vectara error: status %d, body: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var parsed vectaraQueryResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse vectara response: %w", err)
	}

	var results []string
	for _, set := range parsed.ResponseSet {
		for _, r := range set.Response {
			if text := strings.TrimSpace(r.Text); text != "" {
				results = append(results, text)
			}
		}
	}
	return results, nil
}
