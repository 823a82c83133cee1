package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// kalematCorpus selects which Kalemat corpus a search runs against
type kalematCorpus int

const (
	corpusQuran  kalematCorpus = 1
	corpusHadith kalematCorpus = 2
)

// KalematTool searches the Quran or the hadith collections through the
// Kalemat search API
type KalematTool struct {
	client     HTTPDoer
	apiKey     string
	baseURL    string
	numResults int
	corpus     kalematCorpus
}

// kalematResult covers the fields of both corpora
type kalematResult struct {
	ID     string `json:"id"`
	Text   string `json:"text"`
	EnText string `json:"en_text"`

	SourceBook     string `json:"source_book"`
	ChapterNumber  string `json:"chapter_number"`
	ChapterEnglish string `json:"chapter_english"`
	HadithNumber   string `json:"hadith_number"`
	ArText         string `json:"ar_text"`
	GradeEn        string `json:"grade_en"`
}

// NewSearchQuran creates the search_quran tool
func NewSearchQuran(client HTTPDoer, apiKey, baseURL string, numResults int) *KalematTool {
	return newKalematTool(client, apiKey, baseURL, numResults, corpusQuran)
}

// NewSearchHadith creates the search_hadith tool
func NewSearchHadith(client HTTPDoer, apiKey, baseURL string, numResults int) *KalematTool {
	return newKalematTool(client, apiKey, baseURL, numResults, corpusHadith)
}

func newKalematTool(client HTTPDoer, apiKey, baseURL string, numResults int, corpus kalematCorpus) *KalematTool {
	if client == nil {
		client = NewHTTPClient(DefaultRequestTimeout)
	}
	if baseURL == "" {
		baseURL = "https://api.kalimat.dev"
	}
	if numResults <= 0 {
		numResults = 10
	}
	return &KalematTool{
		client:     client,
		apiKey:     apiKey,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		numResults: numResults,
		corpus:     corpus,
	}
}

func (kt *KalematTool) Name() string {
	if kt.corpus == corpusHadith {
		return "search_hadith"
	}
	return "search_quran"
}

func (kt *KalematTool) Description() string {
	if kt.corpus == corpusHadith {
		return "Search the hadith collections for narrations relevant to a question. " +
			"Returns the reference, Arabic text, English translation and grade of each hadith."
	}
	return "Search the Quran for verses relevant to a question. " +
		"Returns the verse number, the Arabic text and an English translation of each verse."
}

func (kt *KalematTool) Parameters() map[string]interface{} {
	if kt.corpus == corpusHadith {
		return QueryParameters("Topic or question to search the hadith for, written in English or Arabic")
	}
	return QueryParameters("Topic or question to search the Quran for, written in English or Arabic")
}

// Run queries Kalemat and formats each hit as a self-contained passage
func (kt *KalematTool) Run(ctx context.Context, query string) ([]string, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query is required and must be a non-empty string")
	}

	params := url.Values{}
	params.Set("query", query)
	params.Set("numResults", strconv.Itoa(kt.numResults))
	params.Set("getText", strconv.Itoa(int(kt.corpus)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, kt.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("x-api-key", kt.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := kt.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("kalemat request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("kalemat error: status %d, body: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var hits []kalematResult
	if err := json.Unmarshal(body, &hits); err != nil {
		return nil, fmt.Errorf("failed to parse kalemat response: %w", err)
	}

	results := make([]string, 0, len(hits))
	for _, h := range hits {
		if kt.corpus == corpusHadith {
			results = append(results, formatHadith(h))
		} else {
			results = append(results, formatAyah(h))
		}
	}
	return results, nil
}

func formatAyah(h kalematResult) string {
	return fmt.Sprintf("Ayah: %s\nArabic Text: %s\n\nEnglish Text: %s\n", h.ID, h.Text, h.EnText)
}

func formatHadith(h kalematResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Reference: %s", h.SourceBook)
	if h.ChapterNumber != "" {
		fmt.Fprintf(&b, ", Chapter %s", h.ChapterNumber)
		if h.ChapterEnglish != "" {
			fmt.Fprintf(&b, " (%s)", h.ChapterEnglish)
		}
	}
	if h.HadithNumber != "" {
		fmt.Fprintf(&b, ", Hadith %s", h.HadithNumber)
	}
	fmt.Fprintf(&b, "\nArabic Text: %s\n\nEnglish Text: %s\n", h.ArText, h.EnText)
	if h.GradeEn != "" {
		fmt.Fprintf(&b, "Grade: %s\n", h.GradeEn)
	}
	return b.String()
}

// truncate shortens s to n runes
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
