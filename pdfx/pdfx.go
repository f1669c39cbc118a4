// Package pdfx extracts plain text from PDF documents and builds a short
// study summary from it.
package pdfx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"
	"github.com/princinho/studyspark/models"
)

var (
	ErrUnreadable = errors.New("failed to extract content from PDF file")
	ErrInvalidURL = errors.New("invalid URL format")
	ErrNotPDF     = errors.New("URL does not point to a valid PDF file")
	ErrTooLarge   = errors.New("document exceeds the size limit")
)

const (
	wordsPerMinute = 200
	briefSentences = 3
	briefMaxChars  = 300
	maxMainPoints  = 5
	maxKeyPhrases  = 10
)

// Extracted is the raw text of a document.
type Extracted struct {
	Text  string
	Pages int
}

// Extract reads every page of the PDF in r. The parser panics on some
// malformed inputs, so those are reported as ErrUnreadable.
func Extract(r io.ReaderAt, size int64) (out Extracted, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			out, err = Extracted{}, fmt.Errorf("%w: %v", ErrUnreadable, rec)
		}
	}()

	reader, err := pdf.NewReader(r, size)
	if err != nil {
		return Extracted{}, fmt.Errorf("%w: %w", ErrUnreadable, err)
	}
	plain, err := reader.GetPlainText()
	if err != nil {
		return Extracted{}, fmt.Errorf("%w: %w", ErrUnreadable, err)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(plain); err != nil {
		return Extracted{}, fmt.Errorf("%w: %w", ErrUnreadable, err)
	}
	return Extracted{Text: buf.String(), Pages: reader.NumPage()}, nil
}

// Fetch downloads a PDF from link. At most maxBytes are accepted and the
// response must declare a pdf content type.
func Fetch(ctx context.Context, client *http.Client, link string, maxBytes int64) ([]byte, error) {
	u, err := url.Parse(link)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, ErrInvalidURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, ErrInvalidURL
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", u.Host, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download %s: status %d", u.Host, resp.StatusCode)
	}
	if !strings.Contains(strings.ToLower(resp.Header.Get("Content-Type")), "pdf") {
		return nil, ErrNotPDF
	}
	if resp.ContentLength > maxBytes {
		return nil, ErrTooLarge
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", u.Host, err)
	}
	if int64(len(data)) > maxBytes {
		return nil, ErrTooLarge
	}
	return data, nil
}

var (
	sentenceRe = regexp.MustCompile(`[^.!?]+[.!?]+`)
	spaceRe    = regexp.MustCompile(`\s+`)
)

var cueWords = []string{
	"main point", "key point", "important", "significant",
	"first", "second", "third", "finally", "in conclusion",
	"therefore", "thus", "hence", "consequently", "summary",
	"overall", "to conclude", "the study shows",
}

// Summarize builds the summary stored alongside a document.
func Summarize(text string, pages int) models.DocumentSummary {
	clean := strings.TrimSpace(spaceRe.ReplaceAllString(text, " "))
	words := len(strings.Fields(clean))

	var sentences []string
	for _, s := range sentenceRe.FindAllString(clean, -1) {
		if s = strings.TrimSpace(s); s != "" {
			sentences = append(sentences, s)
		}
	}

	return models.DocumentSummary{
		Brief:             brief(sentences),
		MainPoints:        mainPoints(sentences),
		KeyPhrases:        keyPhrases(clean),
		WordCount:         words,
		PageCount:         pages,
		EstimatedReadTime: int(math.Ceil(float64(words) / wordsPerMinute)),
	}
}

func brief(sentences []string) string {
	if len(sentences) == 0 {
		return "No content available to generate summary."
	}
	b := strings.Join(sentences[:min(briefSentences, len(sentences))], " ")
	if r := []rune(b); len(r) > briefMaxChars {
		return string(r[:briefMaxChars]) + "..."
	}
	return b
}

func mainPoints(sentences []string) []string {
	points := make([]string, 0, maxMainPoints)
	seen := make(map[string]bool)
	add := func(s string) {
		if len(points) < maxMainPoints && !seen[s] {
			seen[s] = true
			points = append(points, capitalize(s))
		}
	}

	for _, s := range sentences {
		n := len([]rune(s))
		if n <= 20 || n >= 200 {
			continue
		}
		lower := strings.ToLower(s)
		for _, cue := range cueWords {
			if strings.Contains(lower, cue) {
				add(s)
				break
			}
		}
	}
	// Too few cues: fall back on the opening sentences.
	if len(points) < 3 {
		for _, s := range sentences[:min(3, len(sentences))] {
			if len([]rune(s)) > 20 {
				add(s)
			}
		}
	}
	return points
}

func capitalize(s string) string {
	r := []rune(s)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

func keyPhrases(text string) []string {
	var words []string
	for _, w := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	}) {
		if len([]rune(w)) > 3 && !stopWords[w] {
			words = append(words, w)
		}
	}

	counts := make(map[string]int)
	var order []string
	bump := func(term string) {
		if counts[term] == 0 {
			order = append(order, term)
		}
		counts[term]++
	}
	for _, w := range words {
		bump(w)
	}
	for i := 0; i+1 < len(words); i++ {
		bump(words[i] + " " + words[i+1])
	}

	// Stable keeps first-seen order among equal counts.
	sort.SliceStable(order, func(i, j int) bool { return counts[order[i]] > counts[order[j]] })
	if len(order) > maxKeyPhrases {
		order = order[:maxKeyPhrases]
	}
	return order
}

var stopWords = func() map[string]bool {
	m := make(map[string]bool)
	for _, w := range strings.Fields(`
		the be to of and a in that have i it for not on with he as you do at this
		but his by from they we say her she or an will my one all would there their
		what so up out if about who get which go me when make can like time no just
		him know take people into year your good some could them see other than then
		now look only come its over think also back after use two how our work first
		well way even new want because any these give day most us was had been were
		said very really such another`) {
		m[w] = true
	}
	return m
}()
