package service

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/jobhive/cv-insight/internal/storage"
	"github.com/ledongthuc/pdf"
)

// Extraction is the extractor's output: cleaned text plus size metadata.
type Extraction struct {
	Text      string
	WordCount int
	CharCount int
	PageCount int
}

// ExtractService reads a stored PDF and turns it into clean plain text.
// Files whose text is missing or implausible (scanned images, binary noise)
// fail with ExtractionError instead of silently returning garbage.
type ExtractService struct {
	store         storage.Storage
	maxPages      int
	maxTextLength int
	minTextLength int
	timeout       time.Duration
}

func NewExtractService(store storage.Storage, maxPages, maxTextLength, minTextLength int, timeout time.Duration) *ExtractService {
	return &ExtractService{
		store:         store,
		maxPages:      maxPages,
		maxTextLength: maxTextLength,
		minTextLength: minTextLength,
		timeout:       timeout,
	}
}

// minWordRatio is the share of tokens that must look like real words for the
// extraction to count as usable text.
const minWordRatio = 0.5

var pdfMagic = []byte("%PDF-")

func (s *ExtractService) Extract(ctx context.Context, key string) (*Extraction, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	data, err := s.store.Read(ctx, key)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &TimeoutError{Stage: "file read"}
		}
		return nil, &ExtractionError{Reason: fmt.Sprintf("cannot read stored file: %v", err)}
	}
	if !bytes.HasPrefix(data, pdfMagic) {
		return nil, &ExtractionError{Reason: "file is not a valid PDF"}
	}

	type parsed struct {
		text  string
		pages int
		err   error
	}
	done := make(chan parsed, 1)
	go func() {
		text, pages, err := s.parsePDF(data)
		done <- parsed{text: text, pages: pages, err: err}
	}()

	var result parsed
	select {
	case result = <-done:
	case <-ctx.Done():
		return nil, &TimeoutError{Stage: "pdf parse"}
	}
	if result.err != nil {
		return nil, &ExtractionError{Reason: result.err.Error()}
	}

	text := CleanText(result.text)
	if len(text) > s.maxTextLength {
		text = truncateUTF8(text, s.maxTextLength)
	}
	if len(text) < s.minTextLength {
		return nil, &ExtractionError{Reason: "extracted text too short for a meaningful analysis"}
	}
	if ratio := plausibleWordRatio(text); ratio < minWordRatio {
		return nil, &ExtractionError{Reason: fmt.Sprintf("extracted text quality too low (word ratio %.2f)", ratio)}
	}

	return &Extraction{
		Text:      text,
		WordCount: len(strings.Fields(text)),
		CharCount: len(text),
		PageCount: result.pages,
	}, nil
}

func (s *ExtractService) parsePDF(data []byte) (string, int, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", 0, fmt.Errorf("open pdf: %w", err)
	}
	total := reader.NumPage()
	pages := total
	if pages > s.maxPages {
		pages = s.maxPages
	}
	var b strings.Builder
	for n := 1; n <= pages; n++ {
		page := reader.Page(n)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			// A single broken page is tolerable; an all-broken document is
			// caught by the quality gate below.
			continue
		}
		b.WriteString(content)
		b.WriteString("\n")
	}
	return b.String(), total, nil
}

var (
	multiSpaceRe  = regexp.MustCompile(`[ \t]+`)
	multiBlankRe  = regexp.MustCompile(`\n{3,}`)
	pageNumberRe  = regexp.MustCompile(`^\s*(?:page\s*)?\d{1,4}(?:\s*/\s*\d{1,4})?\s*$`)
	mojibakeRe    = regexp.MustCompile(`(?:â€™|â€œ|â€\x9d|â€"|Â|ï¿½|\x{fffd})`)
)

// CleanText normalizes extracted PDF text: line endings, whitespace, control
// characters, encoding artifacts, and page header/footer noise.
func CleanText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = mojibakeRe.ReplaceAllString(text, "")
	text = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, text)

	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		lower := strings.ToLower(trimmed)
		if pageNumberRe.MatchString(lower) {
			continue
		}
		// Short shouty fragments are almost always running headers/footers.
		if len(trimmed) > 0 && len(trimmed) <= 12 &&
			!strings.ContainsAny(trimmed, "abcdefghijklmnopqrstuvwxyz") &&
			strings.ContainsAny(trimmed, "ABCDEFGHIJKLMNOPQRSTUVWXYZ") {
			continue
		}
		kept = append(kept, multiSpaceRe.ReplaceAllString(trimmed, " "))
	}
	text = strings.Join(kept, "\n")
	text = multiBlankRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// truncateUTF8 cuts text to at most max bytes without splitting a rune, so
// the stored column stays valid UTF-8.
func truncateUTF8(text string, max int) string {
	if len(text) <= max {
		return text
	}
	for max > 0 && !utf8.RuneStart(text[max]) {
		max--
	}
	return text[:max]
}

// plausibleWordRatio reports the share of whitespace-separated tokens that
// look like natural-language words: 2-30 runes, mostly letters.
func plausibleWordRatio(text string) float64 {
	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return 0
	}
	plausible := 0
	for _, token := range tokens {
		token = strings.Trim(token, ".,;:()[]{}'\"!?-–—/")
		runes := []rune(token)
		if len(runes) < 2 || len(runes) > 30 {
			continue
		}
		letters := 0
		for _, r := range runes {
			if unicode.IsLetter(r) {
				letters++
			}
		}
		if float64(letters)/float64(len(runes)) >= 0.7 {
			plausible++
		}
	}
	return float64(plausible) / float64(len(tokens))
}
