package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStorage struct {
	files map[string][]byte
	err   error
}

func (m *memStorage) Save(ctx context.Context, key string, data []byte) error {
	if m.files == nil {
		m.files = map[string][]byte{}
	}
	m.files[key] = data
	return nil
}

func (m *memStorage) Read(ctx context.Context, key string) ([]byte, error) {
	if m.err != nil {
		return nil, m.err
	}
	data, ok := m.files[key]
	if !ok {
		return nil, errors.New("no such file")
	}
	return data, nil
}

func (m *memStorage) Delete(ctx context.Context, key string) error { return nil }
func (m *memStorage) Healthy(ctx context.Context) error            { return nil }

func newTestExtractor(store *memStorage) *ExtractService {
	return NewExtractService(store, 20, 50000, 150, 5*time.Second)
}

func TestExtractRejectsNonPDF(t *testing.T) {
	store := &memStorage{files: map[string][]byte{
		"cv.pdf": []byte("this is plain text pretending to be a pdf"),
	}}

	_, err := newTestExtractor(store).Extract(context.Background(), "cv.pdf")

	var extractErr *ExtractionError
	require.ErrorAs(t, err, &extractErr)
	assert.Contains(t, extractErr.Reason, "not a valid PDF")
}

func TestExtractRejectsCorruptPDF(t *testing.T) {
	store := &memStorage{files: map[string][]byte{
		"cv.pdf": []byte("%PDF-1.7 but nothing else here"),
	}}

	_, err := newTestExtractor(store).Extract(context.Background(), "cv.pdf")

	var extractErr *ExtractionError
	require.ErrorAs(t, err, &extractErr)
}

func TestExtractStorageFailure(t *testing.T) {
	store := &memStorage{err: errors.New("bucket unavailable")}

	_, err := newTestExtractor(store).Extract(context.Background(), "cv.pdf")

	var extractErr *ExtractionError
	require.ErrorAs(t, err, &extractErr)
	assert.Contains(t, extractErr.Reason, "cannot read stored file")
}

func TestExtractCancelledContext(t *testing.T) {
	store := &memStorage{err: context.Canceled}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestExtractor(store).Extract(ctx, "cv.pdf")

	var timeoutErr *TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, "file read", timeoutErr.Stage)
}

func TestCleanTextNormalizesWhitespace(t *testing.T) {
	in := "First line\r\nSecond   line\twith\ttabs\r\n\n\n\n\nThird line"
	out := CleanText(in)

	assert.Equal(t, "First line\nSecond line with tabs\n\nThird line", out)
}

func TestCleanTextStripsControlCharacters(t *testing.T) {
	in := "Hello\x00World\x07 keep\tthis"
	out := CleanText(in)

	assert.NotContains(t, out, "\x00")
	assert.NotContains(t, out, "\x07")
	assert.Contains(t, out, "HelloWorld")
}

func TestCleanTextDropsPageNumbers(t *testing.T) {
	in := "Experienced engineer with ten years of work.\n2\npage 3\n12 / 20\nMore resume content follows here."
	out := CleanText(in)

	assert.NotContains(t, out, "page 3")
	for _, line := range strings.Split(out, "\n") {
		assert.NotEqual(t, "2", strings.TrimSpace(line))
		assert.NotEqual(t, "12 / 20", strings.TrimSpace(line))
	}
	assert.Contains(t, out, "More resume content")
}

func TestCleanTextDropsShoutyHeaders(t *testing.T) {
	in := "CONFIDENTIAL\nJohn Doe is a software engineer.\nRESUME"
	out := CleanText(in)

	assert.NotContains(t, out, "CONFIDENTIAL")
	assert.NotContains(t, out, "RESUME")
	assert.Contains(t, out, "John Doe")
}

func TestCleanTextKeepsLongUppercaseLines(t *testing.T) {
	in := "PROFESSIONAL EXPERIENCE AND QUALIFICATIONS\nDetails below."
	out := CleanText(in)

	// Long all-caps lines are real section headings, not page furniture.
	assert.Contains(t, out, "PROFESSIONAL EXPERIENCE AND QUALIFICATIONS")
}

func TestTruncateUTF8KeepsRunesIntact(t *testing.T) {
	// Two bytes per rune, so an odd byte cap lands mid-rune.
	text := strings.Repeat("é", 100)

	cut := truncateUTF8(text, 151)
	assert.True(t, utf8.ValidString(cut))
	assert.Equal(t, 150, len(cut))

	cut = truncateUTF8(text, 150)
	assert.True(t, utf8.ValidString(cut))
	assert.Equal(t, 150, len(cut))

	assert.Equal(t, text, truncateUTF8(text, 500))
	assert.Equal(t, "", truncateUTF8("é", 1))
}

func TestTruncateUTF8AccentedText(t *testing.T) {
	// Accented resume text stays valid UTF-8 at every cap.
	text := strings.Repeat("Ingénieur logiciel expérimenté à Orléans. ", 50)
	for max := 100; max < 110; max++ {
		cut := truncateUTF8(text, max)
		assert.True(t, utf8.ValidString(cut), "cap %d", max)
		assert.LessOrEqual(t, len(cut), max)
	}
}

func TestPlausibleWordRatio(t *testing.T) {
	assert.Equal(t, 0.0, plausibleWordRatio(""))
	assert.InDelta(t, 1.0, plausibleWordRatio("this resume describes an experienced engineer"), 0.01)

	garbage := "x1 9z 00 @@ ## 77 q8 // [] %%"
	assert.Less(t, plausibleWordRatio(garbage), minWordRatio)

	// Punctuation-wrapped words still count.
	assert.InDelta(t, 1.0, plausibleWordRatio("(hello), \"world\"! engineering."), 0.01)
}
