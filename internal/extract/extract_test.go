package extract

import (
	"errors"
	"testing"

	"github.com/shouni/go-paper-manga/pkg/domain"
)

func TestExtract_InvalidInput(t *testing.T) {
	t.Run("空のバイト列はExtractionErrorなのだ", func(t *testing.T) {
		_, err := Extract(nil, "empty.pdf")
		var exErr *domain.ExtractionError
		if !errors.As(err, &exErr) {
			t.Fatalf("ExtractionError が返らないのだ: %v", err)
		}
	})

	t.Run("PDFでないバイト列はExtractionErrorなのだ", func(t *testing.T) {
		_, err := Extract([]byte("this is not a pdf at all"), "fake.pdf")
		var exErr *domain.ExtractionError
		if !errors.As(err, &exErr) {
			t.Fatalf("ExtractionError が返らないのだ: %v", err)
		}
	})
}
