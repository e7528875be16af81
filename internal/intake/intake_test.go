package intake

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/matsen/firstrecord/internal/apperr"
	"github.com/matsen/firstrecord/internal/logger"
)

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newIntake(t *testing.T, opts ...Option) *Intake {
	t.Helper()
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	in, err := New(t.TempDir(), logger.Discard(), opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return in
}

func pdfBytes(n int) []byte {
	b := make([]byte, n)
	copy(b, "%PDF-1.4\n")
	return b
}

func upload(name string, data []byte) Upload {
	return Upload{FileName: name, Size: int64(len(data)), Body: bytes.NewReader(data)}
}

func TestAccept(t *testing.T) {
	in := newIntake(t)
	asset, err := in.Accept(context.Background(), upload("Kim 2004 (Jeju).PDF", pdfBytes(128)))
	if err != nil {
		t.Fatalf("Accept() error = %v", err)
	}

	wantID := "1714564800000_Kim_2004_Jeju"
	if asset.ID != wantID {
		t.Errorf("ID = %q, want %q", asset.ID, wantID)
	}
	if asset.SanitizedFileName != "Kim_2004_Jeju" || asset.OriginalFileName != "Kim 2004 (Jeju).PDF" {
		t.Errorf("names = %q / %q", asset.SanitizedFileName, asset.OriginalFileName)
	}
	if filepath.Dir(asset.StoragePath) != in.Root() {
		t.Errorf("StoragePath %q not directly under root %q", asset.StoragePath, in.Root())
	}
	data, err := os.ReadFile(asset.StoragePath)
	if err != nil || len(data) != 128 || asset.SizeBytes != 128 {
		t.Errorf("stored %d bytes (err %v), SizeBytes %d", len(data), err, asset.SizeBytes)
	}
}

func TestAccept_SameNameSameMillisecond(t *testing.T) {
	in := newIntake(t)
	a, err := in.Accept(context.Background(), upload("a.pdf", pdfBytes(16)))
	if err != nil {
		t.Fatal(err)
	}
	b, err := in.Accept(context.Background(), upload("a.pdf", pdfBytes(16)))
	if err != nil {
		t.Fatal(err)
	}
	if a.ID == b.ID || a.StoragePath == b.StoragePath {
		t.Errorf("collision: %q and %q", a.ID, b.ID)
	}
}

func TestAccept_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		upload  Upload
		wantErr error
		kind    apperr.Kind
	}{
		{
			name:    "wrong extension",
			upload:  upload("paper.docx", pdfBytes(16)),
			wantErr: ErrUnsupportedType,
			kind:    apperr.KindValidation,
		},
		{
			name:    "extension checked before signature",
			upload:  upload("paper.txt", []byte("hello")),
			wantErr: ErrUnsupportedType,
			kind:    apperr.KindValidation,
		},
		{
			name:    "bad signature",
			upload:  upload("paper.pdf", []byte("<html>not a pdf</html>")),
			wantErr: ErrInvalidSignature,
			kind:    apperr.KindSecurity,
		},
		{
			name:    "empty file",
			upload:  upload("paper.pdf", nil),
			wantErr: ErrInvalidSignature,
			kind:    apperr.KindSecurity,
		},
		{
			name:    "body larger than declared",
			upload:  Upload{FileName: "paper.pdf", Size: -1, Body: bytes.NewReader(pdfBytes(2048))},
			wantErr: ErrTooLarge,
			kind:    apperr.KindSecurity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := newIntake(t, WithMaxBytes(1024))
			_, err := in.Accept(context.Background(), tt.upload)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
			if apperr.KindOf(err) != tt.kind {
				t.Errorf("KindOf = %s, want %s", apperr.KindOf(err), tt.kind)
			}
			entries, _ := os.ReadDir(in.Root())
			if len(entries) != 0 {
				t.Errorf("rejected upload left %d files behind", len(entries))
			}
		})
	}
}

type countingReader struct {
	n int64
}

func (r *countingReader) Read(p []byte) (int, error) {
	r.n += int64(len(p))
	return len(p), nil
}

func TestAccept_51MBRejectedBeforeRead(t *testing.T) {
	in := newIntake(t)
	body := &countingReader{}
	_, err := in.Accept(context.Background(), Upload{FileName: "big.pdf", Size: 51 * 1024 * 1024, Body: body})
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("error = %v, want ErrTooLarge", err)
	}
	if body.n != 0 {
		t.Errorf("read %d bytes of an oversized upload", body.n)
	}
	entries, _ := os.ReadDir(in.Root())
	if len(entries) != 0 {
		t.Errorf("oversized upload persisted %d files", len(entries))
	}
}

func TestSanitizeFileName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"paper.pdf", "paper"},
		{"../../etc/passwd.pdf", "etcpasswd"},
		{`..\..\windows\system32.pdf`, "windowssystem32"},
		{"a..b.pdf", "a.b"},
		{"report.pdf.pdf", "report"},
		{"x.pdf.", "x"},
		{"홍대치 논문.pdf", PlaceholderName},
		{"", PlaceholderName},
		{"...", PlaceholderName},
		{"Kim et al (2004).pdf", "Kim_et_al_2004"},
		{"v1.2-final_draft.PDF", "v1.2-final_draft"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := SanitizeFileName(tt.in)
			if got != tt.want {
				t.Errorf("SanitizeFileName(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSanitizeFileName_IdempotentAndContained(t *testing.T) {
	in := newIntake(t)
	inputs := []string{
		"../../../../tmp/x.pdf", "/abs/path.pdf", `C:\Users\x\doc.pdf`, "....//....//x",
		"a/../b.pdf.pdf.", "name with spaces.pdf", "._-hidden-_.", strings.Repeat("ab/", 200),
		"%2e%2e%2fescape.pdf", "null\x00byte.pdf", "..", ".pdf",
	}
	for _, raw := range inputs {
		once := SanitizeFileName(raw)
		if twice := SanitizeFileName(once); twice != once {
			t.Errorf("not idempotent: %q -> %q -> %q", raw, once, twice)
		}
		if once == "" || strings.ContainsAny(once, `/\`) || strings.Contains(once, "..") {
			t.Errorf("unsafe output %q for %q", once, raw)
		}
		path, err := in.Resolve("1_" + once)
		if err != nil {
			t.Errorf("Resolve(%q) error = %v", once, err)
			continue
		}
		if filepath.Dir(path) != in.Root() {
			t.Errorf("path %q escapes root %q", path, in.Root())
		}
	}
}

func TestResolve_RejectsEscape(t *testing.T) {
	in := newIntake(t)
	for _, id := range []string{"../outside", "sub/dir", "../../etc/passwd"} {
		if _, err := in.Resolve(id); !errors.Is(err, ErrPathEscape) {
			t.Errorf("Resolve(%q) error = %v, want ErrPathEscape", id, err)
		}
	}
}


