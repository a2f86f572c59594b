package i18n

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func initLang(t *testing.T, lang string) context.Context {
	t.Helper()
	if err := Init(lang); err != nil {
		t.Fatalf("Init(%q): %v", lang, err)
	}
	loc := NewLocalizer(lang)
	return WithLocalizer(context.Background(), loc)
}

func TestTranslateEnglish(t *testing.T) {
	ctx := initLang(t, "en")

	got := T(ctx, "TabExam")
	if got != "Exam" {
		t.Errorf("T(TabExam) = %q, want 'Exam'", got)
	}

	got = T(ctx, "GenerateButton")
	if got != "Generate exam" {
		t.Errorf("T(GenerateButton) = %q, want 'Generate exam'", got)
	}
}

func TestTranslateVietnamese(t *testing.T) {
	ctx := initLang(t, "vi")

	got := T(ctx, "TabAnalysis")
	if got != "Phân tích Ma trận" {
		t.Errorf("T(TabAnalysis) = %q, want 'Phân tích Ma trận'", got)
	}

	got = T(ctx, "SolutionVeryDetailed")
	if got != "Rất chi tiết" {
		t.Errorf("T(SolutionVeryDetailed) = %q, want 'Rất chi tiết'", got)
	}
}

func TestPluralTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	if got := Tp(ctx, "PagesDetected", 1); got != "1 page" {
		t.Errorf("Tp(PagesDetected, 1) = %q, want '1 page'", got)
	}
	if got := Tp(ctx, "PagesDetected", 5); got != "5 pages" {
		t.Errorf("Tp(PagesDetected, 5) = %q, want '5 pages'", got)
	}

	ctx = initLang(t, "vi")
	if got := Tp(ctx, "PagesDetected", 1); got != "1 trang" {
		t.Errorf("Tp(PagesDetected, 1) vi = %q, want '1 trang'", got)
	}
}

func TestTemplateDataTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	got := Td(ctx, "ErrorBadRequest", map[string]any{"Detail": "image too small"})
	if got != "Bad request: image too small" {
		t.Errorf("Td(ErrorBadRequest) = %q", got)
	}
}

func TestErrorMessagesTranslated(t *testing.T) {
	ids := []string{
		"ErrorMissingCredential", "ErrorInvalidCredential", "ErrorQuotaExceeded",
		"ErrorServiceOverloaded", "ErrorBadRequest", "ErrorEmptyResponse",
		"ErrorMalformedResponse", "ErrorInvalidOption", "ErrorUnknown", "ErrorBusy", "ErrorUpload",
	}
	for _, lang := range []string{"en", "vi"} {
		ctx := initLang(t, lang)
		for _, id := range ids {
			if got := Td(ctx, id, map[string]any{"Detail": "x"}); got == id {
				t.Errorf("%s: missing translation for %s", lang, id)
			}
		}
	}
}

func TestMissingKey(t *testing.T) {
	ctx := initLang(t, "en")

	got := T(ctx, "NonExistentKey")
	if got != "NonExistentKey" {
		t.Errorf("T(NonExistentKey) = %q, want 'NonExistentKey'", got)
	}
}

func TestMatch(t *testing.T) {
	tests := []struct {
		prefs []string
		want  string
	}{
		{[]string{"en"}, "en"},
		{[]string{"vi-VN"}, "vi"},
		{[]string{"en-US,en;q=0.9"}, "en"},
		{[]string{"fr"}, "vi"},
	}
	for _, tt := range tests {
		if got := Match(tt.prefs...); got != tt.want {
			t.Errorf("Match(%v) = %q, want %q", tt.prefs, got, tt.want)
		}
	}
}

func TestMiddlewareQueryOverride(t *testing.T) {
	if err := Init("vi"); err != nil {
		t.Fatal(err)
	}
	var got string
	h := Middleware("vi")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = T(r.Context(), "TabExam")
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if got != "Đề thi" {
		t.Errorf("default language: got %q", got)
	}

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/?lang=en", nil))
	if got != "Exam" {
		t.Errorf("?lang=en: got %q", got)
	}
}
