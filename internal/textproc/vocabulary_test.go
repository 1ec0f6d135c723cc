package textproc

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestVocabularyCorrect(t *testing.T) {
	t.Parallel()

	v := NewVocabulary([]string{"Kubernetes", "PostgreSQL", "Grafana"})

	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "exact match normalises casing",
			in:   "deployed kubernetes today",
			want: "deployed Kubernetes today",
		},
		{
			name: "phonetic misspelling corrected",
			in:   "restarted cubernetes again",
			want: "restarted Kubernetes again",
		},
		{
			name: "punctuation preserved",
			in:   "using kubernetes, right?",
			want: "using Kubernetes, right?",
		},
		{
			name: "unrelated words untouched",
			in:   "banana bread recipe",
			want: "banana bread recipe",
		},
		{
			name: "cjk passthrough",
			in:   "今天部署了服务",
			want: "今天部署了服务",
		},
		{
			name: "empty input",
			in:   "",
			want: "",
		},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := v.Correct(tc.in); got != tc.want {
				t.Errorf("Correct(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestVocabularyEmpty(t *testing.T) {
	t.Parallel()

	v := NewVocabulary(nil)
	if got := v.Len(); got != 0 {
		t.Errorf("Len() = %d, want 0", got)
	}
	in := "anything at all"
	if got := v.Correct(in); got != in {
		t.Errorf("empty vocabulary changed text: %q", got)
	}
}

func TestVocabularySkipsNonASCIITerms(t *testing.T) {
	t.Parallel()

	v := NewVocabulary([]string{"模型", "", "  ", "Whisper"})
	if got := v.Len(); got != 1 {
		t.Errorf("Len() = %d, want 1 (only the ASCII term)", got)
	}
}

func TestLoadVocabulary(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "vocab.txt")
	content := strings.Join([]string{
		"# project names",
		"Kubernetes",
		"",
		"PostgreSQL",
	}, "\n")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	v, err := LoadVocabulary(path)
	if err != nil {
		t.Fatalf("LoadVocabulary: %v", err)
	}
	if got := v.Len(); got != 2 {
		t.Errorf("Len() = %d, want 2 (comment and blank skipped)", got)
	}
}

func TestLoadVocabularyMissingFile(t *testing.T) {
	t.Parallel()

	v, err := LoadVocabulary(filepath.Join(t.TempDir(), "absent.txt"))
	if err != nil {
		t.Fatalf("LoadVocabulary on missing file: %v", err)
	}
	if v.Len() != 0 {
		t.Errorf("Len() = %d, want 0", v.Len())
	}
}

func TestVocabularyThresholdOption(t *testing.T) {
	t.Parallel()

	// With an impossibly strict threshold only exact matches correct.
	v := NewVocabulary([]string{"Kubernetes"}, WithCorrectionThreshold(0.999))
	in := "restarted cubernetes again"
	if got := v.Correct(in); got != in {
		t.Errorf("Correct(%q) = %q, want unchanged at strict threshold", in, got)
	}
	if got := v.Correct("kubernetes up"); got != "Kubernetes up" {
		t.Errorf("exact match failed at strict threshold: %q", got)
	}
}
