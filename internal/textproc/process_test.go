package textproc

import "testing"

func TestCleanFillers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "empty", in: "", want: ""},
		{name: "plain text untouched", in: "今天天气不错。", want: "今天天气不错。"},
		{name: "standalone particle", in: "嗯嗯", want: ""},
		{name: "standalone particle with comma", in: "呃，", want: ""},
		{name: "standalone english um", in: "Um.", want: ""},
		{name: "standalone english uh", in: "uh", want: ""},
		{name: "leading particle", in: "嗯，今天天气不错。", want: "今天天气不错。"},
		{name: "trailing particle", in: "明白了嗯", want: "明白了"},
		{name: "particle between punctuation", in: "你好，嗯，再见", want: "你好，再见"},
		{name: "stutter", in: "那个那个我想说", want: "我想说"},
		{name: "clause opener at start", in: "就是说，我们开始吧", want: "我们开始吧"},
		{name: "clause opener after period", in: "好的。就是说，开始", want: "好的。开始"},
		{name: "interjection at start", in: "哎呀，忘了带伞", want: "忘了带伞"},
		{name: "trailing softener", in: "走了嘛", want: "走了"},
		{name: "english filler at start", in: "Um, I think so.", want: "I think so."},
		{name: "english filler mid sentence", in: "I think, um, it works", want: "I think, it works"},
		{name: "whitespace trimmed", in: "  你好  ", want: "你好"},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := Clean(tc.in, DefaultOptions()); got != tc.want {
				t.Errorf("Clean(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestCleanPunctuationArtifacts(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "double comma collapsed", in: "你好，，再见", want: "你好，再见"},
		{name: "double period collapsed", in: "结束了。。", want: "结束了。"},
		{name: "leading comma removed", in: "，开始", want: "开始"},
		{name: "trailing comma removed", in: "结束，", want: "结束"},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := Clean(tc.in, DefaultOptions()); got != tc.want {
				t.Errorf("Clean(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestCleanDisabled(t *testing.T) {
	t.Parallel()

	in := "嗯，今天天气不错"
	got := Clean(in, Options{})
	if got != in {
		t.Errorf("Clean with all stages disabled = %q, want input unchanged", got)
	}
}
