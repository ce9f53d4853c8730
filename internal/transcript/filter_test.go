package transcript

import "testing"

func TestFilterPassesNormalSpeech(t *testing.T) {
	in := "오늘 날씨 어때?"
	if got := Filter(in); got != in {
		t.Errorf("got %q, want %q", got, in)
	}
}

func TestFilterDropsKnownHallucinations(t *testing.T) {
	cases := []string{
		"MBC 뉴스 이덕영입니다",
		"시청해주셔서 감사합니다",
		"Thanks for watching",
		"자막",
	}
	for _, c := range cases {
		if got := Filter(c); got != "" {
			t.Errorf("Filter(%q) = %q, want empty", c, got)
		}
	}
}

func TestFilterDropsEmbeddedPhrase(t *testing.T) {
	in := "네 그럼 여기까지입니다 시청해주셔서 감사합니다 안녕히 계세요"
	if got := Filter(in); got != "" {
		t.Errorf("got %q, want empty", got)
	}
}

func TestFilterKeepsEmptyInput(t *testing.T) {
	if got := Filter(""); got != "" {
		t.Errorf("got %q, want empty", got)
	}
}

func TestIsHallucinationCaseSensitive(t *testing.T) {
	// Matching is deliberately exact; lowercased variants are real speech.
	if IsHallucination("thanks for watching the kids today") {
		t.Error("lowercase variant should not match")
	}
}
