package scrape

import "testing"

func TestApplyTransform(t *testing.T) {
	tests := []struct {
		name      string
		transform string
		arg       string
		in        string
		want      string
	}{
		{name: "trim", transform: "trim", in: "  공고  ", want: "공고"},
		{name: "firstLine keeps head", transform: "firstLine", in: "첫 줄\n둘째 줄", want: "첫 줄"},
		{name: "firstLine without newline", transform: "firstLine", in: " 한 줄 ", want: "한 줄"},
		{name: "stripPrefix", transform: "stripPrefix", arg: "[공고]", in: "[공고] 입찰 안내", want: "입찰 안내"},
		{name: "stripSuffix", transform: "stripSuffix", arg: "건", in: "첨부 3건", want: "첨부 3"},
		{name: "digitsOnly", transform: "digitsOnly", in: "조회 1,234회", want: "1234"},
		{name: "joinParts with space", transform: "joinParts", arg: " ", in: "a" + Separator + "b", want: "a b"},
		{name: "joinParts default collapses", transform: "joinParts", in: "a" + Separator + "b", want: "ab"},
		{name: "urlEncodeJoin", transform: "urlEncodeJoin", in: "한글" + Separator + "a b", want: "%ED%95%9C%EA%B8%80a+b"},
		{name: "onclickHref single quotes", transform: "onclickHref", in: "location.href='view.do?id=3'", want: "view.do?id=3"},
		{name: "onclickHref double quotes", transform: "onclickHref", in: `fnView("33871","BID")`, want: "33871"},
		{name: "onclickHref no quoted token", transform: "onclickHref", in: "history.back()", want: ""},
		{name: "prependBase", transform: "prependBase", arg: "https://x.go.kr/view?id=", in: "42", want: "https://x.go.kr/view?id=42"},
		{name: "prependBase keeps empty empty", transform: "prependBase", arg: "https://x.go.kr/", in: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ApplyTransform(tt.transform, tt.arg, tt.in)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("%s(%q, %q) = %q, want %q", tt.transform, tt.in, tt.arg, got, tt.want)
			}
		})
	}
}

func TestApplyTransformUnknownName(t *testing.T) {
	if _, err := ApplyTransform("eval", "", "x"); err == nil {
		t.Fatal("expected error for unknown transform")
	}
}

func TestKnownTransform(t *testing.T) {
	if !KnownTransform("") {
		t.Error("empty transform name must be valid")
	}
	if !KnownTransform("onclickHref") {
		t.Error("registered transform reported unknown")
	}
	if KnownTransform("eval") {
		t.Error("unregistered transform reported known")
	}
}
