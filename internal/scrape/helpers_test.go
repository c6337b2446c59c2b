package scrape

import "testing"

func TestAbsoluteURL(t *testing.T) {
	base := "https://board.example/bid/list.do?page=2"

	tests := []struct {
		href string
		want string
	}{
		{"/view.do?id=3", "https://board.example/view.do?id=3"},
		{"view.do?id=3", "https://board.example/bid/view.do?id=3"},
		{"https://other.example/v?id=1", "https://other.example/v?id=1"},
		{"javascript:fnView(3)", "javascript:fnView(3)"},
		{"#none", "#none"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := absoluteURL(base, tt.href); got != tt.want {
			t.Errorf("absoluteURL(%q) = %q, want %q", tt.href, got, tt.want)
		}
	}
}

func TestOriginOf(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://www.ekr.or.kr/board/bidList.do?p=1", "https://www.ekr.or.kr"},
		{"http://host:8080/x", "http://host:8080"},
		{"not a url", ""},
		{"/relative/only", ""},
	}
	for _, tt := range tests {
		if got := originOf(tt.in); got != tt.want {
			t.Errorf("originOf(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeSpace(t *testing.T) {
	if got := normalizeSpace("  입찰\t \n공고  "); got != "입찰 공고" {
		t.Errorf("got %q", got)
	}
}

func TestAppendUnique(t *testing.T) {
	list := []string{"a"}
	list = appendUnique(list, "b")
	list = appendUnique(list, "a")
	list = appendUnique(list, "  ")
	if len(list) != 2 {
		t.Errorf("got %v, want [a b]", list)
	}
}
