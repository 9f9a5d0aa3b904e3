package bulletin

import (
	"testing"
)

// 字体未就绪时 render 必须返回错误而非产出无字图，
// 正常路径由 handler 上的字体下载规则保证
func TestRenderWithoutFont(t *testing.T) {
	if _, err := render("测试内容", styles["喜报"]); err == nil {
		t.Fatal("字体缺失时 render 应当报错")
	}
}

func TestWrapRunes(t *testing.T) {
	tests := []struct {
		name string
		in   string
		n    int
		want string
	}{
		{"shorter than limit", "恭喜发财", 20, "恭喜发财"},
		{"exactly at limit", "一二三四", 4, "一二三四"},
		{"wraps multibyte runes", "一二三四五六", 4, "一二三四\n五六"},
		{"multiple wraps", "abcdefgh", 3, "abc\ndef\ngh"},
		{"empty", "", 20, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := wrapRunes(tt.in, tt.n); got != tt.want {
				t.Fatalf("wrapRunes(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
			}
		})
	}
}
