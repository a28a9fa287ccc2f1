package security

import "testing"

func TestTextSanitizer_Sanitize(t *testing.T) {
	sanitizer := NewTextSanitizer()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"プレーンテキストはそのまま", "Living Room Lamp", "Living Room Lamp"},
		{"日本語はそのまま", "リビングの照明", "リビングの照明"},
		{"タグは除去される", "<b>Lamp</b>", "Lamp"},
		{"scriptは中身ごと除去される", "<script>alert(1)</script>Lamp", "Lamp"},
		{"イベント属性を持つタグは除去される", `<img src=x onerror="alert(1)">`, ""},
		{"エスケープされずに保存される", "Tom's Lamp & Co", "Tom's Lamp & Co"},
		{"前後の空白を除去する", "  Lamp  ", "Lamp"},
		{"空文字列", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sanitizer.Sanitize(tt.input); got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestTextSanitizer_Idempotent(t *testing.T) {
	sanitizer := NewTextSanitizer()

	inputs := []string{
		"<p>Kitchen <em>Sensor</em></p>",
		"Tom's Lamp & Co",
		"<a href=\"javascript:alert(1)\">Plug</a>",
	}
	for _, in := range inputs {
		once := sanitizer.Sanitize(in)
		twice := sanitizer.Sanitize(once)
		if once != twice {
			t.Errorf("Sanitize is not idempotent for %q: %q -> %q", in, once, twice)
		}
	}
}
