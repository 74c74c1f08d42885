package llm

import "testing"

func TestExtractCode(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "fenced with language tag",
			in:   "Here you go:\n```python\nresult = head(df)\n```\nDone.",
			want: "result = head(df)",
		},
		{
			name: "fenced without tag",
			in:   "```\nx = 1\ny = 2\n```",
			want: "x = 1\ny = 2",
		},
		{
			name: "bare code",
			in:   "  result = head(df)\n",
			want: "result = head(df)",
		},
		{
			name: "unterminated fence",
			in:   "```\nx = 1\n",
			want: "x = 1",
		},
		{
			name: "only first block",
			in:   "```\nfirst\n```\ntext\n```\nsecond\n```",
			want: "first",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractCode(tt.in); got != tt.want {
				t.Errorf("ExtractCode() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "bare object",
			in:   `{"accept": true}`,
			want: `{"accept": true}`,
		},
		{
			name: "fenced with prose",
			in:   "Sure:\n```json\n{\"accept\": false, \"advice\": \"use sum\"}\n```",
			want: `{"accept": false, "advice": "use sum"}`,
		},
		{
			name: "nested braces",
			in:   `prefix {"a": {"b": 1}} suffix`,
			want: `{"a": {"b": 1}}`,
		},
		{
			name: "braces inside strings",
			in:   `{"msg": "a } b", "ok": true}`,
			want: `{"msg": "a } b", "ok": true}`,
		},
		{
			name: "no object",
			in:   "plain text",
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractJSON(tt.in); got != tt.want {
				t.Errorf("ExtractJSON() = %q, want %q", got, tt.want)
			}
		})
	}
}
