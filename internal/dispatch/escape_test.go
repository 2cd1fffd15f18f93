package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEscapeHTML(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{"tags", `<script>alert("xss")</script>`, `&lt;script&gt;alert("xss")&lt;/script&gt;`},
		{"ampersand", "Price: $100 & up", "Price: $100 &amp; up"},
		{"comparison", "x < 10 && y > 5", "x &lt; 10 &amp;&amp; y &gt; 5"},
		{"multiple ampersands", "R&D && Q&A", "R&amp;D &amp;&amp; Q&amp;A"},
		{"script only", "<script>", "&lt;script&gt;"},
		{"empty", "", ""},
		{"already escaped is escaped again", "&lt;div&gt;", "&amp;lt;div&amp;gt;"},
		{"quotes untouched", `say "hi" & 'bye'`, `say "hi" &amp; 'bye'`},
		{"emoji", "🚀 <b>", "🚀 &lt;b&gt;"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, EscapeHTML(tc.input))
		})
	}
}
