package render

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sendstuff/campaign-gateway/internal/model"
)

func campaign(content string, html *string) *model.Campaign {
	return &model.Campaign{
		ID:          "01RENDERTEST0000000000000X",
		Subject:     "news",
		Content:     content,
		HTMLContent: html,
		UpdatedAt:   time.Now(),
	}
}

func TestText_Personalization(t *testing.T) {
	r := New()
	sub := model.Subscriber{Name: "Alice", Email: "alice@example.com", Metadata: model.Attributes{"plan": "pro"}}

	out, err := r.Text(campaign("Hi {{ name }}, you are on {{ plan }}.", nil), sub)
	require.NoError(t, err)
	require.Equal(t, "Hi Alice, you are on pro.", out)
}

func TestText_DefaultFilter(t *testing.T) {
	r := New()

	out, err := r.Text(campaign(`Hi {{ name | default: "there" }}!`, nil), model.Subscriber{Email: "x@example.com"})
	require.NoError(t, err)
	require.Equal(t, "Hi there!", out)

	out, err = r.Text(campaign(`Hi {{ name | default: "there" }}!`, nil), model.Subscriber{Name: "Bob"})
	require.NoError(t, err)
	require.Equal(t, "Hi Bob!", out)
}

func TestHTML_WrapsPlainContentInLayout(t *testing.T) {
	r := New()

	out, err := r.HTML(campaign("First line.\n\nSecond <b>bold</b> line.", nil), model.Subscriber{Name: "A"})
	require.NoError(t, err)

	require.Contains(t, out, "<p>First line.</p>")
	// markup in plain content is escaped
	require.Contains(t, out, "Second &lt;b&gt;bold&lt;/b&gt; line.")
	require.Contains(t, out, "SendStuff")
	require.Contains(t, out, fmt.Sprintf("&copy; %d", time.Now().Year()))
	// no unsubscribe_url binding: the default filter kicks in
	require.Contains(t, out, `href="#"`)
}

func TestHTML_CustomHTMLVerbatim(t *testing.T) {
	r := New()
	// foreign template syntax must come through byte for byte
	html := `<html><body>{{#if vip}}Hi VIP{{/if}} {{ name }} {{count}}</body></html>`

	out, err := r.HTML(campaign("ignored", &html), model.Subscriber{Name: "Carol"})
	require.NoError(t, err)
	require.Equal(t, html, out)
	require.NotContains(t, out, "ignored")
}

func TestHTML_BlankCustomHTMLFallsBackToLayout(t *testing.T) {
	r := New()
	html := "   \n"

	out, err := r.HTML(campaign("Hello {{ name }}.", &html), model.Subscriber{Name: "Dana"})
	require.NoError(t, err)
	require.Contains(t, out, "<p>Hello Dana.</p>")
}

func TestHTML_ParseError(t *testing.T) {
	r := New()

	_, err := r.HTML(campaign("{% broken", nil), model.Subscriber{})
	require.Error(t, err)
}

func TestBindings_BuiltinsWinOverMetadata(t *testing.T) {
	c := campaign("x", nil)
	sub := model.Subscriber{
		Name:     "Real",
		Email:    "real@example.com",
		Metadata: model.Attributes{"name": "Shadow", "city": "Berlin"},
	}

	vars := Bindings(c, sub)
	require.Equal(t, "Real", vars["name"])
	require.Equal(t, "Berlin", vars["city"])
	require.Equal(t, "news", vars["subject"])
}

func TestParagraphs(t *testing.T) {
	out := paragraphs("a\nb\n\n  \n\nc")
	require.Equal(t, 2, strings.Count(out, "<p>"))
	require.Contains(t, out, "a<br/>b")
}
