// Package render turns campaign content into the HTML and text bodies
// handed to the email provider, with Liquid-based personalization.
package render

import (
	_ "embed"
	"fmt"
	"html"
	"strings"
	"sync"
	"time"

	"github.com/osteele/liquid"

	"github.com/sendstuff/campaign-gateway/internal/model"
)

//go:embed layout.html
var defaultLayout string

// Renderer renders campaign bodies. Parsed templates are cached per
// campaign content, keyed by campaign id + updated-at.
type Renderer struct {
	engine *liquid.Engine
	cache  sync.Map // map[string]*liquid.Template
}

func New() *Renderer {
	engine := liquid.NewEngine()

	// {{ name | default: "there" }} for subscribers without a display name
	engine.RegisterFilter("default", func(value any, fallback string) any {
		if value == nil {
			return fallback
		}
		if s := fmt.Sprintf("%v", value); s == "" || s == "<nil>" {
			return fallback
		}
		return value
	})

	return &Renderer{engine: engine}
}

// Bindings builds the Liquid variable scope for one recipient. Subscriber
// metadata keys are exposed directly and never shadow the built-ins.
func Bindings(c *model.Campaign, s model.Subscriber) map[string]any {
	vars := map[string]any{}
	for k, v := range s.Metadata {
		vars[k] = v
	}
	vars["name"] = s.Name
	vars["email"] = s.Email
	vars["subject"] = c.Subject
	vars["year"] = time.Now().Year()
	return vars
}

// HTML produces the outgoing HTML body. The campaign's own HTML is used
// verbatim when present; provider merge tags or client-side template
// syntax in it must survive byte for byte, so it never goes through
// Liquid. Plain content is personalized and rendered into the default
// layout.
func (r *Renderer) HTML(c *model.Campaign, s model.Subscriber) (string, error) {
	if c.HTMLContent != nil && strings.TrimSpace(*c.HTMLContent) != "" {
		return *c.HTMLContent, nil
	}

	vars := Bindings(c, s)

	body, err := r.renderCached("text:"+cacheKey(c), c.Content, vars)
	if err != nil {
		return "", err
	}
	vars["content"] = paragraphs(body)

	return r.renderCached("layout", defaultLayout, vars)
}

// Text produces the plain-text alternative from the campaign content.
func (r *Renderer) Text(c *model.Campaign, s model.Subscriber) (string, error) {
	return r.renderCached("text:"+cacheKey(c), c.Content, Bindings(c, s))
}

func (r *Renderer) renderCached(key, src string, vars map[string]any) (string, error) {
	if t, ok := r.cache.Load(key); ok {
		return t.(*liquid.Template).RenderString(vars)
	}

	t, err := r.engine.ParseString(src)
	if err != nil {
		return "", fmt.Errorf("parse template: %w", err)
	}
	r.cache.Store(key, t)

	return t.RenderString(vars)
}

func cacheKey(c *model.Campaign) string {
	return c.ID + "@" + c.UpdatedAt.UTC().Format(time.RFC3339Nano)
}

// paragraphs wraps plain-text blocks in <p> tags, escaping HTML.
func paragraphs(text string) string {
	var sb strings.Builder
	for _, block := range strings.Split(text, "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		sb.WriteString("<p>")
		sb.WriteString(strings.ReplaceAll(html.EscapeString(block), "\n", "<br/>"))
		sb.WriteString("</p>\n")
	}
	return sb.String()
}
