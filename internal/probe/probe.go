// Package probe implements the page-local probe. It runs against one loaded
// page, re-derives page-level security signals independently of the
// background monitor and reports them over a Messenger.
package probe

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/eliteGoblin/focusd/focusguard/internal/domain"
	"github.com/eliteGoblin/focusd/focusguard/internal/policy"
	"github.com/eliteGoblin/focusd/focusguard/internal/state"
)

// sensitiveNameHints mark text inputs that likely carry credentials or card data.
var sensitiveNameHints = []string{"password", "credit", "card"}

// Page is a loaded document and the URL it came from.
type Page struct {
	URL *url.URL
	Doc *html.Node
}

// ParsePage parses an HTML document fetched from rawURL.
func ParsePage(rawURL string, r io.Reader) (*Page, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid page url: %w", err)
	}
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse page: %w", err)
	}
	return &Page{URL: u, Doc: doc}, nil
}

// Hostname returns the page's lowercase hostname.
func (p *Page) Hostname() string {
	return strings.ToLower(p.URL.Hostname())
}

// IsHTTP reports whether the page was served over plaintext http.
func (p *Page) IsHTTP() bool {
	return strings.EqualFold(p.URL.Scheme, "http")
}

// Render writes the current document.
func (p *Page) Render(w io.Writer) error {
	return html.Render(w, p.Doc)
}

// Forms returns every form element in document order.
func (p *Page) Forms() []*html.Node {
	return findAll(p.Doc, func(n *html.Node) bool { return isTag(n, atom.Form) })
}

// Mutation is a structural change to the document: nodes added under Target.
type Mutation struct {
	Target *html.Node
	Added  []*html.Node
}

// Insert parses markup in the context of the element named by selector and
// appends it there, returning the resulting mutation. selector is "#id", a
// tag name, or empty for the body.
func (p *Page) Insert(selector, markup string) (Mutation, error) {
	target := p.Select(selector)
	if target == nil {
		return Mutation{}, fmt.Errorf("no element matches %q", selector)
	}
	added, err := html.ParseFragment(strings.NewReader(markup), target)
	if err != nil {
		return Mutation{}, fmt.Errorf("failed to parse fragment for %q: %w", selector, err)
	}
	for _, n := range added {
		target.AppendChild(n)
	}
	return Mutation{Target: target, Added: added}, nil
}

// Select returns the first element matching selector ("#id" or a tag
// name), or the body when selector is empty.
func (p *Page) Select(selector string) *html.Node {
	selector = strings.TrimSpace(selector)
	switch {
	case selector == "":
		return findFirst(p.Doc, atom.Body)
	case strings.HasPrefix(selector, "#"):
		id := selector[1:]
		found := findAll(p.Doc, func(n *html.Node) bool { return attr(n, "id") == id })
		if len(found) == 0 {
			return nil
		}
		return found[0]
	default:
		a := atom.Lookup([]byte(strings.ToLower(selector)))
		if a == 0 {
			return nil
		}
		return findFirst(p.Doc, a)
	}
}

// contains reports whether n is still attached to the document.
func (p *Page) contains(n *html.Node) bool {
	for ; n != nil; n = n.Parent {
		if n == p.Doc {
			return true
		}
	}
	return false
}

// Probe inspects one page.
type Probe struct {
	page      *Page
	messenger domain.Messenger
	store     domain.Store
	phishing  policy.Family
	logger    *zap.Logger
}

// New creates a probe for page using the digit-substitution phishing family.
func New(page *Page, messenger domain.Messenger, store domain.Store, logger *zap.Logger) *Probe {
	return &Probe{
		page:      page,
		messenger: messenger,
		store:     store,
		phishing:  policy.NewPageFamily(),
		logger:    logger.With(zap.String("page", page.URL.String())),
	}
}

// Run performs the page-load pass.
func (p *Probe) Run(ctx context.Context) {
	p.checkSuspiciousElements(ctx)
	p.checkPhishing(ctx)
}

// Observe handles a structural mutation. Mutations under a subtree that
// has since been detached, e.g. by the block notice, are ignored.
func (p *Probe) Observe(ctx context.Context, m Mutation) {
	if len(m.Added) == 0 {
		return
	}
	if m.Target != nil && !p.page.contains(m.Target) {
		p.logger.Debug("ignoring mutation of a detached subtree")
		return
	}
	p.checkSuspiciousElements(ctx)
	p.checkCookieScripts(ctx, m.Added)
}

// OnSubmit warns about a form submitted over plaintext http.
func (p *Probe) OnSubmit(ctx context.Context, form *html.Node) {
	if !p.page.IsHTTP() || form == nil {
		return
	}
	inputs := findAll(form, func(n *html.Node) bool {
		if isTag(n, atom.Textarea) {
			return true
		}
		if !isTag(n, atom.Input) {
			return false
		}
		switch inputType(n) {
		case "text", "password", "email":
			return true
		}
		return false
	})
	if len(inputs) == 0 {
		return
	}
	p.send(ctx, domain.Message{
		Type:     domain.MsgHTTPFormWarning,
		URL:      p.page.URL.String(),
		Elements: fields(inputs),
	})
}

// HandleMessage answers a query from the background monitor.
func (p *Probe) HandleMessage(ctx context.Context, msg domain.Message) (*domain.Response, error) {
	switch msg.Type {
	case domain.MsgCheckSecurity:
		info := p.SecurityInfo()
		return &domain.Response{OK: true, Security: &info}, nil
	case domain.MsgCheckFocusMode:
		blocked, err := p.EnforceBlock(ctx)
		if err != nil {
			return nil, err
		}
		return &domain.Response{OK: true, Blocked: blocked}, nil
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownMessage, msg.Type)
	}
}

// SecurityInfo summarises the page for the dashboard.
func (p *Probe) SecurityInfo() domain.SecurityInfo {
	return domain.SecurityInfo{
		IsHTTP: p.page.IsHTTP(),
		HasForms: exists(p.page.Doc, func(n *html.Node) bool {
			return isTag(n, atom.Form)
		}),
		HasPasswordFields: exists(p.page.Doc, func(n *html.Node) bool {
			return isTag(n, atom.Input) && inputType(n) == "password"
		}),
	}
}

// EnforceBlock replaces the page body with a block notice when focus mode
// is active and the page's host is blocked. This covers pages loaded before
// the session began; request interception is the primary enforcement.
func (p *Probe) EnforceBlock(ctx context.Context) (bool, error) {
	focus, err := state.Focus(ctx, p.store)
	if err != nil {
		return false, fmt.Errorf("failed to read focus state: %w", err)
	}
	if !focus.Active {
		return false, nil
	}
	sites, err := state.BlockedSites(ctx, p.store)
	if err != nil {
		return false, fmt.Errorf("failed to read blocked sites: %w", err)
	}
	if !policy.NewBlockList(sites).Blocks(p.page.Hostname()) {
		return false, nil
	}

	body := findFirst(p.page.Doc, atom.Body)
	if body == nil {
		return false, fmt.Errorf("page has no body")
	}
	notice, err := html.ParseFragment(strings.NewReader(blockNotice(focus.Duration())), body)
	if err != nil {
		return false, fmt.Errorf("failed to build block notice: %w", err)
	}
	removeChildren(body)
	for _, n := range notice {
		body.AppendChild(n)
	}

	p.logger.Info("page blocked by focus mode", zap.String("host", p.page.Hostname()))
	return true, nil
}

func blockNotice(session time.Duration) string {
	secs := int(session.Seconds())
	return fmt.Sprintf(`<div style="text-align: center; padding: 50px; font-family: Arial, sans-serif;">`+
		`<h1>Focus Mode Active</h1>`+
		`<p>This site is blocked during your focus session.</p>`+
		`<p>Session length: <span id="timer">%d:%02d</span></p>`+
		`</div>`, secs/60, secs%60)
}

// checkSuspiciousElements reports password and card-like fields on http pages.
func (p *Probe) checkSuspiciousElements(ctx context.Context) {
	if !p.page.IsHTTP() {
		return
	}
	elems := findAll(p.page.Doc, isSensitiveInput)
	if len(elems) == 0 {
		return
	}
	p.send(ctx, domain.Message{
		Type:     domain.MsgSuspiciousFormWarning,
		URL:      p.page.URL.String(),
		Elements: fields(elems),
	})
}

// checkPhishing runs the local look-alike heuristic on the page's own host.
func (p *Probe) checkPhishing(ctx context.Context) {
	if _, found := p.phishing.FirstMatch(p.page.Hostname()); !found {
		return
	}
	p.send(ctx, domain.Message{
		Type: domain.MsgPhishingWarning,
		URL:  p.page.URL.String(),
	})
}

// checkCookieScripts reports inserted same-origin scripts whose source
// references cookies.
func (p *Probe) checkCookieScripts(ctx context.Context, added []*html.Node) {
	for _, root := range added {
		scripts := findAll(root, func(n *html.Node) bool { return isTag(n, atom.Script) })
		for _, s := range scripts {
			src := attr(s, "src")
			if src == "" || !strings.Contains(strings.ToLower(src), "cookie") {
				continue
			}
			if !p.sameOrigin(src) {
				continue
			}
			p.send(ctx, domain.Message{
				Type: domain.MsgCookieScriptDetected,
				URL:  p.page.URL.String(),
			})
			return
		}
	}
}

func (p *Probe) sameOrigin(src string) bool {
	ref, err := url.Parse(src)
	if err != nil {
		return false
	}
	abs := p.page.URL.ResolveReference(ref)
	return strings.EqualFold(abs.Scheme, p.page.URL.Scheme) &&
		strings.EqualFold(abs.Host, p.page.URL.Host)
}

func (p *Probe) send(ctx context.Context, msg domain.Message) {
	if p.messenger == nil {
		return
	}
	if _, err := p.messenger.Send(ctx, msg); err != nil {
		p.logger.Warn("failed to report to monitor",
			zap.String("type", string(msg.Type)),
			zap.Error(err))
	}
}

func isSensitiveInput(n *html.Node) bool {
	if !isTag(n, atom.Input) {
		return false
	}
	switch inputType(n) {
	case "password":
		return true
	case "text":
		name := strings.ToLower(attr(n, "name"))
		for _, hint := range sensitiveNameHints {
			if strings.Contains(name, hint) {
				return true
			}
		}
	}
	return false
}

func fields(nodes []*html.Node) []domain.FormField {
	out := make([]domain.FormField, 0, len(nodes))
	for _, n := range nodes {
		typ := "textarea"
		if isTag(n, atom.Input) {
			typ = inputType(n)
		}
		out = append(out, domain.FormField{Name: attr(n, "name"), Type: typ})
	}
	return out
}
