package browser

import (
	"encoding/json"
	"fmt"

	"github.com/petrijr/uiflow/internal/pages"
)

// engineJS installs window.__uiflow, the in-page locator engine. It is
// idempotent and prepended to every evaluated expression, so navigation
// never leaves a page without it.
const engineJS = `
if (!window.__uiflow) {
  const norm = s => (s || '').replace(/\s+/g, ' ').trim();
  const text = el => norm(el.innerText !== undefined ? el.innerText : el.textContent);
  const re = p => new RegExp(p, 'i');

  const implicitRole = el => {
    const explicit = el.getAttribute('role');
    if (explicit) return explicit.split(/\s+/)[0];
    const tag = el.tagName.toLowerCase();
    switch (tag) {
      case 'a': return el.hasAttribute('href') ? 'link' : '';
      case 'button': return 'button';
      case 'h1': case 'h2': case 'h3': case 'h4': case 'h5': case 'h6': return 'heading';
      case 'textarea': return 'textbox';
      case 'select': return 'combobox';
      case 'dialog': return 'dialog';
      case 'table': return 'table';
      case 'tr': return 'row';
      case 'nav': return 'navigation';
      case 'li': return 'listitem';
      case 'input': {
        const t = (el.getAttribute('type') || 'text').toLowerCase();
        if (t === 'search') return 'searchbox';
        if (t === 'checkbox' || t === 'radio') return t;
        if (t === 'button' || t === 'submit' || t === 'reset') return 'button';
        if (t === 'text' || t === 'email' || t === 'tel' || t === 'url') return 'textbox';
        return '';
      }
    }
    return '';
  };

  const level = el => {
    const m = /^h([1-6])$/i.exec(el.tagName);
    if (m) return +m[1];
    return +(el.getAttribute('aria-level') || 0);
  };

  const accessibleName = el => {
    const ids = el.getAttribute('aria-labelledby');
    if (ids) {
      const n = norm(ids.split(/\s+/).map(id => {
        const t = document.getElementById(id);
        return t ? t.textContent : '';
      }).join(' '));
      if (n) return n;
    }
    const aria = norm(el.getAttribute('aria-label'));
    if (aria) return aria;
    if (el.labels && el.labels.length) {
      return norm(Array.from(el.labels).map(l => l.textContent).join(' '));
    }
    const tag = el.tagName.toLowerCase();
    if (tag === 'input' || tag === 'textarea') {
      return norm(el.getAttribute('placeholder') || el.getAttribute('title'));
    }
    return text(el) || norm(el.getAttribute('title'));
  };

  const visible = el => {
    if (!el || !el.isConnected) return false;
    const s = getComputedStyle(el);
    if (s.visibility === 'hidden' || s.display === 'none') return false;
    const r = el.getBoundingClientRect();
    return r.width > 0 && r.height > 0;
  };

  const all = root => Array.from(root.querySelectorAll('*'));

  const byRole = (root, l) => all(root).filter(el => {
    if (implicitRole(el) !== l.role) return false;
    if (l.level && level(el) !== l.level) return false;
    if (l.name && accessibleName(el) !== l.name) return false;
    if (l.namePattern && !re(l.namePattern).test(accessibleName(el))) return false;
    return true;
  });

  // Innermost elements whose text matches.
  const byText = (root, l) => {
    const r = re(l.text);
    return all(root).filter(el => {
      if (el.tagName === 'SCRIPT' || el.tagName === 'STYLE') return false;
      if (!r.test(text(el))) return false;
      return !Array.from(el.children).some(c => r.test(text(c)));
    });
  };

  const query = (roots, l) => {
    let out = [];
    for (const root of roots) {
      const found = l.role ? byRole(root, l) : l.text ? byText(root, l) : Array.from(root.querySelectorAll(l.css || '*'));
      for (const el of found) if (!out.includes(el)) out.push(el);
    }
    if (l.hasText) out = out.filter(el => (el.innerText || el.textContent || '').includes(l.hasText));
    if (l.last) return out.length ? [out[out.length - 1]] : [];
    if (l.pick) return out.length > l.nth ? [out[l.nth]] : [];
    return out;
  };

  const resolve = l => query(l.parent ? resolve(l.parent) : [document], l);

  const context = el => {
    if (el.labels && el.labels.length) {
      return norm(Array.from(el.labels).map(l => l.textContent).join(' ')).toLowerCase();
    }
    const group = el.closest('fieldset, [role="group"], .form-group, div');
    return group ? text(group).toLowerCase() : '';
  };

  const field = (el, i) => ({
    index: i,
    name: el.getAttribute('name') || el.id || '',
    placeholder: el.getAttribute('placeholder') || '',
    type: (el.getAttribute('type') || el.tagName).toLowerCase(),
    context: context(el),
    visible: visible(el),
  });

  window.__uiflow = { resolve, visible, text, field };
}
`

// jsLocator is the JSON shape of a pages.Locator for the engine.
type jsLocator struct {
	CSS         string     `json:"css,omitempty"`
	Role        string     `json:"role,omitempty"`
	Name        string     `json:"name,omitempty"`
	NamePattern string     `json:"namePattern,omitempty"`
	Level       int        `json:"level,omitempty"`
	Text        string     `json:"text,omitempty"`
	HasText     string     `json:"hasText,omitempty"`
	Nth         int        `json:"nth"`
	Pick        bool       `json:"pick,omitempty"`
	Last        bool       `json:"last,omitempty"`
	Parent      *jsLocator `json:"parent,omitempty"`
}

func toJS(l pages.Locator) *jsLocator {
	out := &jsLocator{
		CSS:         l.CSS,
		Role:        l.Role,
		Name:        l.Name,
		NamePattern: l.NamePattern,
		Level:       l.Level,
		Text:        l.Text,
		HasText:     l.HasText,
		Nth:         l.Nth,
		Pick:        l.Pick,
		Last:        l.Last,
	}
	if l.Parent != nil {
		out.Parent = toJS(*l.Parent)
	}
	return out
}

// script wraps body, a function body that may use the const loc, into an
// expression that installs the engine first.
func script(l pages.Locator, body string) (string, error) {
	encoded, err := json.Marshal(toJS(l))
	if err != nil {
		return "", fmt.Errorf("encode locator %s: %w", l, err)
	}
	return fmt.Sprintf("(() => {%s\nconst u = window.__uiflow;\nconst loc = %s;\n%s\n})()", engineJS, encoded, body), nil
}

const (
	countBody   = `return u.resolve(loc).length;`
	visibleBody = `const e = u.resolve(loc)[0]; return !!e && u.visible(e);`
	textsBody   = `return u.resolve(loc).map(e => e.innerText !== undefined ? e.innerText : (e.textContent || ''));`
	valueBody   = `const e = u.resolve(loc)[0]; return e ? {found: true, value: String(e.value ?? '')} : {found: false, value: ''};`
	fieldsBody  = `return u.resolve(loc).map((e, i) => u.field(e, i));`
)

func attributeBody(name string) string {
	n, _ := json.Marshal(name)
	return fmt.Sprintf(`const e = u.resolve(loc)[0];
if (!e) return {found: false, value: ''};
const v = e.getAttribute(%s);
return {found: true, value: v === null ? '' : v};`, n)
}

// markBody tags the first match with refAttr so native chromedp actions can
// address it by CSS.
func markBody(ref string) string {
	r, _ := json.Marshal(ref)
	return fmt.Sprintf(`const e = u.resolve(loc)[0];
if (!e) return false;
document.querySelectorAll('[%[1]s]').forEach(n => n.removeAttribute('%[1]s'));
e.setAttribute('%[1]s', %[2]s);
e.scrollIntoView({block: 'center', inline: 'center'});
return true;`, refAttr, r)
}

const refAttr = "data-uiflow-ref"

func refSelector(ref string) string {
	return fmt.Sprintf(`[%s=%q]`, refAttr, ref)
}

// idleProbe is sampled until it settles to decide the page is idle.
const idleProbe = `document.readyState + ':' + performance.getEntriesByType('resource').length`
