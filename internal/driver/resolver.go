package driver

import (
	"encoding/json"
	"fmt"
)

// handleAttr tags the element a Locate call resolved to.
const handleAttr = "data-uiverify-handle"

// resolverJS finds the element described by a JSON-encoded Locator and tags
// it with handleAttr. Role matching follows implicit ARIA roles and an
// approximation of the accessible name; elements that are not rendered are
// excluded from role matches the same way the accessibility tree excludes them.
const resolverJS = `(function(query, handle) {
  const norm = s => (s || '').replace(/\s+/g, ' ').trim();
  const nameMatch = (actual, want, exact) => {
    actual = norm(actual); want = norm(want);
    return exact ? actual === want : actual.toLowerCase().includes(want.toLowerCase());
  };
  const rendered = el => {
    if (el.closest('[aria-hidden="true"]')) return false;
    const st = getComputedStyle(el);
    if (st.visibility === 'hidden' || st.display === 'none') return false;
    return el.getClientRects().length > 0;
  };
  const implicitRole = el => {
    const tag = el.tagName.toLowerCase();
    const type = (el.getAttribute('type') || '').toLowerCase();
    switch (tag) {
      case 'button': return 'button';
      case 'a': return el.hasAttribute('href') ? 'link' : '';
      case 'h1': case 'h2': case 'h3': case 'h4': case 'h5': case 'h6': return 'heading';
      case 'select': return (el.multiple || el.size > 1) ? 'listbox' : 'combobox';
      case 'textarea': return 'textbox';
      case 'dialog': return 'dialog';
      case 'img': return 'img';
      case 'nav': return 'navigation';
      case 'option': return 'option';
      case 'input':
        if (['button', 'submit', 'reset', 'image'].includes(type)) return 'button';
        if (type === 'checkbox') return 'checkbox';
        if (type === 'radio') return 'radio';
        if (type === 'search') return 'searchbox';
        if (['', 'text', 'email', 'tel', 'url', 'password'].includes(type)) return 'textbox';
        return '';
    }
    return '';
  };
  const roleOf = el => {
    const r = el.getAttribute('role');
    return r ? r.split(/\s+/)[0] : implicitRole(el);
  };
  const textOfIds = ids => norm((ids || '').split(/\s+/).map(id => {
    const n = id ? document.getElementById(id) : null;
    return n ? n.textContent : '';
  }).join(' '));
  const labelText = el => {
    const parts = [];
    if (el.id) {
      document.querySelectorAll('label[for="' + CSS.escape(el.id) + '"]').forEach(l => parts.push(l.textContent));
    }
    const wrap = el.closest('label');
    if (wrap) parts.push(wrap.textContent);
    return norm(parts.join(' '));
  };
  const accName = el => {
    const by = textOfIds(el.getAttribute('aria-labelledby'));
    if (by) return by;
    const aria = norm(el.getAttribute('aria-label'));
    if (aria) return aria;
    const tag = el.tagName.toLowerCase();
    if (tag === 'input' || tag === 'select' || tag === 'textarea') {
      const type = (el.getAttribute('type') || '').toLowerCase();
      if (tag === 'input' && ['button', 'submit', 'reset'].includes(type)) return norm(el.value);
      return labelText(el) || norm(el.getAttribute('placeholder') || el.getAttribute('title'));
    }
    if (tag === 'img') return norm(el.getAttribute('alt') || el.getAttribute('title'));
    return norm(el.textContent) || norm(el.getAttribute('title'));
  };
  const matches = (root, s) => {
    const found = [];
    if (s.testId) {
      root.querySelectorAll('[data-testid="' + CSS.escape(s.testId) + '"]').forEach(el => found.push(el));
    } else if (s.label) {
      root.querySelectorAll('input, select, textarea, [aria-label], [aria-labelledby]').forEach(el => {
        const names = [labelText(el), el.getAttribute('aria-label'), textOfIds(el.getAttribute('aria-labelledby'))];
        if (names.some(n => norm(n) && nameMatch(n, s.label, s.exact))) found.push(el);
      });
    } else if (s.role) {
      const re = s.namePattern ? new RegExp(s.namePattern) : null;
      root.querySelectorAll('*').forEach(el => {
        if (roleOf(el) !== s.role || !rendered(el)) return;
        if (s.name && !nameMatch(accName(el), s.name, s.exact)) return;
        if (re && !re.test(accName(el))) return;
        found.push(el);
      });
    }
    return found;
  };
  const resolve = s => {
    let root = document;
    if (s.within) {
      root = resolve(s.within);
      if (!root) return null;
    }
    return matches(root, s)[s.nth || 0] || null;
  };
  const el = resolve(query);
  if (!el) return false;
  document.querySelectorAll('[` + handleAttr + `="' + handle + '"]').forEach(n => n.removeAttribute('` + handleAttr + `'));
  el.setAttribute('` + handleAttr + `', handle);
  return true;
})`

// visibleJS reports whether the element matching a selector is rendered with
// a non-empty box and not visibility:hidden.
const visibleJS = `(function(sel) {
  const el = document.querySelector(sel);
  if (!el || !el.isConnected) return false;
  const st = getComputedStyle(el);
  if (st.visibility === 'hidden' || st.display === 'none') return false;
  const r = el.getBoundingClientRect();
  return r.width > 0 && r.height > 0;
})`

// existsJS reports whether a selector matches anything.
const existsJS = `(function(sel) { return document.querySelector(sel) !== null; })`

// rectJS returns the viewport rectangle of the element matching a selector.
const rectJS = `(function(sel) {
  const el = document.querySelector(sel);
  if (!el) return null;
  el.scrollIntoView({block: 'center', inline: 'center'});
  const r = el.getBoundingClientRect();
  return {x: r.left, y: r.top, width: r.width, height: r.height};
})`

// selectJS sets a <select> to the option whose value or text equals the
// argument, then fires input and change so framework listeners observe it.
const selectJS = `(function(sel, want) {
  const el = document.querySelector(sel);
  if (!el || el.tagName.toLowerCase() !== 'select') return false;
  const opt = Array.from(el.options).find(o => o.value === want || o.textContent.trim() === want);
  if (!opt) return false;
  const setter = Object.getOwnPropertyDescriptor(HTMLSelectElement.prototype, 'value').set;
  setter.call(el, opt.value);
  el.dispatchEvent(new Event('input', {bubbles: true}));
  el.dispatchEvent(new Event('change', {bubbles: true}));
  return true;
})`

// call renders fn applied to JSON-encoded args.
func call(fn string, args ...interface{}) (string, error) {
	out := "(" + fn + ")("
	for i, a := range args {
		b, err := json.Marshal(a)
		if err != nil {
			return "", fmt.Errorf("encode js argument %d: %w", i, err)
		}
		if i > 0 {
			out += ", "
		}
		out += string(b)
	}
	return out + ")", nil
}

// handleSelector is the CSS selector for a tagged element.
func handleSelector(handle string) string {
	return fmt.Sprintf(`[%s="%s"]`, handleAttr, handle)
}
