package browser

// targetAttr marks the single element a locator resolved to so that chromedp
// actions can address it with a plain CSS query.
const targetAttr = "data-operator-target"

// resolverJS evaluates a locator chain in the page. It is called with the
// JSON-encoded chain and the marker attribute, and returns the match count,
// plus visibility and text of the match when the chain resolves to exactly
// one element.
const resolverJS = `(function(chain, mark) {
  const norm = s => (s || '').replace(/\s+/g, ' ').trim();
  const match = (text, want, exact) => {
    text = norm(text);
    if (!text) return false;
    return exact ? text === want : text.toLowerCase().includes(want.toLowerCase());
  };
  const skip = ['SCRIPT', 'STYLE', 'HEAD', 'TITLE', 'NOSCRIPT', 'TEMPLATE'];
  const all = scope => Array.from(scope.querySelectorAll('*')).filter(el => !skip.includes(el.tagName));
  const implicitRole = el => {
    const tag = el.tagName.toLowerCase();
    const type = (el.getAttribute('type') || '').toLowerCase();
    if (/^h[1-6]$/.test(tag)) return 'heading';
    switch (tag) {
      case 'a': return el.hasAttribute('href') ? 'link' : '';
      case 'button': return 'button';
      case 'select': return el.multiple ? 'listbox' : 'combobox';
      case 'textarea': return 'textbox';
      case 'img': return 'img';
      case 'ul': case 'ol': return 'list';
      case 'li': return 'listitem';
      case 'nav': return 'navigation';
      case 'form': return 'form';
      case 'table': return 'table';
      case 'option': return 'option';
      case 'dialog': return 'dialog';
      case 'input':
        if (['button', 'submit', 'reset', 'image'].includes(type)) return 'button';
        if (type === 'checkbox') return 'checkbox';
        if (type === 'radio') return 'radio';
        if (type === 'search') return 'searchbox';
        if (type === 'range') return 'slider';
        if (type === 'number') return 'spinbutton';
        if (type === 'hidden') return '';
        return 'textbox';
    }
    return '';
  };
  const role = el => el.getAttribute('role') || implicitRole(el);
  const labelText = el => {
    const parts = [];
    if (el.labels) for (const l of el.labels) parts.push(l.innerText);
    return norm(parts.join(' ')) || norm(el.getAttribute('aria-label'));
  };
  const accName = el => {
    const by = el.getAttribute('aria-labelledby');
    if (by) {
      return norm(by.split(/\s+/).map(id => {
        const n = document.getElementById(id);
        return n ? n.innerText : '';
      }).join(' '));
    }
    const label = labelText(el);
    if (label) return label;
    if (el.tagName === 'INPUT' && ['button', 'submit', 'reset'].includes(el.type)) return norm(el.value);
    if (el.tagName === 'IMG') return norm(el.alt);
    return norm(el.innerText || el.textContent) || norm(el.getAttribute('title'));
  };
  const byText = (scope, want, exact) => {
    const hits = all(scope).filter(el => match(el.innerText || el.textContent, want, exact));
    return hits.filter(el => !hits.some(o => o !== el && el.contains(o)));
  };
  const byAttr = (scope, attr, want, exact) =>
    all(scope).filter(el => match(el.getAttribute(attr), want, exact));
  const visible = el => {
    const r = el.getBoundingClientRect();
    const st = getComputedStyle(el);
    return r.width > 0 && r.height > 0 && st.visibility !== 'hidden' && st.display !== 'none';
  };

  let set = [document.documentElement];
  for (const step of chain) {
    if (step.kind === 'nth') {
      const i = step.index < 0 ? set.length + step.index : step.index;
      set = i >= 0 && i < set.length ? [set[i]] : [];
      continue;
    }
    if (step.kind === 'first') { set = set.slice(0, 1); continue; }
    if (step.kind === 'last') { set = set.slice(-1); continue; }

    const next = [];
    for (const scope of set) {
      let found;
      switch (step.kind) {
        case 'locator': found = Array.from(scope.querySelectorAll(step.value)); break;
        case 'get_by_text': found = byText(scope, step.value, step.exact); break;
        case 'get_by_role':
          found = all(scope).filter(el => role(el) === step.value &&
            (!step.name || match(accName(el), step.name, step.exact)));
          break;
        case 'get_by_label': found = all(scope).filter(el => match(labelText(el), step.value, step.exact)); break;
        case 'get_by_placeholder': found = byAttr(scope, 'placeholder', step.value, step.exact); break;
        case 'get_by_test_id': found = all(scope).filter(el => el.getAttribute('data-testid') === step.value); break;
        case 'get_by_alt_text': found = byAttr(scope, 'alt', step.value, step.exact); break;
        case 'get_by_title': found = byAttr(scope, 'title', step.value, step.exact); break;
        default: throw new Error('unsupported locator ' + step.kind);
      }
      for (const el of found) if (!next.includes(el)) next.push(el);
    }
    set = next;
  }

  document.querySelectorAll('[' + mark + ']').forEach(el => el.removeAttribute(mark));
  const one = set.length === 1 ? set[0] : null;
  if (one) one.setAttribute(mark, '1');
  return {
    count: set.length,
    visible: one ? visible(one) : false,
    text: one ? norm(one.innerText || one.textContent) : ''
  };
})`

const selectOptionJS = `(function(sel, want) {
  const el = document.querySelector(sel);
  const opt = Array.from(el.options || []).find(o => o.value === want || o.label === want || o.text.trim() === want);
  if (!opt) return false;
  el.value = opt.value;
  el.dispatchEvent(new Event('input', { bubbles: true }));
  el.dispatchEvent(new Event('change', { bubbles: true }));
  return true;
})`

const centerJS = `(function(sel) {
  const r = document.querySelector(sel).getBoundingClientRect();
  return [r.x + r.width / 2, r.y + r.height / 2];
})`
