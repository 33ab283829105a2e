package rewriter

import (
	"encoding/json"
	"fmt"
	"net/url"
)

// shimTemplate is the client-side interception script. It is parameterized
// at emit time with three literals — the proxy base, the current upstream
// scheme, and the current upstream authority — and mirrors the §4.1 URL
// codec's encode rules exactly so that dynamically constructed requests
// (fetch, XHR, form submission, DOM mutations) stay inside the proxy's URL
// space. Short-circuit schemes and "#" pass through untouched.
const shimTemplate = `<script>(function(){
var PROXY_BASE = %s;
var SCHEME = %s;
var AUTHORITY = %s;
var SHORT_CIRCUIT = ["data:","javascript:","mailto:","tel:","blob:","about:"];

function isShortCircuit(u) {
  if (!u || u === "#") return true;
  var lower = String(u).toLowerCase();
  for (var i = 0; i < SHORT_CIRCUIT.length; i++) {
    if (lower.indexOf(SHORT_CIRCUIT[i]) === 0) return true;
  }
  return false;
}

function encodeProxyURL(raw) {
  if (isShortCircuit(raw)) return raw;
  var abs;
  try {
    abs = new URL(raw, SCHEME + "://" + AUTHORITY + "/");
  } catch (e) {
    return raw;
  }
  if (abs.protocol !== "http:" && abs.protocol !== "https:") return raw;
  var scheme = abs.protocol.slice(0, -1);
  var path = abs.pathname + abs.search + abs.hash;
  return PROXY_BASE + "/proxy/" + scheme + "/" + abs.host + path;
}

var nativeFetch = window.fetch;
if (nativeFetch) {
  window.fetch = function(input, init) {
    init = init || {};
    if (init.credentials === undefined) init.credentials = "include";
    if (typeof input === "string") {
      input = encodeProxyURL(input);
    } else if (input && input.url) {
      input = new Request(encodeProxyURL(input.url), input);
    }
    return nativeFetch.call(window, input, init);
  };
}

var nativeOpen = XMLHttpRequest.prototype.open;
XMLHttpRequest.prototype.open = function(method, url) {
  var args = Array.prototype.slice.call(arguments);
  args[1] = encodeProxyURL(url);
  return nativeOpen.apply(this, args);
};

var nativeSend = XMLHttpRequest.prototype.send;
XMLHttpRequest.prototype.send = function() {
  this.withCredentials = true;
  return nativeSend.apply(this, arguments);
};

document.addEventListener("submit", function(ev) {
  var form = ev.target;
  if (!form || form.tagName !== "FORM") return;
  var action = form.getAttribute("action");
  if (!action) action = window.location.pathname + window.location.search;
  form.setAttribute("action", encodeProxyURL(action));
}, true);

function rewriteNode(node) {
  if (!node || node.nodeType !== 1) return;
  var tag = node.tagName ? node.tagName.toLowerCase() : "";
  if (tag === "script" || tag === "img") {
    var src = node.getAttribute("src");
    if (src && src.indexOf(PROXY_BASE) !== 0) {
      node.setAttribute("src", encodeProxyURL(src));
    }
  } else if (tag === "link") {
    var href = node.getAttribute("href");
    if (href && href.indexOf(PROXY_BASE) !== 0) {
      node.setAttribute("href", encodeProxyURL(href));
    }
  }
}

var observer = new MutationObserver(function(mutations) {
  for (var i = 0; i < mutations.length; i++) {
    var added = mutations[i].addedNodes;
    for (var j = 0; j < added.length; j++) {
      rewriteNode(added[j]);
    }
  }
});

if (document.documentElement) {
  observer.observe(document.documentElement, {childList: true, subtree: true});
}
})();</script>`

// Shim renders the client interception script for the given proxy base and
// upstream base URL.
func Shim(proxyBase string, base *url.URL) string {
	scheme, authority := "https", ""
	if base != nil {
		scheme, authority = base.Scheme, base.Host
	}
	return fmt.Sprintf(shimTemplate, jsonString(proxyBase), jsonString(scheme), jsonString(authority))
}

// jsonString renders s as a JSON string literal so it is safe to splice
// directly into the script template.
func jsonString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
