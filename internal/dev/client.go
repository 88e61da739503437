package dev

import "strings"

// HostScript exposes window.hotshim.init(appName) to the page. It is the
// HTTP form of calling Init on every native module.
const HostScript = `
<script>
(function() {
    'use strict';

    function post(path, body) {
        return fetch(path, {
            method: 'POST',
            headers: {'Content-Type': 'application/json'},
            body: JSON.stringify(body)
        }).then(function(res) {
            return res.json().then(function(data) {
                if (!res.ok) {
                    throw new Error(data.error || res.statusText);
                }
                return data;
            });
        });
    }

    window.hotshim = {
        init: function(appName) {
            return post('/_hotshim/init', {appName: appName});
        },
        modules: function() {
            return fetch('/_hotshim/modules').then(function(res) { return res.json(); });
        }
    };
})();
</script>
`

// ReloadScript connects to the reload channel and applies its messages.
const ReloadScript = `
<script>
(function() {
    'use strict';

    var reconnectDelay = 1000;
    var maxReconnectDelay = 30000;

    function connect() {
        var protocol = location.protocol === 'https:' ? 'wss:' : 'ws:';
        var ws = new WebSocket(protocol + '//' + location.host + '/_hotshim/reload');

        ws.onopen = function() {
            console.log('[hotshim] live reload connected');
            reconnectDelay = 1000;
            clearErrorOverlay();
        };

        ws.onmessage = function(e) {
            var msg;
            try {
                msg = JSON.parse(e.data);
            } catch (err) {
                return;
            }

            switch (msg.type) {
                case 'reload':
                    location.reload();
                    break;
                case 'css':
                    reloadCSS();
                    break;
                case 'error':
                    console.error('[hotshim] build error:', msg.error);
                    showErrorOverlay(msg.error);
                    break;
                case 'clear':
                    clearErrorOverlay();
                    break;
            }
        };

        ws.onclose = function() {
            setTimeout(function() {
                reconnectDelay = Math.min(reconnectDelay * 2, maxReconnectDelay);
                connect();
            }, reconnectDelay);
        };

        ws.onerror = function() {
            ws.close();
        };
    }

    function reloadCSS() {
        document.querySelectorAll('link[rel="stylesheet"]').forEach(function(link) {
            var url = new URL(link.href);
            url.searchParams.set('_reload', Date.now());
            link.href = url.toString();
        });
    }

    function showErrorOverlay(error) {
        clearErrorOverlay();
        var overlay = document.createElement('pre');
        overlay.id = 'hotshim-error-overlay';
        overlay.style.cssText = 'position:fixed;inset:0;margin:0;padding:20px;background:rgba(0,0,0,0.9);color:#ff5555;font:14px monospace;white-space:pre-wrap;overflow:auto;z-index:999999;';
        overlay.textContent = error;
        document.body.appendChild(overlay);
    }

    function clearErrorOverlay() {
        var overlay = document.getElementById('hotshim-error-overlay');
        if (overlay) {
            overlay.remove();
        }
    }

    if (document.readyState === 'loading') {
        document.addEventListener('DOMContentLoaded', connect);
    } else {
        connect();
    }
})();
</script>
`

// injectScripts inserts scripts before </body>, before </html>, or at the
// end of the document, in that order of preference.
func injectScripts(doc string, scripts ...string) string {
	joined := strings.Join(scripts, "")
	if joined == "" {
		return doc
	}
	if idx := strings.LastIndex(doc, "</body>"); idx != -1 {
		return doc[:idx] + joined + doc[idx:]
	}
	if idx := strings.LastIndex(doc, "</html>"); idx != -1 {
		return doc[:idx] + joined + doc[idx:]
	}
	return doc + joined
}

// defaultIndex is served at "/" when the project has no index document.
func defaultIndex(bundleURL string) string {
	return `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>hotshim</title>
</head>
<body>
<div id="main"></div>
<script src="` + bundleURL + `"></script>
</body>
</html>
`
}
