package broadcast

// ClientScript is the JavaScript injected into served pages. It opens the
// notification channel back to the broadcaster and applies reload,
// asset-reload, error, and clear instructions.
const ClientScript = `
<script>
(function() {
    'use strict';

    var reconnectDelay = 1000;
    var maxReconnectDelay = 30000;
    var ws = null;

    function connect() {
        var protocol = location.protocol === 'https:' ? 'wss:' : 'ws:';
        ws = new WebSocket(protocol + '//' + location.host + '/_devloop/ws');

        ws.onopen = function() {
            console.log('[devloop] live reload connected');
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
                    console.log('[devloop] reloading...');
                    location.reload();
                    break;

                case 'asset-reload':
                    console.log('[devloop] reloading assets...', msg.paths);
                    reloadAssets(msg.paths || []);
                    break;

                case 'error':
                    console.error('[devloop] application error:', msg.error);
                    showErrorOverlay(msg.error);
                    break;

                case 'clear':
                    clearErrorOverlay();
                    break;
            }
        };

        ws.onclose = function() {
            console.log('[devloop] connection lost, reconnecting in', reconnectDelay + 'ms');
            setTimeout(function() {
                reconnectDelay = Math.min(reconnectDelay * 2, maxReconnectDelay);
                connect();
            }, reconnectDelay);
        };

        ws.onerror = function() {
            ws.close();
        };
    }

    function isPatchable(path) {
        return /\.(css|png|jpe?g|gif|svg|ico|webp)$/i.test(path);
    }

    function reloadAssets(paths) {
        // Anything the browser cannot patch in place forces a full reload.
        for (var i = 0; i < paths.length; i++) {
            if (!isPatchable(paths[i])) {
                location.reload();
                return;
            }
        }

        var stamp = Date.now();
        document.querySelectorAll('link[rel="stylesheet"]').forEach(function(link) {
            var url = new URL(link.href);
            url.searchParams.set('_devloop', stamp);
            link.href = url.toString();
        });
        document.querySelectorAll('img[src]').forEach(function(img) {
            if (!pathsMatch(paths, img.getAttribute('src'))) {
                return;
            }
            var url = new URL(img.src);
            url.searchParams.set('_devloop', stamp);
            img.src = url.toString();
        });
    }

    function pathsMatch(paths, src) {
        if (!src) {
            return false;
        }
        var name = src.split('?')[0].split('/').pop();
        for (var i = 0; i < paths.length; i++) {
            if (paths[i].split('/').pop() === name) {
                return true;
            }
        }
        return false;
    }

    function showErrorOverlay(error) {
        clearErrorOverlay();

        var overlay = document.createElement('div');
        overlay.id = 'devloop-error-overlay';
        overlay.style.cssText = 'position:fixed;top:0;left:0;right:0;bottom:0;background:rgba(0,0,0,0.9);color:#fff;font-family:monospace;font-size:14px;padding:20px;overflow:auto;z-index:999999;';

        var content = document.createElement('div');
        content.style.cssText = 'max-width:800px;margin:0 auto;';

        var title = document.createElement('h2');
        title.style.cssText = 'color:#ff5555;margin:0 0 20px;';
        title.textContent = 'Application Error';

        var pre = document.createElement('pre');
        pre.style.cssText = 'white-space:pre-wrap;word-wrap:break-word;background:#1a1a1a;padding:20px;border-radius:8px;border:1px solid #333;';
        pre.textContent = error;

        var hint = document.createElement('p');
        hint.style.cssText = 'margin-top:20px;color:#888;';
        hint.textContent = 'Fix the error and save to reload.';

        content.appendChild(title);
        content.appendChild(pre);
        content.appendChild(hint);
        overlay.appendChild(content);
        document.body.appendChild(overlay);
    }

    function clearErrorOverlay() {
        var overlay = document.getElementById('devloop-error-overlay');
        if (overlay) {
            overlay.remove();
        }
    }

    // Connect on load
    if (document.readyState === 'loading') {
        document.addEventListener('DOMContentLoaded', connect);
    } else {
        connect();
    }
})();
</script>
`
