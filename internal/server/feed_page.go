package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const feedPageHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Decision Feed · Sentinel</title>
    <link rel="icon" href="data:image/svg+xml,<svg xmlns='http://www.w3.org/2000/svg' viewBox='0 0 100 100'><text y='.9em' font-size='90'>◉</text></svg>">
    <link rel="preconnect" href="https://fonts.googleapis.com">
    <link rel="preconnect" href="https://fonts.gstatic.com" crossorigin>
    <link href="https://fonts.googleapis.com/css2?family=Inter:wght@400;500;600&family=JetBrains+Mono:wght@400;500&display=swap" rel="stylesheet">
    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }
        :root {
            --bg: #09090b; --bg-subtle: #18181b; --border: #27272a;
            --text: #fafafa; --text-secondary: #a1a1aa; --text-tertiary: #52525b;
            --allow: #22c55e; --challenge: #eab308; --review: #f97316; --block: #ef4444;
        }
        body {
            font-family: 'Inter', -apple-system, sans-serif;
            background: var(--bg); color: var(--text);
            min-height: 100vh; font-size: 14px;
            -webkit-font-smoothing: antialiased;
        }
        .mono { font-family: 'JetBrains Mono', monospace; }
        .container { max-width: 800px; margin: 0 auto; padding: 0 24px; }
        header {
            border-bottom: 1px solid var(--border); padding: 16px 0;
            position: sticky; top: 0; background: var(--bg); z-index: 100;
        }
        .header-inner { display: flex; justify-content: space-between; align-items: center; }
        .logo { display: flex; align-items: center; gap: 10px; text-decoration: none; color: var(--text); }
        .logo-mark { width: 24px; height: 24px; background: var(--allow); border-radius: 6px; }
        .logo-text { font-weight: 600; font-size: 15px; }

        .feed-header {
            padding: 48px 0 24px;
            display: flex; justify-content: space-between; align-items: flex-end;
            border-bottom: 1px solid var(--border);
        }
        .feed-title { font-size: 24px; font-weight: 600; margin-bottom: 4px; }
        .feed-desc { color: var(--text-secondary); }
        .live-badge {
            display: flex; align-items: center; gap: 8px;
            background: var(--bg-subtle); border: 1px solid var(--border);
            padding: 8px 14px; border-radius: 20px; font-size: 13px; color: var(--text-secondary);
        }
        .live-dot {
            width: 8px; height: 8px; background: var(--allow); border-radius: 50%;
            animation: pulse 2s ease-in-out infinite;
        }
        @keyframes pulse { 0%, 100% { opacity: 1; } 50% { opacity: 0.4; } }

        .dx-list { padding: 0; }
        .dx {
            display: grid; grid-template-columns: 1fr auto;
            gap: 16px; padding: 20px 0; border-bottom: 1px solid var(--border);
            align-items: start;
        }
        .dx.new { animation: slideIn 0.3s ease-out; }
        @keyframes slideIn { from { opacity: 0; transform: translateY(-8px); } to { opacity: 1; transform: translateY(0); } }

        .dx-parties { display: flex; align-items: center; gap: 10px; margin-bottom: 8px; flex-wrap: wrap; }
        .dx-user {
            background: var(--bg-subtle); padding: 6px 12px; border-radius: 6px;
            font-weight: 500; font-size: 14px;
        }
        .dx-rules { color: var(--text-tertiary); font-size: 12px; }
        .dx-action {
            padding: 2px 10px; border-radius: 4px; font-size: 11px;
            text-transform: uppercase; font-weight: 600;
        }
        .dx-action.ALLOW { background: rgba(34,197,94,0.15); color: var(--allow); }
        .dx-action.CHALLENGE { background: rgba(234,179,8,0.15); color: var(--challenge); }
        .dx-action.REVIEW { background: rgba(249,115,22,0.15); color: var(--review); }
        .dx-action.BLOCK { background: rgba(239,68,68,0.15); color: var(--block); }
        .dx-right { text-align: right; }
        .dx-amount { font-size: 18px; font-weight: 600; }
        .dx-score { font-size: 12px; color: var(--text-secondary); margin-top: 4px; }
        .dx-time { font-size: 11px; color: var(--text-tertiary); margin-top: 4px; }

        .empty { text-align: center; padding: 80px 24px; color: var(--text-tertiary); }

        footer { border-top: 1px solid var(--border); padding: 24px 0; margin-top: 48px; text-align: center; color: var(--text-tertiary); font-size: 13px; }
    </style>
</head>
<body>
    <header><div class="container header-inner">
        <a href="/feed" class="logo"><div class="logo-mark"></div><span class="logo-text">Sentinel</span></a>
        <div class="live-badge"><span class="live-dot"></span> Live</div>
    </div></header>
    <main class="container">
        <div class="feed-header">
            <div>
                <h1 class="feed-title">Decision Feed</h1>
                <p class="feed-desc">Transaction risk decisions as they happen</p>
            </div>
        </div>
        <div class="dx-list" id="feed"><div class="empty">Waiting for decisions...</div></div>
    </main>
    <footer><div class="container">Connected via /ws</div></footer>
    <script>
        const formatUSD = n => { const x = parseFloat(n)||0; return '$'+x.toFixed(2); };
        const timeStr = ts => new Date(ts).toLocaleTimeString();
        const decisions = [];
        const MAX_ROWS = 50;

        function render() {
            const el = document.getElementById('feed');
            if (!decisions.length) {
                el.innerHTML = '<div class="empty">Waiting for decisions...</div>';
                return;
            }
            el.innerHTML = decisions.map(d =>
                '<div class="dx new">'+
                    '<div>'+
                        '<div class="dx-parties">'+
                            '<span class="dx-user">'+d.userId+'</span>'+
                            '<span class="dx-action '+d.action+'">'+d.action+'</span>'+
                        '</div>'+
                        (d.triggeredRules ? '<div class="dx-rules mono">'+d.triggeredRules+' rule'+(d.triggeredRules===1?'':'s')+' fired</div>' : '')+
                    '</div>'+
                    '<div class="dx-right">'+
                        '<div class="dx-amount mono">'+formatUSD(d.amount)+'</div>'+
                        '<div class="dx-score">score '+d.score+' · '+d.riskLevel+'</div>'+
                        '<div class="dx-time">'+timeStr(d.createdAt)+'</div>'+
                    '</div>'+
                '</div>'
            ).join('');
        }

        function connect() {
            const proto = location.protocol === 'https:' ? 'wss:' : 'ws:';
            const ws = new WebSocket(proto + '//' + location.host + '/ws');
            ws.onopen = () => ws.send(JSON.stringify({allEvents: true}));
            ws.onmessage = msg => {
                try {
                    const event = JSON.parse(msg.data);
                    if (event.type !== 'decision' && event.type !== 'hold_resolved') return;
                    decisions.unshift(event.data);
                    if (decisions.length > MAX_ROWS) decisions.pop();
                    render();
                } catch (e) { /* ignore malformed frames */ }
            };
            ws.onclose = () => setTimeout(connect, 3000);
        }
        connect();
    </script>
</body>
</html>`

func feedPageHandler(c *gin.Context) {
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.String(http.StatusOK, feedPageHTML)
}
