package view

import (
	"bytes"
	"html/template"
)

// ViewerPageData provides the dynamic fields required by the viewer template.
type ViewerPageData struct {
	Title            string
	Token            string
	Active           bool
	Revoked          bool
	RemainingSeconds int64
	Message          string
	RedirectURL      string
	PDFURL           string
}

var viewerPageTmpl = template.Must(template.New("viewer_page").Parse(`
<!DOCTYPE html>
<html lang="en">
<head>
	<meta charset="utf-8" />
	<meta name="viewport" content="width=device-width, initial-scale=1" />
	<title>{{if .Title}}{{.Title}}{{else}}Shared document{{end}}</title>
	<style>
		:root {
			--bg: #090a0f;
			--card: rgba(255, 255, 255, 0.05);
			--border: rgba(255, 255, 255, 0.15);
			--text: #e7ecff;
			--muted: #a1acc5;
			--accent: #7dd3fc;
			--warn: #fca5a5;
			font-family: "Inter", -apple-system, BlinkMacSystemFont, "Segoe UI", sans-serif;
		}
		* { box-sizing: border-box; }
		body {
			margin: 0;
			min-height: 100vh;
			display: flex;
			flex-direction: column;
			background: radial-gradient(circle at 20% 20%, #111827, #030712 60%);
			color: var(--text);
		}
		.bar {
			display: flex;
			align-items: center;
			justify-content: space-between;
			padding: 14px 24px;
			background: var(--card);
			border-bottom: 1px solid var(--border);
			backdrop-filter: blur(18px);
		}
		.bar h1 { font-size: 1rem; margin: 0; font-weight: 600; }
		.timer { font-size: 0.9rem; color: var(--muted); }
		.timer.low { color: var(--warn); }
		.frame {
			flex: 1;
			border: none;
			width: 100%;
		}
		.card {
			background: var(--card);
			border: 1px solid var(--border);
			border-radius: 18px;
			padding: 32px;
			width: min(520px, 92vw);
			margin: auto;
			text-align: center;
			box-shadow: 0 45px 100px rgba(0,0,0,0.35);
			backdrop-filter: blur(18px);
		}
		.card h1 { font-size: 1.4rem; margin-bottom: 6px; }
		.card p { color: var(--muted); margin-top: 0; }
	</style>
</head>
<body>
	{{if .Active}}
	<div class="bar">
		<h1>Shared document</h1>
		{{if gt .RemainingSeconds 0}}
		<div class="timer" id="timer">Expires in <span id="countdown">{{.RemainingSeconds}}</span>s</div>
		{{end}}
	</div>
	<iframe class="frame" src="{{.PDFURL}}"></iframe>
	{{else}}
	<div class="card">
		{{if .Revoked}}
		<h1>Link revoked</h1>
		{{else}}
		<h1>Link expired</h1>
		{{end}}
		<p>{{.Message}}</p>
	</div>
	{{end}}

	{{if and .Active (gt .RemainingSeconds 0)}}
	<script>
		(function() {
			let remaining = {{.RemainingSeconds}};
			const countdown = document.getElementById("countdown");
			const timer = document.getElementById("timer");

			const tick = () => {
				remaining -= 1;
				if (remaining <= 0) {
					window.location.reload();
					return;
				}
				if (countdown) {
					countdown.textContent = remaining.toString();
				}
				if (timer && remaining <= 30) {
					timer.classList.add("low");
				}
				setTimeout(tick, 1000);
			};
			setTimeout(tick, 1000);
		})();
	</script>
	{{end}}

	{{if and (not .Active) .RedirectURL}}
	<script>
		setTimeout(function() {
			window.location.assign({{.RedirectURL}});
		}, 3000);
	</script>
	{{end}}
</body>
</html>
`))

// RenderViewerPage expands the viewer page template with the provided data.
func RenderViewerPage(data ViewerPageData) (string, error) {
	if data.Title == "" {
		data.Title = "Shared document"
	}
	var buf bytes.Buffer
	if err := viewerPageTmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
