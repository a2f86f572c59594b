// Package views renders the HTML pages of the web UI.
package views

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/a-h/templ"

	appI18n "github.com/pavelanni/mathgenius/internal/i18n"
	"github.com/pavelanni/mathgenius/internal/model"
)

// KeyStatus describes the API key currently in effect.
type KeyStatus interface {
	Status() (configured bool, source, masked string)
}

// IndexData is everything the upload page shows.
type IndexData struct {
	Models    []model.Candidate
	Selected  string
	KeyStatus KeyStatus
}

// IndexPage is the single page of the app: upload form, options, key
// management and result tabs.
func IndexPage(d IndexData) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		t := func(id string) string { return templ.EscapeString(appI18n.T(ctx, id)) }
		var b strings.Builder

		b.WriteString(`<!DOCTYPE html><html><head><meta charset="utf-8">`)
		b.WriteString(`<meta name="viewport" content="width=device-width, initial-scale=1">`)
		fmt.Fprintf(&b, `<title>%s</title>`, t("AppTitle"))
		b.WriteString(`<link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/katex@0.16.11/dist/katex.min.css">`)
		b.WriteString(`<script defer src="https://cdn.jsdelivr.net/npm/katex@0.16.11/dist/katex.min.js"></script>`)
		b.WriteString(`<script defer src="https://cdn.jsdelivr.net/npm/katex@0.16.11/dist/contrib/auto-render.min.js"></script>`)
		b.WriteString(`<script defer src="https://cdn.jsdelivr.net/npm/marked/marked.min.js"></script>`)
		b.WriteString(`<script defer src="https://cdn.jsdelivr.net/npm/dompurify@3.1.6/dist/purify.min.js"></script>`)
		b.WriteString(indexStyle)
		b.WriteString(`</head><body><main>`)
		fmt.Fprintf(&b, `<h1>%s</h1><p class="sub">%s</p>`, t("AppTitle"), t("AppSubtitle"))

		// API key
		b.WriteString(`<section id="key"><form id="key-form">`)
		fmt.Fprintf(&b, `<label for="api_key">%s</label>`, t("ApiKeyLabel"))
		b.WriteString(`<input type="password" id="api_key" name="api_key" autocomplete="off">`)
		fmt.Fprintf(&b, `<button type="submit">%s</button>`, t("ApiKeySave"))
		fmt.Fprintf(&b, `<button type="button" id="key-clear">%s</button>`, t("ApiKeyClear"))
		fmt.Fprintf(&b, `<p class="muted" id="key-status">%s</p>`, keyLine(ctx, d.KeyStatus))
		b.WriteString(`</form></section>`)

		// Upload form
		b.WriteString(`<section><form id="generate-form" enctype="multipart/form-data">`)
		fmt.Fprintf(&b, `<label for="file">%s</label>`, t("UploadLabel"))
		b.WriteString(`<input type="file" id="file" name="file" accept="application/pdf,image/jpeg,image/png,image/webp" required>`)

		fmt.Fprintf(&b, `<fieldset><legend>%s</legend>`, t("DiagramModeLabel"))
		for i, m := range model.DiagramModes {
			radio(&b, "diagram_mode", string(m), t(diagramLabel(m)), i == 0)
		}
		b.WriteString(`</fieldset>`)

		fmt.Fprintf(&b, `<fieldset><legend>%s</legend>`, t("SolutionModeLabel"))
		for _, m := range model.SolutionModes {
			radio(&b, "solution_mode", string(m), t(solutionLabel(m)), m == model.SolutionDetailed)
		}
		b.WriteString(`</fieldset>`)

		fmt.Fprintf(&b, `<label for="model">%s</label><select id="model" name="model">`, t("ModelLabel"))
		for _, c := range d.Models {
			sel := ""
			if c.Name == d.Selected {
				sel = " selected"
			}
			fmt.Fprintf(&b, `<option value="%s"%s>%s</option>`,
				templ.EscapeString(c.Name), sel, templ.EscapeString(c.String()))
		}
		b.WriteString(`</select>`)
		fmt.Fprintf(&b, `<button type="submit" id="generate">%s</button>`, t("GenerateButton"))
		b.WriteString(`<p id="status" class="muted"></p><p id="error" class="error"></p>`)
		b.WriteString(`</form></section>`)

		// Result
		b.WriteString(`<section id="result" hidden><nav class="tabs">`)
		fmt.Fprintf(&b, `<button data-view="analysis">%s</button>`, t("TabAnalysis"))
		fmt.Fprintf(&b, `<button data-view="exam" class="active">%s</button>`, t("TabExam"))
		fmt.Fprintf(&b, `<button data-view="solution">%s</button>`, t("TabSolution"))
		b.WriteString(`</nav><article id="view"></article>`)
		fmt.Fprintf(&b, `<div class="export"><span>%s:</span>`, t("ExportLabel"))
		for _, f := range model.Formats {
			fmt.Fprintf(&b, `<button data-format="%s">%s</button>`, f, strings.ToUpper(string(f)))
		}
		b.WriteString(`</div></section></main>`)

		msg, err := json.Marshal(appI18n.Td(ctx, "Generating", map[string]any{"Name": "{name}"}))
		if err != nil {
			return err
		}
		fmt.Fprintf(&b, `<script>const MSG_GENERATING = %s;</script>`, msg)
		b.WriteString(indexScript)
		b.WriteString(`</body></html>`)

		_, err = io.WriteString(w, b.String())
		return err
	})
}

func keyLine(ctx context.Context, ks KeyStatus) string {
	if ks == nil {
		return templ.EscapeString(appI18n.T(ctx, "ApiKeyNone"))
	}
	configured, source, masked := ks.Status()
	switch {
	case !configured:
		return templ.EscapeString(appI18n.T(ctx, "ApiKeyNone"))
	case source == "stored":
		return templ.EscapeString(appI18n.Td(ctx, "ApiKeyStored", map[string]any{"Masked": masked}))
	default:
		return templ.EscapeString(appI18n.Td(ctx, "ApiKeyFromEnv", map[string]any{"Masked": masked}))
	}
}

func radio(b *strings.Builder, name, value, label string, checked bool) {
	c := ""
	if checked {
		c = " checked"
	}
	fmt.Fprintf(b, `<label class="inline"><input type="radio" name="%s" value="%s"%s> %s</label>`,
		name, value, c, label)
}

func diagramLabel(m model.DiagramMode) string {
	if m == model.DiagramDetailed {
		return "DiagramDetailed"
	}
	return "DiagramStandard"
}

func solutionLabel(m model.SolutionMode) string {
	switch m {
	case model.SolutionConcise:
		return "SolutionConcise"
	case model.SolutionVeryDetailed:
		return "SolutionVeryDetailed"
	default:
		return "SolutionDetailed"
	}
}

const indexStyle = `<style>
body { font-family: system-ui, sans-serif; margin: 0; background: #f6f7fb; color: #1f2937; }
main { max-width: 60rem; margin: 0 auto; padding: 2rem 1rem; }
section { background: #fff; border-radius: 8px; padding: 1rem 1.5rem; margin-bottom: 1rem; }
label { display: block; margin-top: .75rem; font-weight: 600; }
label.inline { display: inline-block; font-weight: normal; margin-right: 1rem; }
fieldset { border: none; padding: 0; margin-top: .75rem; }
button { margin-top: .75rem; padding: .4rem 1rem; cursor: pointer; }
.sub, .muted { color: #6b7280; }
.error { color: #b91c1c; }
.tabs button.active { font-weight: 700; border-bottom: 2px solid #2563eb; }
article { padding-top: 1rem; overflow-x: auto; }
table { border-collapse: collapse; } td, th { border: 1px solid #d1d5db; padding: .25rem .5rem; }
</style>`

const indexScript = `<script>
let content = null, fileName = "", view = "exam";
const $ = (s) => document.querySelector(s);
function doc(v) {
  if (!content) return "";
  if (v === "analysis") return content.analysis || "";
  if (content.exam1 !== undefined && content.exam1 !== "") return content.exam1 + "\n\n---\n\n" + content.exam2;
  return (content.examContent || "") + "\n\n---\n\n" + (content.detailedSolution || "");
}
function render() {
  $("#result").hidden = !content;
  const md = doc(view).replace(/\\n/g, "\n");
  if (window.marked && window.DOMPurify) {
    $("#view").innerHTML = DOMPurify.sanitize(marked.parse(md));
  } else {
    $("#view").textContent = md;
  }
  if (window.renderMathInElement) renderMathInElement($("#view"), {delimiters: [
    {left: "$$", right: "$$", display: true}, {left: "$", right: "$", display: false}]});
  document.querySelectorAll(".tabs button").forEach(b => b.classList.toggle("active", b.dataset.view === view));
}
async function fail(resp) {
  let msg = resp.statusText;
  try { msg = (await resp.json()).message; } catch (e) {}
  $("#error").textContent = msg;
}
$("#generate-form").addEventListener("submit", async (e) => {
  e.preventDefault();
  $("#error").textContent = "";
  $("#generate").disabled = true;
  $("#status").textContent = MSG_GENERATING.replace("{name}", $("#file").files[0].name);
  try {
    const resp = await fetch("api/generate", {method: "POST", body: new FormData(e.target)});
    if (!resp.ok) return fail(resp);
    const body = await resp.json();
    content = body.content; fileName = $("#file").files[0].name;
    $("#status").textContent = [content.model, body.pages_label].filter(Boolean).join(" · ");
    render();
  } finally { $("#generate").disabled = false; }
});
document.querySelectorAll(".tabs button").forEach(b => b.addEventListener("click", () => { view = b.dataset.view; render(); }));
document.querySelectorAll("[data-format]").forEach(b => b.addEventListener("click", async () => {
  const resp = await fetch("api/export/" + b.dataset.format, {method: "POST",
    headers: {"Content-Type": "application/json"}, body: JSON.stringify({content, view, name: fileName})});
  if (!resp.ok) return fail(resp);
  const blob = await resp.blob();
  const m = /filename="([^"]+)"/.exec(resp.headers.get("Content-Disposition") || "");
  const a = document.createElement("a");
  a.href = URL.createObjectURL(blob); a.download = m ? m[1] : "export." + b.dataset.format;
  if (b.dataset.format === "html") { window.open(a.href); } else { a.click(); }
}));
$("#key-form").addEventListener("submit", async (e) => {
  e.preventDefault();
  const resp = await fetch("api/key", {method: "PUT", headers: {"Content-Type": "application/json"},
    body: JSON.stringify({api_key: $("#api_key").value})});
  if (!resp.ok) return fail(resp);
  location.reload();
});
$("#key-clear").addEventListener("click", async () => {
  await fetch("api/key", {method: "DELETE"});
  location.reload();
});
$("#model").addEventListener("change", (e) => fetch("api/models/selected", {method: "PUT",
  headers: {"Content-Type": "application/json"}, body: JSON.stringify({model: e.target.value})}));
</script>`
