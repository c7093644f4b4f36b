package server

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"html"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/joelkehle/ideaforge/internal/analysis"
)

var ErrRendererUnavailable = errors.New("no chromium binary found for pdf export")

const renderTimeout = 30 * time.Second

// ChromiumPDFRenderer prints the markdown report through headless Chromium.
type ChromiumPDFRenderer struct {
	webDir     string
	chromePath string
	styleOnce  sync.Once
	styleCSS   string
}

// NewChromiumPDFRenderer looks for Chromium once. style.css from webDir is
// added to the built-in print styles when present.
func NewChromiumPDFRenderer(webDir, chromePath string) *ChromiumPDFRenderer {
	if chromePath == "" {
		chromePath = detectChromePath()
	}
	return &ChromiumPDFRenderer{webDir: webDir, chromePath: chromePath}
}

func (r *ChromiumPDFRenderer) Available() bool { return r.chromePath != "" }

func (r *ChromiumPDFRenderer) Render(ctx context.Context, report analysis.Report) ([]byte, error) {
	if !r.Available() {
		return nil, ErrRendererUnavailable
	}
	htmlDoc, err := r.buildHTML(report)
	if err != nil {
		return nil, err
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, renderTimeout)
	defer cancel()

	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.ExecPath(r.chromePath),
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(timeoutCtx, append(chromedp.DefaultExecAllocatorOptions[:], opts...)...)
	defer allocCancel()

	taskCtx, taskCancel := chromedp.NewContext(allocCtx)
	defer taskCancel()

	var pdf []byte
	dataURL := "data:text/html;base64," + base64.StdEncoding.EncodeToString([]byte(htmlDoc))
	if err := chromedp.Run(taskCtx,
		chromedp.Navigate(dataURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.ActionFunc(func(ctx context.Context) error {
			footer := `<div style="width:100%;text-align:center;font-size:9px;color:#666;">` +
				`IdeaForge &middot; Page <span class="pageNumber"></span> of <span class="totalPages"></span></div>`
			out, _, err := page.PrintToPDF().
				WithPrintBackground(true).
				WithDisplayHeaderFooter(true).
				WithHeaderTemplate(`<div></div>`).
				WithFooterTemplate(footer).
				WithPaperWidth(8.27).
				WithPaperHeight(11.69).
				WithMarginTop(0.5).
				WithMarginBottom(0.75).
				WithMarginLeft(0.45).
				WithMarginRight(0.45).
				Do(ctx)
			if err != nil {
				return err
			}
			pdf = out
			return nil
		}),
	); err != nil {
		return nil, fmt.Errorf("print pdf: %w", err)
	}
	return pdf, nil
}

const printCSS = `html,body,*{-webkit-print-color-adjust:exact !important;print-color-adjust:exact !important;}
body{font-family:-apple-system,"Segoe UI",Helvetica,Arial,sans-serif;color:#1f2937;background:#fff;padding:0.6rem;line-height:1.45;}
.pdf-wrap{max-width:1000px;margin:0 auto;}
.report-header{display:flex;justify-content:space-between;align-items:flex-start;border-bottom:2px solid #4f46e5;margin-bottom:1rem;padding-bottom:0.5rem;}
.report-meta{font-size:0.85rem;color:#374151;}
.report-badge{display:inline-block;margin-left:0.4rem;padding:0.2rem 0.55rem;border-radius:999px;font-size:0.75rem;font-weight:600;background:#eef2ff;color:#3730a3;border:1px solid #c7d2fe;}
.report-badge[data-tone="good"]{background:#ecfdf5;color:#065f46;border-color:#a7f3d0;}
.report-badge[data-tone="bad"]{background:#fef2f2;color:#991b1b;border-color:#fecaca;}
.report-html a{color:#1d4ed8;text-decoration:underline;}
.report-html table{width:100%;border-collapse:collapse;border:1px solid #d1d5db;font-size:0.8rem;margin-bottom:0.8rem;}
.report-html th,.report-html td{border:1px solid #d1d5db;padding:0.35rem 0.45rem;text-align:left;vertical-align:top;}
.report-html thead th{background:#f3f4f6;font-weight:700;}
.report-html h2[data-score-section="true"]{color:#3730a3;}
h2[data-page-break-before="true"]{break-before:page;page-break-before:always;}
@media print{ @page{size:auto;margin:12mm;} body{padding:0;} .pdf-wrap{max-width:none;} }`

func (r *ChromiumPDFRenderer) buildHTML(report analysis.Report) (string, error) {
	var content strings.Builder
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	if err := md.Convert([]byte(analysis.BuildMarkdown(report)), &content); err != nil {
		return "", fmt.Errorf("markdown convert: %w", err)
	}
	contentHTML := applyPrintLayoutHooks(content.String())

	title := report.Submission.StartupName
	if title == "" {
		title = "Startup Validation Report"
	}
	return "<!doctype html><html><head><meta charset='utf-8'><title>" + html.EscapeString(title) + "</title>" +
		"<style>" + printCSS + "\n" + r.loadStyleCSS() + "</style></head><body>" +
		"<div class='pdf-wrap'><section class='report-viewer'><div class='report-header'>" +
		"<div class='report-meta'>" + buildMetaHTML(report) + "</div>" +
		"<div class='report-badges'>" + buildBadgeHTML(report) + "</div>" +
		"</div><div class='report-html'>" + contentHTML + "</div></section></div>" +
		"</body></html>", nil
}

var (
	reSWOTHeading  = regexp.MustCompile(`(?i)<h2([^>]*)>\s*(<a [^>]*>SWOT</a>|SWOT)\s*</h2>`)
	reScoreHeading = regexp.MustCompile(`(?i)<h2([^>]*)>\s*(Scores|Market Data Alignment)\s*</h2>`)
)

// applyPrintLayoutHooks starts SWOT on a fresh page and tags the score
// sections for styling.
func applyPrintLayoutHooks(contentHTML string) string {
	out := reSWOTHeading.ReplaceAllString(contentHTML, `<h2$1 data-page-break-before="true">$2</h2>`)
	return reScoreHeading.ReplaceAllString(out, `<h2$1 data-score-section="true">$2</h2>`)
}

// loadStyleCSS reads the optional site stylesheet once. A missing file is
// not an error.
func (r *ChromiumPDFRenderer) loadStyleCSS() string {
	r.styleOnce.Do(func() {
		if r.webDir == "" {
			return
		}
		b, err := os.ReadFile(filepath.Join(r.webDir, "style.css"))
		if err != nil {
			return
		}
		r.styleCSS = string(b)
	})
	return r.styleCSS
}

func buildMetaHTML(report analysis.Report) string {
	var out strings.Builder
	if name := strings.TrimSpace(report.Submission.StartupName); name != "" {
		out.WriteString("<div><strong>Startup:</strong> " + html.EscapeString(name) + "</div>")
	}
	if report.ID != "" {
		out.WriteString("<div><strong>Reference:</strong> " + html.EscapeString(report.ID) + "</div>")
	}
	if !report.CreatedAt.IsZero() {
		out.WriteString("<div><strong>Date:</strong> " + html.EscapeString(report.CreatedAt.In(time.Local).Format("January 2, 2006 at 3:04 PM MST")) + "</div>")
	}
	return out.String()
}

func buildBadgeHTML(report analysis.Report) string {
	var out strings.Builder
	overall := report.Analysis.OverallScore
	tone := "neutral"
	switch {
	case overall >= 70:
		tone = "good"
	case overall < 45:
		tone = "bad"
	}
	out.WriteString(`<span class='report-badge' data-tone="` + tone + `">Overall ` + strconv.Itoa(overall) + "/100</span>")
	out.WriteString("<span class='report-badge'>Market fit " + strconv.Itoa(report.Comparison.OverallComparisonScore) + "/100</span>")
	if src := report.Analysis.Source; src != "" {
		out.WriteString("<span class='report-badge'>" + html.EscapeString(string(src)) + "</span>")
	}
	return out.String()
}

func detectChromePath() string {
	candidates := []string{
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/usr/bin/google-chrome",
		"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, name := range []string{"chromium", "chromium-browser", "google-chrome", "headless-shell"} {
		if p, err := exec.LookPath(name); err == nil {
			return p
		}
	}
	return ""
}
