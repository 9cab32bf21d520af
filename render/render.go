// Package render formats answers and tables for the command line.
//
// Answers come back from the language model as loosely formatted Markdown. They can be
// printed as is, converted to sanitized HTML, reduced to plain text or styled for a
// terminal.
package render

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/charmbracelet/lipgloss"
	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/ast"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/microcosm-cc/bluemonday"
)

// Format selects how answers are printed.
type Format string

const (
	FormatText     Format = "text"
	FormatStyled   Format = "styled"
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
)

// TerminalWidth is the width styled answers wrap at.
const TerminalWidth = 80

// ParseFormat validates a --format value. The empty string means text.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatText, nil
	case FormatText, FormatStyled, FormatMarkdown, FormatHTML:
		return f, nil
	}
	return "", fmt.Errorf("unknown format %q (want text, styled, markdown or html)", s)
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99"))
	answerStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("62")).Padding(0, 1)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))

	blankLines = regexp.MustCompile(`\n{3,}`)
)

// HTML converts Markdown to HTML and strips anything unsafe.
func HTML(md string) string {
	extensions := parser.CommonExtensions | parser.AutoHeadingIDs
	p := parser.NewWithExtensions(extensions)
	doc := p.Parse([]byte(md))

	htmlFlags := html.CommonFlags | html.HrefTargetBlank
	renderer := html.NewRenderer(html.RendererOptions{Flags: htmlFlags})
	out := markdown.Render(doc, renderer)

	return string(bluemonday.UGCPolicy().SanitizeBytes(out))
}

// PlainText reduces Markdown to text. List items keep a "- " marker and blocks are separated
// by one blank line. Raw HTML and quotes in the answer are kept as written.
func PlainText(md string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(textHTML(md)))
	if err != nil {
		return "", fmt.Errorf("parse rendered answer: %w", err)
	}
	doc.Find("li").Each(func(_ int, s *goquery.Selection) {
		s.PrependHtml("- ")
	})
	doc.Find("br").Each(func(_ int, s *goquery.Selection) {
		s.ReplaceWithHtml("\n")
	})

	lines := strings.Split(doc.Text(), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	text := strings.Join(lines, "\n")
	text = blankLines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text), nil
}

// textHTML renders Markdown for text extraction: no typographic substitutions, and raw HTML
// escaped so it survives as literal text.
func textHTML(md string) []byte {
	p := parser.NewWithExtensions(parser.CommonExtensions)
	renderer := html.NewRenderer(html.RendererOptions{
		Flags: html.FlagsNone,
		RenderNodeHook: func(w io.Writer, node ast.Node, _ bool) (ast.WalkStatus, bool) {
			switch node.(type) {
			case *ast.HTMLSpan:
				html.EscapeHTML(w, node.AsLeaf().Literal)
				return ast.GoToNext, true
			case *ast.HTMLBlock:
				io.WriteString(w, "\n<p>")
				html.EscapeHTML(w, node.AsLeaf().Literal)
				io.WriteString(w, "</p>\n")
				return ast.GoToNext, true
			}
			return ast.GoToNext, false
		},
	})
	return markdown.Render(p.Parse([]byte(md)), renderer)
}

// Terminal styles an answer for a terminal of the given width. A width of 0 disables
// wrapping.
func Terminal(question, md string, width int) string {
	text, err := PlainText(md)
	if err != nil {
		text = md
	}
	style := answerStyle
	if width > 0 {
		style = style.Width(width - 2)
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render(question),
		style.Render(text),
	)
}

// Answer writes answer to w in format.
func Answer(w io.Writer, format Format, question, answer string) error {
	var out string
	switch format {
	case FormatMarkdown:
		out = answer
	case FormatHTML:
		out = HTML(answer)
	case FormatStyled:
		out = Terminal(question, answer, TerminalWidth)
	default:
		text, err := PlainText(answer)
		if err != nil {
			return err
		}
		out = text
	}
	_, err := fmt.Fprintln(w, strings.TrimRight(out, "\n"))
	return err
}

// Failure writes a failure answer to w without Markdown processing, so store and model error
// messages appear exactly as reported.
func Failure(w io.Writer, format Format, answer string) error {
	var out string
	switch format {
	case FormatHTML:
		var buf bytes.Buffer
		buf.WriteString("<p>")
		html.EscapeHTML(&buf, []byte(answer))
		buf.WriteString("</p>")
		out = buf.String()
	case FormatStyled:
		out = errorStyle.Render(answer)
	default:
		out = answer
	}
	_, err := fmt.Fprintln(w, strings.TrimRight(out, "\n"))
	return err
}

// Note renders secondary output such as progress and hints.
func Note(s string) string {
	return dimStyle.Render(s)
}

// Error renders an error line.
func Error(err error) string {
	return errorStyle.Render("error: " + err.Error())
}
