package goldmark

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/fwojciec/margin"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

// replyMarkdown parses assistant replies. Models answer in GitHub-flavored
// markdown, so tables, strikethrough and task lists are recognized.
var replyMarkdown = goldmark.New(goldmark.WithExtensions(
	extension.Table,
	extension.Strikethrough,
	extension.TaskList,
	extension.Linkify,
))

// replyStyles are the lipgloss styles for one theme.
type replyStyles struct {
	strong  lipgloss.Style
	emph    lipgloss.Style
	strike  lipgloss.Style
	title   lipgloss.Style // level 1 and 2 headings
	heading lipgloss.Style // deeper headings
	code    lipgloss.Style
	muted   lipgloss.Style
	link    lipgloss.Style
	excerpt lipgloss.Style // bar beside quoted document text
}

func newReplyStyles(theme margin.Theme) replyStyles {
	return replyStyles{
		strong:  lipgloss.NewStyle().Bold(true),
		emph:    lipgloss.NewStyle().Italic(true),
		strike:  lipgloss.NewStyle().Strikethrough(true),
		title:   lipgloss.NewStyle().Foreground(ansiColor(theme.Accent)).Bold(true),
		heading: lipgloss.NewStyle().Foreground(ansiColor(theme.Accent)),
		code:    lipgloss.NewStyle().Foreground(ansiColor(theme.User)),
		muted:   lipgloss.NewStyle().Foreground(ansiColor(theme.Muted)).Faint(true),
		link:    lipgloss.NewStyle().Underline(true),
		excerpt: lipgloss.NewStyle().Foreground(ansiColor(theme.Summary)),
	}
}

func ansiColor(index int) lipgloss.TerminalColor {
	if index < 0 {
		return lipgloss.NoColor{}
	}
	return lipgloss.Color(strconv.Itoa(index))
}

// replyWriter renders one parsed reply into terminal lines.
type replyWriter struct {
	src   []byte
	style replyStyles
}

func renderReply(source []byte, width int, theme margin.Theme) string {
	doc := replyMarkdown.Parser().Parse(text.NewReader(source))
	w := &replyWriter{src: source, style: newReplyStyles(theme)}
	var out bytes.Buffer
	w.blocks(doc, width, &out)
	return strings.TrimRight(out.String(), "\n")
}

// blocks writes the children of n separated by blank lines.
func (w *replyWriter) blocks(n ast.Node, width int, out *bytes.Buffer) {
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		w.block(c, width, out)
		if c.NextSibling() != nil {
			out.WriteString("\n")
		}
	}
}

func (w *replyWriter) block(n ast.Node, width int, out *bytes.Buffer) {
	switch n := n.(type) {
	case *ast.Paragraph, *ast.TextBlock:
		w.wrapped(out, w.inline(n), width)
	case *ast.Heading:
		style := w.style.heading
		if n.Level <= 2 {
			style = w.style.title
		}
		w.wrapped(out, style.Render(w.inline(n)), width)
	case *ast.FencedCodeBlock:
		if lang := string(n.Language(w.src)); lang != "" {
			out.WriteString(w.style.muted.Render(lang) + "\n")
		}
		w.code(n, out)
	case *ast.CodeBlock:
		w.code(n, out)
	case *ast.Blockquote:
		var inner bytes.Buffer
		w.blocks(n, max(width-2, 10), &inner)
		bar := w.style.excerpt.Render("▎") + " "
		for _, line := range strings.Split(strings.TrimRight(inner.String(), "\n"), "\n") {
			out.WriteString(bar + line + "\n")
		}
	case *ast.List:
		w.list(n, width, 0, out)
	case *east.Table:
		w.table(n, out)
	case *ast.ThematicBreak:
		out.WriteString(w.style.muted.Render(strings.Repeat("─", min(width, 40))) + "\n")
	case *ast.HTMLBlock:
		lines := n.Lines()
		for i := 0; i < lines.Len(); i++ {
			line := lines.At(i)
			out.WriteString(w.style.muted.Render(strings.TrimRight(string(line.Value(w.src)), "\n")) + "\n")
		}
	default:
		w.blocks(n, width, out)
	}
}

func (w *replyWriter) wrapped(out *bytes.Buffer, s string, width int) {
	out.WriteString(lipgloss.NewStyle().Width(width).Render(s))
	out.WriteString("\n")
}

// code writes code lines verbatim behind a gutter; they are never reflowed.
func (w *replyWriter) code(n ast.Node, out *bytes.Buffer) {
	gutter := w.style.muted.Render("│") + " "
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		line := lines.At(i)
		out.WriteString(gutter + w.style.code.Render(strings.TrimRight(string(line.Value(w.src)), "\n")) + "\n")
	}
}

func (w *replyWriter) list(l *ast.List, width, depth int, out *bytes.Buffer) {
	indent := strings.Repeat("  ", depth)
	num := l.Start
	for c := l.FirstChild(); c != nil; c = c.NextSibling() {
		marker := "• "
		if l.IsOrdered() {
			marker = fmt.Sprintf("%d. ", num)
			num++
		}
		var pending strings.Builder
		flush := func() {
			if pending.Len() > 0 {
				w.item(out, indent, marker, pending.String(), width)
				pending.Reset()
				marker = strings.Repeat(" ", ansi.StringWidth(marker))
			}
		}
		for ic := c.FirstChild(); ic != nil; ic = ic.NextSibling() {
			switch ic := ic.(type) {
			case *ast.Paragraph, *ast.TextBlock:
				if pending.Len() > 0 {
					pending.WriteString("\n")
				}
				pending.WriteString(w.inline(ic))
			case *ast.List:
				flush()
				w.list(ic, width, depth+1, out)
			default:
				flush()
				var inner bytes.Buffer
				hang := indent + strings.Repeat(" ", ansi.StringWidth(marker))
				w.block(ic, width-len(hang), &inner)
				for _, line := range strings.Split(strings.TrimRight(inner.String(), "\n"), "\n") {
					out.WriteString(hang + line + "\n")
				}
			}
		}
		flush()
	}
}

// item writes one list item, hanging wrapped lines under the first.
func (w *replyWriter) item(out *bytes.Buffer, indent, marker, content string, width int) {
	prefix := indent + marker
	wrapped := lipgloss.NewStyle().Width(max(width-ansi.StringWidth(prefix), 10)).Render(content)
	hang := strings.Repeat(" ", ansi.StringWidth(prefix))
	for i, line := range strings.Split(wrapped, "\n") {
		if i == 0 {
			out.WriteString(prefix + line + "\n")
			continue
		}
		out.WriteString(hang + line + "\n")
	}
}

// table writes a GFM table with columns padded to their widest cell. Tables
// are never wrapped.
func (w *replyWriter) table(t *east.Table, out *bytes.Buffer) {
	var rows [][]string
	header := -1
	for r := t.FirstChild(); r != nil; r = r.NextSibling() {
		var cells []string
		for c := r.FirstChild(); c != nil; c = c.NextSibling() {
			cell := w.inline(c)
			if _, ok := r.(*east.TableHeader); ok {
				cell = w.style.strong.Render(cell)
			}
			cells = append(cells, cell)
		}
		if _, ok := r.(*east.TableHeader); ok {
			header = len(rows)
		}
		rows = append(rows, cells)
	}

	widths := make([]int, len(t.Alignments))
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) {
				widths[i] = max(widths[i], ansi.StringWidth(cell))
			}
		}
	}

	sep := w.style.muted.Render("│")
	for ri, row := range rows {
		parts := make([]string, len(widths))
		for i := range widths {
			var cell string
			if i < len(row) {
				cell = row[i]
			}
			parts[i] = pad(cell, widths[i], t.Alignments[i])
		}
		out.WriteString(strings.TrimRight(strings.Join(parts, " "+sep+" "), " ") + "\n")
		if ri == header {
			rules := make([]string, len(widths))
			for i, n := range widths {
				rules[i] = strings.Repeat("─", n)
			}
			out.WriteString(w.style.muted.Render(strings.Join(rules, "─┼─")) + "\n")
		}
	}
}

func pad(cell string, width int, align east.Alignment) string {
	gap := width - ansi.StringWidth(cell)
	if gap <= 0 {
		return cell
	}
	switch align {
	case east.AlignRight:
		return strings.Repeat(" ", gap) + cell
	case east.AlignCenter:
		left := gap / 2
		return strings.Repeat(" ", left) + cell + strings.Repeat(" ", gap-left)
	default:
		return cell + strings.Repeat(" ", gap)
	}
}

// inline renders the inline children of n as one styled string.
func (w *replyWriter) inline(n ast.Node) string {
	var b strings.Builder
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		w.span(c, &b)
	}
	return b.String()
}

func (w *replyWriter) span(n ast.Node, b *strings.Builder) {
	switch n := n.(type) {
	case *ast.Text:
		b.Write(n.Segment.Value(w.src))
		switch {
		case n.HardLineBreak():
			b.WriteByte('\n')
		case n.SoftLineBreak():
			b.WriteByte(' ')
		}
	case *ast.String:
		b.Write(n.Value)
	case *ast.Emphasis:
		// ***x*** parses as nested emphasis, so levels above 2 never occur.
		if n.Level == 1 {
			b.WriteString(w.style.emph.Render(w.inline(n)))
		} else {
			b.WriteString(w.style.strong.Render(w.inline(n)))
		}
	case *east.Strikethrough:
		b.WriteString(w.style.strike.Render(w.inline(n)))
	case *east.TaskCheckBox:
		if n.IsChecked {
			b.WriteString("[x] ")
		} else {
			b.WriteString("[ ] ")
		}
	case *ast.CodeSpan:
		b.WriteString(w.style.code.Render(w.inline(n)))
	case *ast.Link:
		label, dest := w.inline(n), string(n.Destination)
		b.WriteString(w.style.link.Render(label))
		if label != dest {
			b.WriteString(" " + w.style.muted.Render("("+dest+")"))
		}
	case *ast.AutoLink:
		b.WriteString(w.style.link.Render(string(n.URL(w.src))))
	case *ast.Image:
		b.WriteString(w.style.muted.Render("[image: " + w.inline(n) + "] (" + string(n.Destination) + ")"))
	case *ast.RawHTML:
		for i := 0; i < n.Segments.Len(); i++ {
			seg := n.Segments.At(i)
			b.WriteString(w.style.muted.Render(string(seg.Value(w.src))))
		}
	default:
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			w.span(c, b)
		}
	}
}
