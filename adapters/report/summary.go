package report

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"

	"godex/domain/run"
)

// summaryRowLimit caps how many rows of each table the summary inlines
const summaryRowLimit = 20

// Summary renders a markdown run report from the manifest and result tables
func Summary(m *run.Manifest, tables ...Table) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Differential expression run %s\n\n", m.RunID)
	fmt.Fprintf(&b, "- Started: %s\n", m.StartedAt)
	fmt.Fprintf(&b, "- Finished: %s\n", m.FinishedAt)
	fmt.Fprintf(&b, "- Seed: %d\n", m.Seed)
	fmt.Fprintf(&b, "- Features: %d loaded, %d kept after filtering\n", m.FeaturesLoaded, m.FeaturesKept)
	fmt.Fprintf(&b, "- Samples: %d\n", m.Samples)
	fmt.Fprintf(&b, "- Gene sets tested: %d (%d empty)\n\n", m.SetsTested, m.EmptySets)

	b.WriteString("## Parameters\n\n")
	p := m.Parameters
	fmt.Fprintf(&b, "- Filter: CPM >= %g in >= %d samples\n", p.MinCPM, p.MinSamples)
	fmt.Fprintf(&b, "- Normalization: %s\n", p.NormMethod)
	fmt.Fprintf(&b, "- Coefficient: %s\n", p.Coefficient)
	fmt.Fprintf(&b, "- Set statistic: %s, rotations: %d\n", p.SetStat, p.Rotations)
	fmt.Fprintf(&b, "- Adjustment: %s, inter-gene correlation: %s\n\n", p.AdjustMethod, p.InterGeneCor)

	if len(m.StageTimings) > 0 {
		b.WriteString("## Stage timings\n\n")
		stages := make([]string, 0, len(m.StageTimings))
		for s := range m.StageTimings {
			stages = append(stages, s)
		}
		sort.Strings(stages)
		for _, s := range stages {
			fmt.Fprintf(&b, "- %s: %d ms\n", s, m.StageTimings[s])
		}
		b.WriteString("\n")
	}

	for _, t := range tables {
		fmt.Fprintf(&b, "## %s\n\n", t.Name)
		writeMarkdownTable(&b, t)
		b.WriteString("\n")
	}
	return b.String()
}

func writeMarkdownTable(b *strings.Builder, t Table) {
	fmt.Fprintf(b, "| %s |\n", strings.Join(t.Headers, " | "))
	sep := make([]string, len(t.Headers))
	for i := range sep {
		sep[i] = "---"
	}
	fmt.Fprintf(b, "| %s |\n", strings.Join(sep, " | "))
	for i, row := range t.Rows {
		if i >= summaryRowLimit {
			fmt.Fprintf(b, "\n... %d more rows in the full table.\n", len(t.Rows)-summaryRowLimit)
			break
		}
		fmt.Fprintf(b, "| %s |\n", strings.Join(row, " | "))
	}
}

// WriteSummary writes the markdown report, and optionally an HTML rendering
// next to it.
func WriteSummary(path string, m *run.Manifest, renderHTML bool, tables ...Table) error {
	md := Summary(m, tables...)
	if err := os.WriteFile(path, []byte(md), 0o644); err != nil {
		return err
	}
	if !renderHTML {
		return nil
	}
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.Tables)
	renderer := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags | html.CompletePage})
	out := markdown.ToHTML([]byte(md), p, renderer)
	htmlPath := strings.TrimSuffix(path, ".md") + ".html"
	return os.WriteFile(htmlPath, out, 0o644)
}
