package report

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"perchmp/domain/run"
	"perchmp/domain/stats"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
)

// RenderMarkdown renders the run as a markdown report
func RenderMarkdown(result *run.Result) []byte {
	var b strings.Builder
	m := result.Manifest

	fmt.Fprintf(&b, "# %s\n\n", m.PlanName)
	fmt.Fprintf(&b, "Run `%s`, fingerprint `%s`, seed %d, %d simulations, alpha %g.\n\n",
		m.RunID, m.Fingerprint.Short(), m.Seed, m.Simulations, m.Alpha)
	fmt.Fprintf(&b, "- Biometrics: `%s` (sha256 `%s`)\n", m.Biometrics.Path, m.Biometrics.Hash.Short())
	fmt.Fprintf(&b, "- Population: `%s` (sha256 `%s`)\n", m.Population.Path, m.Population.Hash.Short())
	fmt.Fprintf(&b, "- Rows dropped for a missing primary response: %d\n", result.Dropped)
	if len(m.SecondControl) > 0 {
		fmt.Fprintf(&b, "- Second control corrals: %s\n", strings.Join(m.SecondControl, ", "))
	}
	if len(result.Unmatched) > 0 {
		fmt.Fprintf(&b, "- Corrals without population data: %s\n", strings.Join(result.Unmatched, ", "))
	}
	b.WriteString("\n")

	for _, t := range result.Summaries {
		fmt.Fprintf(&b, "## Summary: %s\n\n", t.Name)
		writeSummary(&b, t)
	}

	for i := range result.Models {
		writeModel(&b, &result.Models[i])
	}
	return []byte(b.String())
}

// RenderHTML converts the markdown report into a standalone HTML page
func RenderHTML(result *run.Result) []byte {
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
	renderer := html.NewRenderer(html.RendererOptions{
		Title: result.Manifest.PlanName,
		Flags: html.CommonFlags | html.CompletePage | html.HrefTargetBlank,
	})
	return markdown.ToHTML(RenderMarkdown(result), p, renderer)
}

func writeSummary(b *strings.Builder, t run.SummaryTable) {
	header := append([]string{strings.Join(t.Keys, "/"), "rows"}, t.Responses...)
	table(b, header)
	for _, g := range t.Groups {
		row := []string{g.Label(), fmt.Sprint(g.Rows)}
		for _, col := range t.Responses {
			r, _ := g.Response(col)
			row = append(row, fmt.Sprintf("%s ± %s (n=%d)", num(r.Mean), num(r.SD), r.N))
		}
		tableRow(b, row)
	}
	b.WriteString("\n")
}

func writeModel(b *strings.Builder, mr *run.ModelResult) {
	fmt.Fprintf(b, "## Model: %s\n\n", mr.Name)
	fmt.Fprintf(b, "`%s` (%s, %s frame): **%s**", mr.Spec.Formula(), mr.Spec.Kind, mr.Frame, mr.Status)
	if mr.SupersededBy != "" {
		fmt.Fprintf(b, ", superseded by %s", mr.SupersededBy)
	}
	b.WriteString("\n\n")
	if !mr.OK() {
		fmt.Fprintf(b, "> %s\n\n", mr.Error)
		return
	}

	m := mr.Model
	fmt.Fprintf(b, "n = %d. %s = %s", m.N, m.Overall.Name, num(m.Overall.Statistic))
	if m.Overall.DF2 > 0 {
		fmt.Fprintf(b, " on %g and %g df", m.Overall.DF1, m.Overall.DF2)
	} else {
		fmt.Fprintf(b, " on %g df", m.Overall.DF1)
	}
	fmt.Fprintf(b, ", p = %s. AIC %s.", pval(m.Overall.PValue), num(m.AIC))
	if m.Random != nil {
		fmt.Fprintf(b, " Random intercept SD (%s): %s.", m.Random.Group, num(m.Random.SD))
	}
	b.WriteString("\n\n")

	table(b, []string{"term", "estimate", "SE", "statistic", "p", "CI"})
	for _, c := range m.Coefficients {
		tableRow(b, []string{c.Term, num(c.Estimate), num(c.StdErr), num(c.Statistic), pval(c.PValue),
			fmt.Sprintf("[%s, %s]", num(c.Lower), num(c.Upper))})
	}
	b.WriteString("\n")

	if cmp := mr.Comparison; cmp != nil {
		fmt.Fprintf(b, "Tukey comparisons of %s (alpha %g):\n\n", cmp.Factor, cmp.Alpha)
		table(b, []string{"pair", "diff", "CI", "p adj", ""})
		for _, p := range cmp.Pairs {
			mark := ""
			if p.Significant {
				mark = "*"
			}
			tableRow(b, []string{p.B + " - " + p.A, num(p.Diff),
				fmt.Sprintf("[%s, %s]", num(p.Lower), num(p.Upper)), pval(p.PAdj), mark})
		}
		b.WriteString("\n")
	}
	if len(mr.Letters) > 0 {
		table(b, []string{"level", "mean", "group"})
		for _, l := range mr.Letters {
			tableRow(b, []string{l.Level, num(l.Mean), l.Letters})
		}
		b.WriteString("\n")
	}

	if set := mr.Predictions; set != nil {
		fmt.Fprintf(b, "Predictions over %s at %g%% confidence", set.Column, set.Level*100)
		if held := heldText(set.Held); held != "" {
			fmt.Fprintf(b, ", holding %s", held)
		}
		b.WriteString(":\n\n")
		table(b, []string{set.Column, "fit", "lower", "upper"})
		for _, p := range set.Points {
			tableRow(b, []string{num(p.Value), num(p.Fit), num(p.Lower), num(p.Upper)})
		}
		b.WriteString("\n")
	}

	writeDiagnostics(b, mr)

	if notes := remarks(mr); len(notes) > 0 {
		for _, n := range notes {
			fmt.Fprintf(b, "- %s\n", n)
		}
		b.WriteString("\n")
	}
}

func writeDiagnostics(b *strings.Builder, mr *run.ModelResult) {
	if len(mr.Dispersion) == 0 && mr.Simulated == nil {
		return
	}
	b.WriteString("Diagnostics:\n\n")
	for _, d := range mr.Dispersion {
		fmt.Fprintf(b, "- residual spread by %s (%s): %s; %s = %s, p = %s\n",
			d.Column, d.Status, dispersionText(d), d.Test.Name, num(d.Test.Statistic), pval(d.Test.PValue))
	}
	if sim := mr.Simulated; sim != nil {
		if sim.Status == stats.StatusInconclusive {
			fmt.Fprintf(b, "- simulated residuals inconclusive: %s\n", sim.Reason)
		} else {
			fmt.Fprintf(b, "- simulated residuals (%d draws): KS D = %s, p = %s; dispersion %s, p = %s; %d outlier(s)\n",
				sim.Simulations, num(sim.Uniformity.Statistic), pval(sim.Uniformity.PValue),
				num(sim.Dispersion.Statistic), pval(sim.Dispersion.PValue), sim.Outliers)
		}
	}
	b.WriteString("\n")
}

func table(b *strings.Builder, header []string) {
	tableRow(b, header)
	sep := make([]string, len(header))
	for i := range sep {
		sep[i] = "---"
	}
	tableRow(b, sep)
}

func tableRow(b *strings.Builder, cells []string) {
	b.WriteString("| " + strings.Join(cells, " | ") + " |\n")
}

// remarks joins fit warnings and run notes without touching the model
func remarks(mr *run.ModelResult) []string {
	var out []string
	if mr.Model != nil {
		out = append(out, mr.Model.Warnings...)
	}
	return append(out, mr.Notes...)
}

func heldText(held map[string]string) string {
	keys := make([]string, 0, len(held))
	for k := range held {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + held[k]
	}
	return strings.Join(parts, ", ")
}

func dispersionText(d stats.DispersionDiagnostic) string {
	if d.Reason != "" {
		return d.Reason
	}
	parts := make([]string, len(d.Groups))
	for i, g := range d.Groups {
		parts[i] = fmt.Sprintf("%s sd=%s", g.Level, num(g.ResidualSD))
	}
	return strings.Join(parts, ", ")
}

func num(v float64) string {
	if math.IsNaN(v) {
		return "NA"
	}
	return fmt.Sprintf("%.4g", v)
}

func pval(p float64) string {
	switch {
	case math.IsNaN(p):
		return "NA"
	case p < 1e-4:
		return "<0.0001"
	}
	return fmt.Sprintf("%.4f", p)
}
