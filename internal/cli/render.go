package cli

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/goccy/go-json"

	"github.com/rshade/travelcarbon/internal/emissions"
	"github.com/rshade/travelcarbon/internal/greenops"
	"github.com/rshade/travelcarbon/internal/store"
	"github.com/rshade/travelcarbon/internal/tim"
)

const boxWidth = 72

// boxBorderColor returns the lipgloss.Color used for panel borders.
func boxBorderColor() lipgloss.Color { return lipgloss.Color("240") }

// boxTitleColor returns the Lip Gloss color used for panel titles.
func boxTitleColor() lipgloss.Color { return lipgloss.Color("39") }

// colorWarning returns the lipgloss color used for warning notes.
func colorWarning() lipgloss.Color { return lipgloss.Color("214") }

// isWriterTerminal reports whether w is a terminal. Anything that is not an
// *os.File (buffers, pipes wrapped by tests) is treated as non-interactive.
func isWriterTerminal(w io.Writer) bool {
	if f, ok := w.(*os.File); ok {
		return isTerminal(f)
	}
	return false
}

// field is one labelled line of a panel.
type field struct {
	label string
	value string
}

// panel is the format-neutral content of every table-format output.
type panel struct {
	title   string
	fields  []field
	headers []string
	rows    [][]string
	notes   []string
}

// renderPanel writes p as a styled box when w is a terminal and as plain
// aligned text otherwise.
func renderPanel(w io.Writer, p panel) error {
	if isWriterTerminal(w) {
		return renderStyledPanel(w, p)
	}
	return renderPlainPanel(w, p)
}

func renderStyledPanel(w io.Writer, p panel) error {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(boxTitleColor())

	borderStyle := lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(boxBorderColor()).
		Padding(0, 1).
		Width(boxWidth)

	labelStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("246"))
	noteStyle := lipgloss.NewStyle().Foreground(colorWarning())

	var content strings.Builder
	content.WriteString(titleStyle.Render(p.title))
	content.WriteString("\n\n")

	width := labelWidth(p.fields)
	for _, f := range p.fields {
		content.WriteString(labelStyle.Render(padRight(f.label+":", width+1)))
		content.WriteString(" ")
		content.WriteString(f.value)
		content.WriteString("\n")
	}

	if len(p.headers) > 0 {
		t := table.New().
			Border(lipgloss.NormalBorder()).
			BorderStyle(lipgloss.NewStyle().Foreground(boxBorderColor())).
			Headers(p.headers...).
			Rows(p.rows...).
			StyleFunc(func(row, _ int) lipgloss.Style {
				if row == table.HeaderRow {
					return lipgloss.NewStyle().Bold(true).Foreground(boxTitleColor()).Padding(0, 1)
				}
				return lipgloss.NewStyle().Padding(0, 1)
			})
		content.WriteString("\n")
		content.WriteString(t.String())
		content.WriteString("\n")
	}

	for _, n := range p.notes {
		content.WriteString("\n")
		content.WriteString(noteStyle.Render("! " + n))
	}

	_, err := fmt.Fprintln(w, borderStyle.Render(strings.TrimRight(content.String(), "\n")))
	return err
}

func renderPlainPanel(w io.Writer, p panel) error {
	var b strings.Builder
	b.WriteString(strings.ToUpper(p.title))
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", len(p.title)))
	b.WriteString("\n")

	for _, f := range p.fields {
		fmt.Fprintf(&b, "%s: %s\n", f.label, f.value)
	}

	if len(p.headers) > 0 {
		widths := columnWidths(p.headers, p.rows)
		b.WriteString("\n")
		writePlainRow(&b, p.headers, widths)
		for _, row := range p.rows {
			writePlainRow(&b, row, widths)
		}
	}

	for _, n := range p.notes {
		fmt.Fprintf(&b, "Warning: %s\n", n)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func writePlainRow(b *strings.Builder, cells []string, widths []int) {
	for i, c := range cells {
		if i > 0 {
			b.WriteString("  ")
		}
		if i == len(cells)-1 {
			b.WriteString(c)
			continue
		}
		b.WriteString(padRight(c, widths[i]))
	}
	b.WriteString("\n")
}

func columnWidths(headers []string, rows [][]string) []int {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, c := range row {
			if i < len(widths) && lipgloss.Width(c) > widths[i] {
				widths[i] = lipgloss.Width(c)
			}
		}
	}
	return widths
}

func labelWidth(fields []field) int {
	width := 0
	for _, f := range fields {
		width = max(width, lipgloss.Width(f.label))
	}
	return width
}

func padRight(s string, width int) string {
	if gap := width - lipgloss.Width(s); gap > 0 {
		return s + strings.Repeat(" ", gap)
	}
	return s
}

// renderJSON writes v as indented JSON.
func renderJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding output: %w", err)
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}

// estimationPanel describes a freshly computed flight estimate.
func estimationPanel(e *emissions.Estimation) panel {
	est := e.Estimate
	p := panel{
		title:  "Flight Emissions",
		fields: estimateFields(est),
	}
	p.headers, p.rows = cabinRateTable(est.AllCabinEmissions)
	p.notes = append(cabinNotes(est), equivalencyNotes(est.Co2TotalGrams)...)
	return p
}

// flightEmissionsPanel describes the latest stored estimate of a flight.
func flightEmissionsPanel(fe *emissions.FlightEmissions) panel {
	est := fe.Estimate
	p := panel{title: "Flight Emissions"}
	if fe.Flight != nil {
		p.fields = append(p.fields, field{"Route", routeLabel(fe.Flight)})
	}
	p.fields = append(p.fields, estimateFields(&est)...)
	p.headers, p.rows = cabinRateTable(est.AllCabinEmissions)
	p.notes = append(cabinNotes(&est), equivalencyNotes(est.Co2TotalGrams)...)
	return p
}

func estimateFields(est *emissions.Estimate) []field {
	cabin := string(est.CabinClassUsed)
	if est.CabinFallback && est.CabinClassResolved != "" {
		cabin = fmt.Sprintf("%s (rate from %s)", est.CabinClassUsed, est.CabinClassResolved)
	}
	return []field{
		{"Flight", est.FlightID},
		{"Estimate", est.ID},
		{"Model version", est.ModelVersion},
		{"Cabin class", cabin},
		{"Passengers", strconv.Itoa(est.Passengers)},
		{"CO2 per passenger", greenops.FormatGrams(est.Co2GramsPerPax)},
		{"CO2 total", greenops.FormatGrams(est.Co2TotalGrams)},
		{"Calculation", string(est.CalculationType)},
		{"Updated", formatTime(est.UpdatedAt)},
	}
}

func cabinRateTable(perPax tim.PerPax) ([]string, [][]string) {
	if len(perPax) == 0 {
		return nil, nil
	}
	var rows [][]string
	for _, c := range tim.CabinClasses() {
		v, ok := perPax[c]
		if !ok {
			continue
		}
		rows = append(rows, []string{string(c), greenops.FormatNumber(v)})
	}
	return []string{"Cabin", "g CO2 / pax"}, rows
}

func cabinNotes(est *emissions.Estimate) []string {
	switch {
	case est.CabinClassResolved == "":
		return []string{fmt.Sprintf("the model returned no rate usable for %s; emissions stored as zero", est.CabinClassUsed)}
	case est.CabinFallback:
		return []string{fmt.Sprintf("no %s rate available, used the %s rate", est.CabinClassUsed, est.CabinClassResolved)}
	default:
		return nil
	}
}

// equivalencyNotes is informational; a formatting failure just drops it.
func equivalencyNotes(totalGrams int64) []string {
	eq, err := greenops.FlightEquivalencies(totalGrams)
	if err != nil || eq.IsEmpty {
		return nil
	}
	return []string{eq.DisplayText}
}

// reportRunPanel describes the outcome of an aggregation run.
func reportRunPanel(run *emissions.ReportRun) panel {
	p := panel{
		title:  "Report Emissions",
		fields: append([]field{{"Report", run.ReportID}, {"Result", run.Message}}, summaryFields(run.Summary)...),
	}
	if len(run.Failures) > 0 {
		p.headers = []string{"Failed flight", "Error"}
		for _, f := range run.Failures {
			p.rows = append(p.rows, []string{f.FlightID, f.Error})
		}
	}
	p.notes = append(summaryNotes(run.Summary), equivalencyNotes(run.Summary.TotalCo2Grams)...)
	return p
}

// reportEmissionsPanel describes a stored report summary.
func reportEmissionsPanel(re *emissions.ReportEmissions) panel {
	fields := []field{{"Report", re.ID}}
	if re.Title != "" {
		fields = append(fields, field{"Title", re.Title})
	}
	fields = append(fields, field{"Flights on report", strconv.Itoa(re.FlightCount)})
	return panel{
		title:  "Report Emissions",
		fields: append(fields, summaryFields(re.Summary)...),
		notes:  append(summaryNotes(re.Summary), equivalencyNotes(re.Summary.TotalCo2Grams)...),
	}
}

func summaryFields(s emissions.Summary) []field {
	return []field{
		{"CO2 total", greenops.FormatGrams(s.TotalCo2Grams)},
		{"CO2 per passenger", greenops.FormatGrams(s.Co2GramsPerPax)},
		{"Passengers", strconv.Itoa(s.TotalPassengers)},
		{"Flights with emissions", fmt.Sprintf("%d of %d", s.FlightsWithEmissions, s.FlightsTotal)},
		{"Model version", s.ModelVersion},
		{"Computed", formatTime(s.LastComputedAt)},
	}
}

func summaryNotes(s emissions.Summary) []string {
	if !s.MixedModelVersions {
		return nil
	}
	return []string{"flights were estimated with different model versions: " + strings.Join(s.ModelVersions, ", ")}
}

// reportFlightsPanel lists every stored estimate of a report's flights.
func reportFlightsPanel(rf *emissions.ReportFlightEmissions) panel {
	p := panel{
		title: "Report Flight Emissions",
		fields: []field{
			{"Report", rf.ReportID},
			{"Flights", strconv.Itoa(rf.TotalFlights)},
			{"Estimates", strconv.Itoa(rf.FlightsWithEmissions)},
		},
	}
	if len(rf.FlightEstimates) == 0 {
		p.notes = []string{"no estimates stored for this report"}
		return p
	}
	p.headers = []string{"Flight", "Model", "Cabin", "Pax", "Per pax", "Total"}
	for _, est := range rf.FlightEstimates {
		p.rows = append(p.rows, []string{
			est.FlightID,
			est.ModelVersion,
			string(est.CabinClassUsed),
			strconv.Itoa(est.Passengers),
			greenops.FormatGrams(est.Co2GramsPerPax),
			greenops.FormatGrams(est.Co2TotalGrams),
		})
	}
	return p
}

// importPanel describes the result of a data import.
func importPanel(path string, res *store.ImportResult) panel {
	p := panel{
		title: "Data Import",
		fields: []field{
			{"File", path},
			{"Reports", strconv.Itoa(res.Reports)},
			{"Flights", strconv.Itoa(res.Flights)},
		},
	}
	if len(res.ReportIDs) > 0 {
		p.headers = []string{"Report ID"}
		for _, id := range res.ReportIDs {
			p.rows = append(p.rows, []string{id})
		}
	}
	return p
}

func routeLabel(f *emissions.Flight) string {
	return fmt.Sprintf("%s%s %s-%s on %s", f.CarrierCode, f.FlightNumber, f.Origin, f.Destination, f.DepartureDate)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(time.RFC3339)
}
