package connections

import (
	"fmt"
	"io"
	"math/rand"
	"strings"
	"time"

	"github.com/linkreach/linkreach/internal/dataset"
)

// Columns matches the header of a LinkedIn "Connections.csv" export.
var Columns = []string{"First Name", "Last Name", "URL", "Email Address", "Company", "Position", "Connected On"}

const exportPreamble = "Notes:\n" +
	"\"When exporting your connection data, you may notice that some of the email addresses are missing. " +
	"You will only see email addresses for connections who have allowed their connections to see or download their email address using this setting https://www.linkedin.com/psettings/privacy/email. " +
	"You can learn more here https://www.linkedin.com/help/linkedin/answer/261\"\n" +
	"\n"

var (
	firstNames = []string{"Ada", "Grace", "Alan", "Priya", "Wei", "Fatima", "Lars", "Sofia", "Kenji", "Amara", "Diego", "Noor", "Olga", "Tunde", "Hannah"}
	lastNames  = []string{"Lovelace", "Hopper", "Turing", "Sharma", "Zhang", "Khan", "Nilsen", "Rossi", "Tanaka", "Okafor", "Garcia", "Haddad", "Ivanova", "Adeyemi", "Becker"}
	companies  = []string{"Google", "Microsoft", "Amazon", "Meta", "Apple", "Stripe", "Acme Corp", "Globex", "Initech", "Umbrella Health", "Northwind Traders", "Contoso"}
	positions  = []string{
		"Software Engineer", "Senior Software Engineer", "SDE II", "Staff Engineer", "Engineering Manager",
		"Product Manager", "Senior PM", "Technical Recruiter", "Talent Acquisition Partner", "HR Business Partner",
		"Data Scientist", "VP of Engineering", "Head of Talent", "Founder & CEO", "Designer",
	}
)

// Generator produces synthetic connections. The same seed yields the same
// rows.
type Generator struct {
	rnd      *rand.Rand
	sequence int
	now      func() time.Time
}

func NewGenerator(seed int64) *Generator {
	return &Generator{
		rnd: rand.New(rand.NewSource(seed)),
		now: func() time.Time { return time.Now().UTC() },
	}
}

func (g *Generator) NextRow() dataset.Row {
	g.sequence++
	first := pickOne(g.rnd, firstNames)
	last := pickOne(g.rnd, lastNames)
	company := pickOne(g.rnd, companies)
	slug := strings.ToLower(fmt.Sprintf("%s-%s-%d", first, last, g.sequence))

	email := ""
	// Most exports hide email addresses.
	if g.rnd.Intn(100) < 25 {
		email = strings.ToLower(fmt.Sprintf("%s.%s@%s.com", first, last, domainOf(company)))
	}
	connectedOn := g.now().AddDate(0, 0, -g.rnd.Intn(5*365))

	return dataset.Row{
		"First Name":    first,
		"Last Name":     last,
		"URL":           "https://www.linkedin.com/in/" + slug,
		"Email Address": email,
		"Company":       company,
		"Position":      pickOne(g.rnd, positions),
		"Connected On":  connectedOn.Format("02 Jan 2006"),
	}
}

func (g *Generator) Rows(n int) []dataset.Row {
	rows := make([]dataset.Row, 0, n)
	for i := 0; i < n; i++ {
		rows = append(rows, g.NextRow())
	}
	return rows
}

// WriteExport writes n rows in the export layout, optionally with the notes
// preamble LinkedIn puts above the header.
func (g *Generator) WriteExport(w io.Writer, n int, preamble bool) error {
	if preamble {
		if _, err := io.WriteString(w, exportPreamble); err != nil {
			return fmt.Errorf("write preamble: %w", err)
		}
	}
	return dataset.WriteCSV(w, Columns, g.Rows(n))
}

func domainOf(company string) string {
	fields := strings.Fields(strings.ToLower(company))
	return strings.Trim(fields[0], "&")
}

func pickOne(r *rand.Rand, values []string) string {
	return values[r.Intn(len(values))]
}
