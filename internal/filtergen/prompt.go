package filtergen

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/linkreach/linkreach/internal/dataset"
)

const systemPrompt = `You turn a natural language request into a filter over a table of LinkedIn connections.
The user gives a request, the column names and a few sample rows.

Answer with a JSON object {"expression": "...", "explanation": "..."}. The expression is written in this predicate language and nothing else:

- Columns are bare identifiers (Company) or back-quoted when they contain spaces (` + "`First Name`" + `).
- Literals: "double quoted strings", numbers, true, false, lists like ["a", "b"].
- Comparisons: == != < <= > >= contains startswith endswith matches in.
- contains, startswith, endswith and matches ignore case. matches takes an RE2 regular expression.
- Combine conditions with and, or, not and parentheses.
- Dates in the "Connected On" column look like "15 Mar 2024" and can be compared with < and >.

Guidelines:
- Prefer contains for fuzzy matching on text columns such as Position and Company.
- Expand common abbreviations for positions. For example:
  - "SDE" means "Software Development Engineer"
  - "HR" means "Human Resources", "Talent", "Recruiter", "People"
  - "PM" means "Product Manager", "Program Manager"
  - "TA" means "Talent Acquisition"
  - "SDM" means "Software Development Manager"
  - "Engg Mgr" means "Engineering Manager"
- When a role has several variants, use a single matches pattern such as Position matches "HR|Talent|Recruiter|People".
- Only use the listed columns. Do not call functions and do not write code.
- Do not wrap the answer in markdown.`

func buildUserPrompt(req Request) (string, error) {
	columnsJSON, err := json.Marshal(req.Columns)
	if err != nil {
		return "", fmt.Errorf("marshal columns: %w", err)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Prompt: %s\n\n", strings.TrimSpace(req.Prompt))
	fmt.Fprintf(&b, "Columns: %s\n\n", columnsJSON)
	b.WriteString("Sample rows:\n")
	b.WriteString(renderSample(req.Columns, req.SampleRows))
	if feedback := strings.TrimSpace(req.Feedback); feedback != "" {
		fmt.Fprintf(&b, "\nYour previous expression was rejected: %s\nReturn a corrected expression.\n", feedback)
	}
	return b.String(), nil
}

// renderSample prints rows as tab separated lines under a header, close to
// how a data frame would print.
func renderSample(columns []string, rows []dataset.Row) string {
	if len(rows) == 0 {
		return "(no rows)\n"
	}
	var b strings.Builder
	b.WriteString(strings.Join(columns, "\t"))
	b.WriteByte('\n')
	for _, row := range rows {
		values := make([]string, len(columns))
		for i, column := range columns {
			values[i] = strings.ReplaceAll(row[column], "\n", " ")
		}
		b.WriteString(strings.Join(values, "\t"))
		b.WriteByte('\n')
	}
	return b.String()
}
