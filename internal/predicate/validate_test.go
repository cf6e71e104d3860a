package predicate

import (
	"errors"
	"strings"
	"testing"
)

var connectionColumns = []string{"First Name", "Last Name", "Company", "Position", "Connected On", "Age"}

func TestValidateAcceptsWellFormedPredicates(t *testing.T) {
	inputs := []string{
		`Company == "Acme"`,
		"`Connected On` >= \"01 Jan 2024\"",
		`Position contains "hr" or Position contains "talent"`,
		`Company in ["Acme", "Globex"] and not (Position matches "^(vp|head)\\b")`,
		`"a" == "a"`,
		`Company == Position`,
	}
	for _, input := range inputs {
		expr, err := Parse(input)
		if err != nil {
			t.Fatalf("Parse(%q) error = %v", input, err)
		}
		if err := Validate(expr, connectionColumns, Limits{}); err != nil {
			t.Fatalf("Validate(%q) error = %v", input, err)
		}
	}
}

func TestValidateRejectsInvalidPredicates(t *testing.T) {
	cases := map[string]string{
		"unknown column":      `Salary > 100`,
		"bare literal":        `"Acme"`,
		"bare true":           `true`,
		"bare column":         `Company`,
		"column operand":      `Company and Position == "x"`,
		"not of literal":      `not "x"`,
		"in without list":     `Company in "Acme"`,
		"list outside in":     `Company == ["Acme"]`,
		"matches non string":  `Company matches 42`,
		"matches bad pattern": `Company matches "("`,
		"matches column":      `Company matches Position`,
		"compare of compare":  `(Company == "a") == true`,
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			expr, err := Parse(input)
			if err != nil {
				t.Fatalf("Parse(%q) error = %v", input, err)
			}
			if err := Validate(expr, connectionColumns, Limits{}); !errors.Is(err, ErrInvalid) {
				t.Fatalf("Validate(%q) error = %v, want ErrInvalid", input, err)
			}
		})
	}
}

func TestValidateEnforcesLimits(t *testing.T) {
	deep := strings.Repeat("not ", 40) + `Company == "a"`
	expr, err := Parse(deep)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if err := Validate(expr, connectionColumns, Limits{}); !errors.Is(err, ErrInvalid) {
		t.Fatalf("depth: Validate() error = %v", err)
	}

	parts := make([]string, 0, 100)
	for i := 0; i < 100; i++ {
		parts = append(parts, `Company == "a"`)
	}
	expr, err = Parse(strings.Join(parts, " or "))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if err := Validate(expr, connectionColumns, Limits{MaxDepth: 1000}); !errors.Is(err, ErrInvalid) {
		t.Fatalf("nodes: Validate() error = %v", err)
	}

	items := make([]string, 0, 5)
	for i := 0; i < 5; i++ {
		items = append(items, `"x"`)
	}
	expr, err = Parse("Company in [" + strings.Join(items, ",") + "]")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if err := Validate(expr, connectionColumns, Limits{MaxListLength: 4}); !errors.Is(err, ErrInvalid) {
		t.Fatalf("list: Validate() error = %v", err)
	}

	expr, err = Parse(`Company matches "` + strings.Repeat("a", 300) + `"`)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if err := Validate(expr, connectionColumns, Limits{}); !errors.Is(err, ErrInvalid) {
		t.Fatalf("pattern: Validate() error = %v", err)
	}
}

func TestValidateNil(t *testing.T) {
	if err := Validate(nil, connectionColumns, Limits{}); !errors.Is(err, ErrInvalid) {
		t.Fatalf("Validate(nil) error = %v", err)
	}
}
