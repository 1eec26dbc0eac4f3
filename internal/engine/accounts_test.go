package engine

import (
	"regexp"
	"strconv"
	"testing"
)

var placeholderRe = regexp.MustCompile(`\$(\d+)`)

// Every placeholder up to the bound argument count must appear in each
// transition clause: the extended protocol sizes the parameter list
// from the highest $n in the statement, and a never-referenced index in
// between makes the server reject the Parse with an undeterminable
// parameter type.
func TestTransitionSetClausesBindEveryPlaceholder(t *testing.T) {
	cases := []struct {
		name   string
		clause string
		args   int // now, the transition's extras, ledger id, account id
	}{
		{"freeze", freezeSetClause, 5},
		{"unfreeze", unfreezeSetClause, 3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			seen := make(map[int]bool)
			for _, m := range placeholderRe.FindAllStringSubmatch(tc.clause, -1) {
				n, err := strconv.Atoi(m[1])
				if err != nil || n < 1 || n > tc.args {
					t.Fatalf("placeholder $%s out of range for %d bound arguments", m[1], tc.args)
				}
				seen[n] = true
			}
			for n := 1; n <= tc.args; n++ {
				if !seen[n] {
					t.Fatalf("clause never references $%d of %d bound arguments", n, tc.args)
				}
			}
		})
	}
}
