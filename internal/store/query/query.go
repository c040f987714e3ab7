// Package query implements the run search surface shared by the tracking
// backends: the filter expression language (comparisons over metrics,
// params, tags, and run attributes joined by AND) and order-by handling.
package query

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/tracklab-io/tracklab/internal/domain"
)

// ErrInvalidQuery marks malformed filter expressions and order-by clauses
// so callers can distinguish them from backend failures.
var ErrInvalidQuery = errors.New("invalid query")

// Kind identifies which run collection a comparison addresses.
type Kind int

const (
	KindMetric Kind = iota
	KindParam
	KindTag
	KindAttribute
)

// Comparison is one `<entity>.<key> <op> <value>` clause.
type Comparison struct {
	Kind   Kind
	Key    string
	Op     string
	StrVal string
	NumVal float64
	IsNum  bool
}

var kindAliases = map[string]Kind{
	"metric":     KindMetric,
	"metrics":    KindMetric,
	"param":      KindParam,
	"params":     KindParam,
	"parameter":  KindParam,
	"parameters": KindParam,
	"tag":        KindTag,
	"tags":       KindTag,
	"attribute":  KindAttribute,
	"attributes": KindAttribute,
	"attr":       KindAttribute,
}

// ParseFilter parses a filter expression. The empty expression matches all
// runs.
func ParseFilter(filter string) ([]Comparison, error) {
	filter = strings.TrimSpace(filter)
	if filter == "" {
		return nil, nil
	}
	var comps []Comparison
	for _, clause := range splitAnd(filter) {
		comp, err := parseComparison(clause)
		if err != nil {
			return nil, fmt.Errorf("%w: filter %q: %v", ErrInvalidQuery, filter, err)
		}
		comps = append(comps, comp)
	}
	return comps, nil
}

// splitAnd splits on the AND keyword outside quotes.
func splitAnd(s string) []string {
	var parts []string
	var quote rune
	last := 0
	upper := strings.ToUpper(s)
	for i := 0; i < len(s); i++ {
		c := rune(s[i])
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"' || c == '`':
			quote = c
		case c == 'a' || c == 'A':
			if strings.HasPrefix(upper[i:], "AND") &&
				(i == 0 || unicode.IsSpace(rune(s[i-1]))) &&
				(i+3 >= len(s) || unicode.IsSpace(rune(s[i+3]))) {
				parts = append(parts, s[last:i])
				i += 2
				last = i + 1
			}
		}
	}
	parts = append(parts, s[last:])
	return parts
}

func parseComparison(clause string) (Comparison, error) {
	clause = strings.TrimSpace(clause)
	if clause == "" {
		return Comparison{}, fmt.Errorf("empty clause")
	}

	identifier, rest, err := readIdentifier(clause)
	if err != nil {
		return Comparison{}, err
	}
	entity, key, ok := strings.Cut(identifier, ".")
	if !ok {
		return Comparison{}, fmt.Errorf("identifier %q must be qualified as <entity>.<key>", identifier)
	}
	kind, ok := kindAliases[strings.ToLower(entity)]
	if !ok {
		return Comparison{}, fmt.Errorf("unknown entity %q", entity)
	}
	key = unquoteKey(key)
	if key == "" {
		return Comparison{}, fmt.Errorf("identifier %q has an empty key", identifier)
	}

	op, rest, err := readOperator(rest)
	if err != nil {
		return Comparison{}, err
	}

	comp := Comparison{Kind: kind, Key: key, Op: op}
	value := strings.TrimSpace(rest)
	if value == "" {
		return Comparison{}, fmt.Errorf("missing comparison value")
	}
	if strings.HasPrefix(value, "'") || strings.HasPrefix(value, "\"") {
		unquoted, err := unquoteValue(value)
		if err != nil {
			return Comparison{}, err
		}
		comp.StrVal = unquoted
	} else {
		num, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return Comparison{}, fmt.Errorf("value %q is neither quoted string nor number", value)
		}
		comp.NumVal = num
		comp.IsNum = true
	}

	if err := comp.check(); err != nil {
		return Comparison{}, err
	}
	return comp, nil
}

func (c Comparison) check() error {
	switch c.Kind {
	case KindMetric:
		if !c.IsNum {
			return fmt.Errorf("metric %q requires a numeric value", c.Key)
		}
	case KindParam, KindTag:
		if c.IsNum {
			return fmt.Errorf("%s %q requires a quoted string value", c.entityName(), c.Key)
		}
		if c.Op != "=" && c.Op != "!=" {
			return fmt.Errorf("%s %q supports only = and !=", c.entityName(), c.Key)
		}
	case KindAttribute:
		switch c.Key {
		case "start_time", "end_time":
			if !c.IsNum {
				return fmt.Errorf("attribute %q requires a numeric value", c.Key)
			}
		case "run_id", "status", "user_id", "artifact_uri":
			if c.IsNum {
				return fmt.Errorf("attribute %q requires a quoted string value", c.Key)
			}
			if c.Op != "=" && c.Op != "!=" {
				return fmt.Errorf("attribute %q supports only = and !=", c.Key)
			}
		default:
			return fmt.Errorf("unsupported attribute %q", c.Key)
		}
	}
	return nil
}

func (c Comparison) entityName() string {
	switch c.Kind {
	case KindMetric:
		return "metric"
	case KindParam:
		return "param"
	case KindTag:
		return "tag"
	default:
		return "attribute"
	}
}

// Match reports whether one run satisfies the comparison. Runs lacking the
// referenced key never match.
func (c Comparison) Match(run domain.Run) bool {
	switch c.Kind {
	case KindMetric:
		v, ok := run.Data.Metrics[c.Key]
		if !ok {
			return false
		}
		return compareNum(v, c.Op, c.NumVal)
	case KindParam:
		v, ok := run.Data.Params[c.Key]
		if !ok {
			return false
		}
		return compareStr(v, c.Op, c.StrVal)
	case KindTag:
		v, ok := run.Data.Tags[c.Key]
		if !ok {
			return false
		}
		return compareStr(v, c.Op, c.StrVal)
	default:
		return c.matchAttribute(run)
	}
}

func (c Comparison) matchAttribute(run domain.Run) bool {
	switch c.Key {
	case "start_time":
		return compareNum(float64(run.Info.StartTime), c.Op, c.NumVal)
	case "end_time":
		return compareNum(float64(run.Info.EndTime), c.Op, c.NumVal)
	case "run_id":
		return compareStr(run.Info.RunID, c.Op, c.StrVal)
	case "status":
		return compareStr(string(run.Info.Status), c.Op, c.StrVal)
	case "user_id":
		return compareStr(run.Info.UserID, c.Op, c.StrVal)
	case "artifact_uri":
		return compareStr(run.Info.ArtifactURI, c.Op, c.StrVal)
	}
	return false
}

func compareNum(v float64, op string, ref float64) bool {
	switch op {
	case "=":
		return v == ref
	case "!=":
		return v != ref
	case ">":
		return v > ref
	case ">=":
		return v >= ref
	case "<":
		return v < ref
	case "<=":
		return v <= ref
	}
	return false
}

func compareStr(v, op, ref string) bool {
	switch op {
	case "=":
		return v == ref
	case "!=":
		return v != ref
	}
	return false
}

// ApplyFilter keeps the runs matching every comparison, preserving order.
func ApplyFilter(runs []domain.Run, comps []Comparison) []domain.Run {
	if len(comps) == 0 {
		return runs
	}
	out := make([]domain.Run, 0, len(runs))
	for _, run := range runs {
		matched := true
		for _, comp := range comps {
			if !comp.Match(run) {
				matched = false
				break
			}
		}
		if matched {
			out = append(out, run)
		}
	}
	return out
}

func readIdentifier(s string) (identifier, rest string, err error) {
	i := 0
	for i < len(s) {
		c := s[i]
		if c == '"' || c == '`' {
			close := strings.IndexByte(s[i+1:], c)
			if close < 0 {
				return "", "", fmt.Errorf("unterminated quote in identifier")
			}
			i += close + 2
			continue
		}
		if c == ' ' || c == '=' || c == '!' || c == '<' || c == '>' {
			break
		}
		i++
	}
	if i == 0 {
		return "", "", fmt.Errorf("missing identifier")
	}
	return s[:i], s[i:], nil
}

func readOperator(s string) (op, rest string, err error) {
	s = strings.TrimSpace(s)
	for _, candidate := range []string{">=", "<=", "!=", ">", "<", "="} {
		if strings.HasPrefix(s, candidate) {
			return candidate, s[len(candidate):], nil
		}
	}
	return "", "", fmt.Errorf("missing comparison operator")
}

func unquoteKey(key string) string {
	if len(key) >= 2 {
		if (key[0] == '"' && key[len(key)-1] == '"') || (key[0] == '`' && key[len(key)-1] == '`') {
			return key[1 : len(key)-1]
		}
	}
	return key
}

func unquoteValue(s string) (string, error) {
	if len(s) < 2 || s[0] != s[len(s)-1] {
		return "", fmt.Errorf("unterminated string value %q", s)
	}
	return s[1 : len(s)-1], nil
}

// orderClause is one parsed order-by entry.
type orderClause struct {
	comp      Comparison // Kind+Key reused for value lookup
	ascending bool
}

// SortRuns orders runs by the given order-by clauses, each of the form
// "<entity>.<key> [ASC|DESC]" or "attributes.<name>". The default ordering,
// applied when orderBy is empty and as the final tie-break, is start_time
// descending then run_id ascending.
func SortRuns(runs []domain.Run, orderBy []string) error {
	clauses := make([]orderClause, 0, len(orderBy)+2)
	for _, raw := range orderBy {
		clause, err := parseOrderClause(raw)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidQuery, err)
		}
		clauses = append(clauses, clause)
	}
	clauses = append(clauses,
		orderClause{comp: Comparison{Kind: KindAttribute, Key: "start_time"}, ascending: false},
		orderClause{comp: Comparison{Kind: KindAttribute, Key: "run_id"}, ascending: true},
	)

	sort.SliceStable(runs, func(i, j int) bool {
		for _, clause := range clauses {
			cmp, decided := clause.compare(runs[i], runs[j])
			if decided {
				return cmp
			}
		}
		return false
	})
	return nil
}

func parseOrderClause(raw string) (orderClause, error) {
	fields := strings.Fields(raw)
	if len(fields) == 0 || len(fields) > 2 {
		return orderClause{}, fmt.Errorf("invalid order by clause %q", raw)
	}
	clause := orderClause{ascending: true}
	if len(fields) == 2 {
		switch strings.ToUpper(fields[1]) {
		case "ASC":
		case "DESC":
			clause.ascending = false
		default:
			return orderClause{}, fmt.Errorf("invalid order direction %q", fields[1])
		}
	}

	identifier := fields[0]
	entity, key, ok := strings.Cut(identifier, ".")
	if !ok {
		// Bare attribute names are accepted: "start_time DESC".
		entity, key = "attributes", identifier
	}
	kind, known := kindAliases[strings.ToLower(entity)]
	if !known {
		return orderClause{}, fmt.Errorf("unknown order by entity %q", entity)
	}
	key = unquoteKey(key)
	if key == "" {
		return orderClause{}, fmt.Errorf("order by clause %q has an empty key", raw)
	}
	clause.comp = Comparison{Kind: kind, Key: key}
	return clause, nil
}

// compare returns (iBeforeJ, decided). Runs missing the sort key order after
// runs that carry it.
func (c orderClause) compare(a, b domain.Run) (bool, bool) {
	switch c.comp.Kind {
	case KindMetric:
		av, aok := a.Data.Metrics[c.comp.Key]
		bv, bok := b.Data.Metrics[c.comp.Key]
		if !aok || !bok {
			return aok, aok != bok
		}
		if av == bv {
			return false, false
		}
		return (av < bv) == c.ascending, true
	case KindParam:
		return compareOrderedStr(a.Data.Params[c.comp.Key], b.Data.Params[c.comp.Key], c.ascending,
			hasKey(a.Data.Params, c.comp.Key), hasKey(b.Data.Params, c.comp.Key))
	case KindTag:
		return compareOrderedStr(a.Data.Tags[c.comp.Key], b.Data.Tags[c.comp.Key], c.ascending,
			hasKey(a.Data.Tags, c.comp.Key), hasKey(b.Data.Tags, c.comp.Key))
	default:
		return c.compareAttribute(a, b)
	}
}

func (c orderClause) compareAttribute(a, b domain.Run) (bool, bool) {
	switch c.comp.Key {
	case "start_time":
		if a.Info.StartTime == b.Info.StartTime {
			return false, false
		}
		return (a.Info.StartTime < b.Info.StartTime) == c.ascending, true
	case "end_time":
		if a.Info.EndTime == b.Info.EndTime {
			return false, false
		}
		return (a.Info.EndTime < b.Info.EndTime) == c.ascending, true
	case "run_id":
		return compareOrderedStr(a.Info.RunID, b.Info.RunID, c.ascending, true, true)
	case "status":
		return compareOrderedStr(string(a.Info.Status), string(b.Info.Status), c.ascending, true, true)
	case "user_id":
		return compareOrderedStr(a.Info.UserID, b.Info.UserID, c.ascending, true, true)
	case "artifact_uri":
		return compareOrderedStr(a.Info.ArtifactURI, b.Info.ArtifactURI, c.ascending, true, true)
	}
	return false, false
}

func compareOrderedStr(a, b string, ascending, aok, bok bool) (bool, bool) {
	if !aok || !bok {
		return aok, aok != bok
	}
	if a == b {
		return false, false
	}
	return (a < b) == ascending, true
}

func hasKey(m map[string]string, key string) bool {
	_, ok := m[key]
	return ok
}
