package osimport

import (
	"errors"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ErrEmptyInput is returned when the pasted text is blank
var ErrEmptyInput = errors.New("service order text is empty")

type boundary int

const (
	// sameLine captures to end of line or the next known label
	sameLine boundary = iota
	// nextLine behaves like sameLine but an empty label line falls through to the following line
	nextLine
)

type label struct {
	name    string
	pattern string
}

// knownLabels are the field labels of the OS layout. Several of them share a
// physical line, so every capture stops at the first one it runs into.
// A label starts at a word boundary with a capital letter; "status:" inside
// free text is not a label.
var knownLabels = []label{
	{"os", `O\.?S\.?\s*N[º°]`},
	{"data", `(?:Data(?:\s+de\s+Entrada)?|Entrada)\s*:`},
	{"status", `Status\s*:`},
	{"previsao", `Previs[ãa]o(?:\s+de\s+Entrega)?\s*:`},
	{"possui_senha", `Possui\s+Senha`},
	{"senha", `Senha\s*:`},
	{"cliente", `Cliente\s*:`},
	{"cpf", `CPF\s*/\s*CNPJ\s*:`},
	{"contato", `Contato\s*:`},
	{"telefone", `Telefone\s*:`},
	{"endereco", `Endere[çc]o\s*:`},
	{"comp", `Comp\.\s*:`},
	{"bairro", `Bairro\s*:`},
	{"cidade", `Cidade\s*:`},
	{"cep", `CEP\s*:`},
	{"tipo", `(?:Tipo(?:\s+de\s+Aparelho)?|Equipamento)\s*:`},
	{"marca", `Marca\s*:`},
	{"modelo", `Modelo\s*:`},
	{"imei", `IMEI\s*:`},
	{"serie", `(?:N[ºo°]\.?\s*(?:de\s+)?S[ée]rie|Serial)\s*:`},
	{"problema", `Problema\s+Informado`},
	{"condicoes", `(?:Condi[çc][õo]es|Estado)\s+do\s+Aparelho`},
	{"vendedor", `Vendedor(?:\(a\))?\s*:`},
	{"acesso", `C[óo]digo\s+de\s+Acesso\s*:`},
}

func labelRe(pattern string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)\b(?:` + pattern + `)`)
}

// capitalized reports whether the match at loc starts with an upper-case letter
func capitalized(text string, loc []int) bool {
	r, _ := utf8.DecodeRuneInString(text[loc[0]:])
	return unicode.IsUpper(r)
}

// findLabel returns the first capitalized match of re in text
func findLabel(re *regexp.Regexp, text string) []int {
	for _, loc := range re.FindAllStringIndex(text, -1) {
		if capitalized(text, loc) {
			return loc
		}
	}
	return nil
}

// terminators compiles the union of known labels minus the excluded names
func terminators(exclude ...string) *regexp.Regexp {
	parts := make([]string, 0, len(knownLabels))
	for _, l := range knownLabels {
		skip := false
		for _, e := range exclude {
			if l.name == e {
				skip = true
				break
			}
		}
		if !skip {
			parts = append(parts, l.pattern)
		}
	}
	return labelRe(strings.Join(parts, "|"))
}

var allLabels = terminators()

// fieldRule is one row of the extraction table
type fieldRule struct {
	name     string
	labels   []*regexp.Regexp // alternatives, tried in order
	phrases  []*regexp.Regexp // literal fallbacks tried after labels; the match is the value
	boundary boundary
	until    *regexp.Regexp
	value    *regexp.Regexp // required shape; its submatches are handed to assign
	skip     func(text string, at int) bool
	reject   []string // lowercase substrings that disqualify a capture
	assign   func(rec *ExtractedOrder, m []string)
}

func (r fieldRule) apply(text string) ([]string, bool) {
	until := r.until
	if until == nil {
		until = allLabels
	}

	alts := append(append([]*regexp.Regexp{}, r.labels...), r.phrases...)
	for i, lbl := range alts {
		literal := i >= len(r.labels)
		for _, loc := range lbl.FindAllStringIndex(text, -1) {
			if !literal && !capitalized(text, loc) {
				continue
			}
			if r.skip != nil && r.skip(text, loc[0]) {
				continue
			}

			var raw string
			if literal {
				raw = text[loc[0]:loc[1]]
			} else {
				raw = capture(text, loc[1], r.boundary, until)
			}
			raw = clean(raw)
			if raw == "" || r.rejected(raw) {
				continue
			}

			m := []string{raw}
			if r.value != nil {
				if m = r.value.FindStringSubmatch(raw); m == nil {
					continue
				}
			}
			return m, true
		}
	}
	return nil, false
}

func (r fieldRule) rejected(v string) bool {
	lower := strings.ToLower(v)
	for _, bad := range r.reject {
		if strings.Contains(lower, bad) {
			return true
		}
	}
	return false
}

func capture(text string, from int, b boundary, until *regexp.Regexp) string {
	rest := strings.TrimLeft(text[from:], " \t:")
	line, tail, _ := strings.Cut(rest, "\n")
	if b == nextLine && strings.TrimSpace(line) == "" {
		line, _, _ = strings.Cut(strings.TrimLeft(tail, " \t\r\n"), "\n")
	}
	if loc := findLabel(until, line); loc != nil {
		line = line[:loc[0]]
	}
	return line
}

func clean(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	return strings.TrimRight(s, " ,;|")
}

func precededByPossui(text string, at int) bool {
	before := strings.TrimRight(text[:at], " \t")
	return strings.HasSuffix(strings.ToLower(before), "possui")
}

var (
	dateTimeValue = regexp.MustCompile(`^(\d{2}/\d{2}/\d{4})(?:\s+(?:às\s+)?(\d{2}:\d{2}))?`)
	digitsValue   = regexp.MustCompile(`^(\d+)`)
	phoneValue    = regexp.MustCompile(`^.*\d.*$`)
	taxIDValue    = regexp.MustCompile(`^([\d./-]{11,18})`)
	postalValue   = regexp.MustCompile(`^(\d{5}-?\d{3}|\d{2}\.\d{3}-\d{3})`)

	nameBleed   = regexp.MustCompile(`(?i)\s*\b(?:Contato|Telefone)\b\s*:?.*$`)
	compBleed   = regexp.MustCompile(`(?i)\s*Comp\.\s*:.*$`)
	dashNumber  = regexp.MustCompile(`^(.*?)\s*-\s*(\d+)$`)
	stateSuffix = regexp.MustCompile(`^[A-Za-z]{2}$`)

	imeiGuard = []string{"condições", "serviço", "imei:"}
)

// rules is the ordered extraction table
var rules = []fieldRule{
	{
		name:   "numero",
		labels: []*regexp.Regexp{labelRe(`O\.?S\.?\s*N[º°]\.?`)},
		value:  digitsValue,
		assign: func(rec *ExtractedOrder, m []string) { rec.Number = m[1] },
	},
	{
		name:   "data_entrada",
		labels: []*regexp.Regexp{labelRe(`(?:Data(?:\s+de\s+Entrada)?|Entrada)\s*:`)},
		value:  dateTimeValue,
		assign: func(rec *ExtractedOrder, m []string) {
			rec.EntryDate, rec.EntryTime = m[1], m[2]
		},
	},
	{
		name:   "status",
		labels: []*regexp.Regexp{labelRe(`Status\s*:`)},
		assign: func(rec *ExtractedOrder, m []string) { rec.Status = m[0] },
	},
	{
		name:   "previsao",
		labels: []*regexp.Regexp{labelRe(`Previs[ãa]o(?:\s+de\s+Entrega)?\s*:`)},
		value:  dateTimeValue,
		assign: func(rec *ExtractedOrder, m []string) {
			rec.ForecastDate, rec.ForecastTime = m[1], m[2]
		},
	},
	{
		name:   "senha",
		labels: []*regexp.Regexp{labelRe(`Senha\s*:`)},
		skip:   precededByPossui,
		assign: func(rec *ExtractedOrder, m []string) { rec.Password = m[0] },
	},
	{
		name:   "cliente",
		labels: []*regexp.Regexp{labelRe(`Cliente\s*:`)},
		assign: func(rec *ExtractedOrder, m []string) {
			rec.CustomerName = strings.TrimSpace(nameBleed.ReplaceAllString(m[0], ""))
		},
	},
	{
		name:   "cpf_cnpj",
		labels: []*regexp.Regexp{labelRe(`CPF\s*/\s*CNPJ\s*:`)},
		value:  taxIDValue,
		assign: func(rec *ExtractedOrder, m []string) { rec.TaxID = m[1] },
	},
	{
		name:   "contato",
		labels: []*regexp.Regexp{labelRe(`Contato\s*:`)},
		value:  phoneValue,
		assign: func(rec *ExtractedOrder, m []string) { rec.Phone = m[0] },
	},
	{
		name:   "telefone",
		labels: []*regexp.Regexp{labelRe(`Telefone\s*:`)},
		value:  phoneValue,
		assign: func(rec *ExtractedOrder, m []string) { rec.AltPhone = m[0] },
	},
	{
		name:   "endereco",
		labels: []*regexp.Regexp{labelRe(`Endere[çc]o\s*:`)},
		until:  terminators("comp"),
		assign: func(rec *ExtractedOrder, m []string) {
			rec.Street, rec.StreetNumber = splitAddress(m[0])
		},
	},
	{
		name:   "complemento",
		labels: []*regexp.Regexp{labelRe(`Comp\.\s*:`)},
		assign: func(rec *ExtractedOrder, m []string) { rec.Complement = m[0] },
	},
	{
		name:   "bairro",
		labels: []*regexp.Regexp{labelRe(`Bairro\s*:`)},
		assign: func(rec *ExtractedOrder, m []string) { rec.Neighborhood = m[0] },
	},
	{
		name:   "cidade",
		labels: []*regexp.Regexp{labelRe(`Cidade\s*:`)},
		assign: func(rec *ExtractedOrder, m []string) {
			rec.City, rec.State = splitCity(m[0])
		},
	},
	{
		name:   "cep",
		labels: []*regexp.Regexp{labelRe(`CEP\s*:`)},
		value:  postalValue,
		assign: func(rec *ExtractedOrder, m []string) { rec.PostalCode = m[1] },
	},
	{
		name:   "tipo_aparelho",
		labels: []*regexp.Regexp{labelRe(`(?:Tipo(?:\s+de\s+Aparelho)?|Equipamento)\s*:`)},
		assign: func(rec *ExtractedOrder, m []string) { rec.DeviceType = m[0] },
	},
	{
		name:   "marca",
		labels: []*regexp.Regexp{labelRe(`Marca\s*:`)},
		assign: func(rec *ExtractedOrder, m []string) { rec.Brand = m[0] },
	},
	{
		name:   "modelo",
		labels: []*regexp.Regexp{labelRe(`Modelo\s*:`)},
		assign: func(rec *ExtractedOrder, m []string) { rec.Model = m[0] },
	},
	{
		name:     "imei",
		labels:   []*regexp.Regexp{labelRe(`IMEI\s*:`)},
		boundary: nextLine,
		reject:   imeiGuard,
		assign:   func(rec *ExtractedOrder, m []string) { rec.IMEI = m[0] },
	},
	{
		name:     "serie",
		labels:   []*regexp.Regexp{labelRe(`(?:N[ºo°]\.?\s*(?:de\s+)?S[ée]rie|Serial)\s*:`)},
		boundary: nextLine,
		reject:   imeiGuard,
		assign:   func(rec *ExtractedOrder, m []string) { rec.Serial = m[0] },
	},
	{
		name:     "problema",
		labels:   []*regexp.Regexp{labelRe(`Problema\s+Informado`)},
		boundary: nextLine,
		assign:   func(rec *ExtractedOrder, m []string) { rec.Problem = m[0] },
	},
	{
		name:     "condicoes",
		labels:   []*regexp.Regexp{labelRe(`(?:Condi[çc][õo]es|Estado)\s+do\s+Aparelho`)},
		boundary: nextLine,
		assign:   func(rec *ExtractedOrder, m []string) { rec.Condition = m[0] },
	},
	{
		name: "possui_senha",
		labels: []*regexp.Regexp{
			labelRe(`Possui\s+Senha\s*:`),
			labelRe(`Possui\s+Senha\s*\?`),
			labelRe(`Possui\s+Senha`),
		},
		phrases: []*regexp.Regexp{
			labelRe(`N[ÃA]O\s+SABE\s*,?\s*VAI\s+PASSAR\s+DEPOIS`),
			labelRe(`VAI\s+PASSAR\s+DEPOIS`),
		},
		assign: func(rec *ExtractedOrder, m []string) { rec.HasPassword = m[0] },
	},
	{
		name:   "vendedor",
		labels: []*regexp.Regexp{labelRe(`Vendedor(?:\(a\))?\s*:`)},
		assign: func(rec *ExtractedOrder, m []string) { rec.Seller = m[0] },
	},
	{
		name:   "codigo_acesso",
		labels: []*regexp.Regexp{labelRe(`C[óo]digo\s+de\s+Acesso\s*:`)},
		value:  digitsValue,
		assign: func(rec *ExtractedOrder, m []string) { rec.AccessCode = m[1] },
	},
}

// Parse extracts a service order from pasted text
func Parse(text string) (*ExtractedOrder, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}
	return Extract(text), nil
}

// Extract runs the extraction table over text. Unmatched fields stay empty.
func Extract(text string) *ExtractedOrder {
	text = normalize(text)
	rec := &ExtractedOrder{}
	for _, r := range rules {
		if m, ok := r.apply(text); ok {
			r.assign(rec, m)
		}
	}
	return rec
}

func normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return strings.ReplaceAll(text, " ", " ")
}

// splitAddress drops a bled "Comp.:" fragment and splits "street - 123"
func splitAddress(v string) (street, number string) {
	v = strings.TrimRight(compBleed.ReplaceAllString(v, ""), " \t-,")
	v = strings.TrimSpace(v)
	if m := dashNumber.FindStringSubmatch(v); m != nil {
		return strings.TrimSpace(m[1]), m[2]
	}
	return v, ""
}

// splitCity splits "São Paulo / SP" into city and state
func splitCity(v string) (city, state string) {
	i := strings.LastIndex(v, "/")
	if i < 0 {
		return v, ""
	}
	city = strings.TrimSpace(v[:i])
	if st := strings.TrimSpace(v[i+1:]); stateSuffix.MatchString(st) {
		state = strings.ToUpper(st)
	}
	return city, state
}
