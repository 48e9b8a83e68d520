package host

import (
	"math"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/roach88/gall/internal/script"
)

// display converts a value to a string with the session culture, as
// ToString() and -f do.
func (r *runner) display(v any) string {
	c := r.s.culture
	switch x := norm(v).(type) {
	case float64:
		return localizeDecimal(formatFloat(x, 64), c)
	case float32:
		return localizeDecimal(formatFloat(float64(x), 32), c)
	case time.Time:
		s, _ := c.FormatDate(x, "G")
		return s
	case []any:
		parts := make([]string, len(x))
		for i, e := range x {
			parts[i] = r.display(e)
		}
		return strings.Join(parts, " ")
	}
	return toString(v)
}

func localizeDecimal(s string, c *Culture) string {
	if c.DecimalSep == "." {
		return s
	}
	return strings.Replace(s, ".", c.DecimalSep, 1)
}

// formatValue implements ToString(format) and the format item of -f.
func (r *runner) formatValue(v any, format string) (string, error) {
	if format == "" {
		return r.display(v), nil
	}
	switch x := norm(v).(type) {
	case int, int64, float64, float32:
		return r.formatNumber(x, format)
	case time.Time:
		return r.s.culture.FormatDate(x, format)
	case script.Version:
		n, err := strconv.Atoi(format)
		if err != nil || n < 0 || n > 4 {
			return "", newError(nil, ErrCodeRuntime, "Format specifier was invalid.")
		}
		parts := strings.Split(x.String(), ".")
		if n > len(parts) {
			return "", newError(nil, ErrCodeRuntime, "Format specifier was invalid.")
		}
		return strings.Join(parts[:n], "."), nil
	}
	return r.display(v), nil
}

// formatNumber implements the standard numeric formats X, D, N, F, E, P, G
// and R, plus custom patterns built from 0 # . and ,.
func (r *runner) formatNumber(v any, format string) (string, error) {
	spec := format[0]
	prec := -1
	if len(format) > 1 {
		p, err := strconv.Atoi(format[1:])
		if err != nil {
			return r.formatCustomNumber(v, format)
		}
		prec = p
	}
	printer := message.NewPrinter(r.s.culture.Tag)
	switch spec {
	case 'X', 'x':
		n, err := integerOf(v)
		if err != nil {
			return "", err
		}
		var s string
		if _, ok := v.(int); ok {
			s = strconv.FormatUint(uint64(uint32(n)), 16)
		} else {
			s = strconv.FormatUint(uint64(n), 16)
		}
		if spec == 'X' {
			s = strings.ToUpper(s)
		}
		return padLeft(s, prec, '0'), nil
	case 'D', 'd':
		n, err := integerOf(v)
		if err != nil {
			return "", err
		}
		neg := n < 0
		s := strconv.FormatInt(n, 10)
		if neg {
			return "-" + padLeft(s[1:], prec, '0'), nil
		}
		return padLeft(s, prec, '0'), nil
	case 'N', 'n', 'F', 'f':
		if prec < 0 {
			prec = 2
		}
		f, _ := toFloat(v)
		opts := []number.Option{number.MinFractionDigits(prec), number.MaxFractionDigits(prec)}
		if spec == 'F' || spec == 'f' {
			opts = append(opts, number.NoSeparator())
		}
		return printer.Sprint(number.Decimal(roundAwayFromZero(f, prec), opts...)), nil
	case 'P', 'p':
		if prec < 0 {
			prec = 2
		}
		f, _ := toFloat(v)
		return printer.Sprint(number.Percent(roundAwayFromZero(f*100, prec)/100,
			number.MinFractionDigits(prec), number.MaxFractionDigits(prec))), nil
	case 'E', 'e':
		if prec < 0 {
			prec = 6
		}
		f, _ := toFloat(v)
		s := strconv.FormatFloat(f, 'e', prec, 64)
		mant, exp, _ := strings.Cut(s, "e")
		sign := exp[0]
		digits := strings.TrimLeft(exp[1:], "0")
		for len(digits) < 3 {
			digits = "0" + digits
		}
		out := localizeDecimal(mant, r.s.culture) + "e" + string(sign) + digits
		if spec == 'E' {
			out = strings.ToUpper(out)
		}
		return out, nil
	case 'G', 'g', 'R', 'r':
		if prec > 0 {
			f, _ := toFloat(v)
			return localizeDecimal(strconv.FormatFloat(f, 'g', prec, 64), r.s.culture), nil
		}
		return r.display(v), nil
	}
	return r.formatCustomNumber(v, format)
}

// formatCustomNumber handles patterns such as 0.00, #,##0 and 000.
func (r *runner) formatCustomNumber(v any, format string) (string, error) {
	for _, c := range format {
		if !strings.ContainsRune("0#.,", c) {
			return "", newError(nil, ErrCodeRuntime, "Format specifier was invalid.")
		}
	}
	intPart, fracPart, _ := strings.Cut(format, ".")
	minInt := strings.Count(intPart, "0")
	minFrac := strings.Count(fracPart, "0")
	maxFrac := minFrac + strings.Count(fracPart, "#")
	f, _ := toFloat(v)
	opts := []number.Option{
		number.MinIntegerDigits(minInt),
		number.MinFractionDigits(minFrac),
		number.MaxFractionDigits(maxFrac),
	}
	if !strings.Contains(intPart, ",") {
		opts = append(opts, number.NoSeparator())
	}
	return message.NewPrinter(r.s.culture.Tag).Sprint(number.Decimal(roundAwayFromZero(f, maxFrac), opts...)), nil
}

func integerOf(v any) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int64:
		return n, nil
	}
	return 0, newError(nil, ErrCodeRuntime, "Format specifier was invalid.")
}

// roundAwayFromZero rounds the way .NET numeric formatting does.
func roundAwayFromZero(f float64, digits int) float64 {
	p := math.Pow(10, float64(digits))
	return math.Round(f*p) / p
}

func padLeft(s string, width int, pad rune) string {
	n := len([]rune(s))
	if width <= n {
		return s
	}
	return strings.Repeat(string(pad), width-n) + s
}

func padRight(s string, width int, pad rune) string {
	n := len([]rune(s))
	if width <= n {
		return s
	}
	return s + strings.Repeat(string(pad), width-n)
}

// formatComposite implements the -f operator: {index[,alignment][:format]}
// items, with {{ and }} as literal braces.
func (r *runner) formatComposite(format string, args []any) (string, error) {
	var b strings.Builder
	for i := 0; i < len(format); i++ {
		c := format[i]
		switch c {
		case '{':
			if i+1 < len(format) && format[i+1] == '{' {
				b.WriteByte('{')
				i++
				continue
			}
			end := strings.IndexByte(format[i:], '}')
			if end < 0 {
				return "", newError(nil, ErrCodeRuntime, "Error formatting a string: Input string was not in a correct format.")
			}
			item := format[i+1 : i+end]
			i += end
			s, err := r.formatItem(item, args)
			if err != nil {
				return "", err
			}
			b.WriteString(s)
		case '}':
			if i+1 < len(format) && format[i+1] == '}' {
				i++
			}
			b.WriteByte('}')
		default:
			b.WriteByte(c)
		}
	}
	return b.String(), nil
}

func (r *runner) formatItem(item string, args []any) (string, error) {
	spec, fmtStr, _ := strings.Cut(item, ":")
	idxStr, alignStr, hasAlign := strings.Cut(spec, ",")
	idx, err := strconv.Atoi(strings.TrimSpace(idxStr))
	if err != nil {
		return "", newError(nil, ErrCodeRuntime, "Error formatting a string: Input string was not in a correct format.")
	}
	if idx < 0 || idx >= len(args) {
		return "", newError(nil, ErrCodeRuntime,
			"Error formatting a string: Index (zero based) must be greater than or equal to zero and less than the size of the argument list.")
	}
	s, err := r.formatValue(args[idx], fmtStr)
	if err != nil {
		return "", err
	}
	if hasAlign {
		width, err := strconv.Atoi(strings.TrimSpace(alignStr))
		if err != nil {
			return "", newError(nil, ErrCodeRuntime, "Error formatting a string: Input string was not in a correct format.")
		}
		if width < 0 {
			s = padRight(s, -width, ' ')
		} else {
			s = padLeft(s, width, ' ')
		}
	}
	return s, nil
}
