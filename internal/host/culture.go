package host

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"
)

// Culture holds the formatting conventions of one locale. Patterns use the
// .NET custom date format syntax.
type Culture struct {
	Name string
	Tag  language.Tag

	ShortDate string
	LongDate  string
	ShortTime string
	LongTime  string
	MonthDay  string
	YearMonth string
	DateSep   string

	Months     [12]string
	AbbrMonths [12]string
	Days       [7]string
	AbbrDays   [7]string
	AM, PM     string

	DecimalSep string
}

var englishMonths = [12]string{"January", "February", "March", "April", "May", "June",
	"July", "August", "September", "October", "November", "December"}
var englishAbbrMonths = [12]string{"Jan", "Feb", "Mar", "Apr", "May", "Jun",
	"Jul", "Aug", "Sep", "Oct", "Nov", "Dec"}
var englishDays = [7]string{"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"}
var englishAbbrDays = [7]string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}

// Invariant is the culture used for casts and string interpolation.
var Invariant = &Culture{
	Name:       "",
	Tag:        language.Und,
	ShortDate:  "MM/dd/yyyy",
	LongDate:   "dddd, dd MMMM yyyy",
	ShortTime:  "HH:mm",
	LongTime:   "HH:mm:ss",
	MonthDay:   "MMMM dd",
	YearMonth:  "yyyy MMMM",
	DateSep:    "/",
	Months:     englishMonths,
	AbbrMonths: englishAbbrMonths,
	Days:       englishDays,
	AbbrDays:   englishAbbrDays,
	AM:         "AM",
	PM:         "PM",
	DecimalSep: ".",
}

var cultures = []*Culture{
	{
		Name:       "en-US",
		Tag:        language.MustParse("en-US"),
		ShortDate:  "M/d/yyyy",
		LongDate:   "dddd, MMMM d, yyyy",
		ShortTime:  "h:mm tt",
		LongTime:   "h:mm:ss tt",
		MonthDay:   "MMMM d",
		YearMonth:  "MMMM yyyy",
		DateSep:    "/",
		Months:     englishMonths,
		AbbrMonths: englishAbbrMonths,
		Days:       englishDays,
		AbbrDays:   englishAbbrDays,
		AM:         "AM",
		PM:         "PM",
		DecimalSep: ".",
	},
	{
		Name:       "en-GB",
		Tag:        language.MustParse("en-GB"),
		ShortDate:  "dd/MM/yyyy",
		LongDate:   "dd MMMM yyyy",
		ShortTime:  "HH:mm",
		LongTime:   "HH:mm:ss",
		MonthDay:   "d MMMM",
		YearMonth:  "MMMM yyyy",
		DateSep:    "/",
		Months:     englishMonths,
		AbbrMonths: englishAbbrMonths,
		Days:       englishDays,
		AbbrDays:   englishAbbrDays,
		AM:         "am",
		PM:         "pm",
		DecimalSep: ".",
	},
	{
		Name:      "de-DE",
		Tag:       language.MustParse("de-DE"),
		ShortDate: "dd.MM.yyyy",
		LongDate:  "dddd, d. MMMM yyyy",
		ShortTime: "HH:mm",
		LongTime:  "HH:mm:ss",
		MonthDay:  "d. MMMM",
		YearMonth: "MMMM yyyy",
		DateSep:   ".",
		Months: [12]string{"Januar", "Februar", "März", "April", "Mai", "Juni",
			"Juli", "August", "September", "Oktober", "November", "Dezember"},
		AbbrMonths: [12]string{"Jan.", "Feb.", "März", "Apr.", "Mai", "Juni",
			"Juli", "Aug.", "Sept.", "Okt.", "Nov.", "Dez."},
		Days:       [7]string{"Sonntag", "Montag", "Dienstag", "Mittwoch", "Donnerstag", "Freitag", "Samstag"},
		AbbrDays:   [7]string{"So.", "Mo.", "Di.", "Mi.", "Do.", "Fr.", "Sa."},
		DecimalSep: ",",
	},
	{
		Name:      "fr-FR",
		Tag:       language.MustParse("fr-FR"),
		ShortDate: "dd/MM/yyyy",
		LongDate:  "dddd d MMMM yyyy",
		ShortTime: "HH:mm",
		LongTime:  "HH:mm:ss",
		MonthDay:  "d MMMM",
		YearMonth: "MMMM yyyy",
		DateSep:   "/",
		Months: [12]string{"janvier", "février", "mars", "avril", "mai", "juin",
			"juillet", "août", "septembre", "octobre", "novembre", "décembre"},
		AbbrMonths: [12]string{"janv.", "févr.", "mars", "avr.", "mai", "juin",
			"juil.", "août", "sept.", "oct.", "nov.", "déc."},
		Days:       [7]string{"dimanche", "lundi", "mardi", "mercredi", "jeudi", "vendredi", "samedi"},
		AbbrDays:   [7]string{"dim.", "lun.", "mar.", "mer.", "jeu.", "ven.", "sam."},
		DecimalSep: ",",
	},
	{
		Name:      "ja-JP",
		Tag:       language.MustParse("ja-JP"),
		ShortDate: "yyyy/MM/dd",
		LongDate:  "yyyy'年'M'月'd'日'",
		ShortTime: "H:mm",
		LongTime:  "H:mm:ss",
		MonthDay:  "M'月'd'日'",
		YearMonth: "yyyy'年'M'月'",
		DateSep:   "/",
		Months: [12]string{"1月", "2月", "3月", "4月", "5月", "6月",
			"7月", "8月", "9月", "10月", "11月", "12月"},
		AbbrMonths: [12]string{"1", "2", "3", "4", "5", "6", "7", "8", "9", "10", "11", "12"},
		Days:       [7]string{"日曜日", "月曜日", "火曜日", "水曜日", "木曜日", "金曜日", "土曜日"},
		AbbrDays:   [7]string{"日", "月", "火", "水", "木", "金", "土"},
		AM:         "午前",
		PM:         "午後",
		DecimalSep: ".",
	},
}

var cultureMatcher = func() language.Matcher {
	tags := make([]language.Tag, len(cultures))
	for i, c := range cultures {
		tags[i] = c.Tag
	}
	return language.NewMatcher(tags)
}()

// LookupCulture returns the supported culture closest to tag. Tags with no
// reasonable match fall back to en-US.
func LookupCulture(tag language.Tag) *Culture {
	_, idx, conf := cultureMatcher.Match(tag)
	if conf == language.No {
		return cultures[0]
	}
	return cultures[idx]
}

// ParseCulture resolves a BCP 47 name such as "de-DE".
func ParseCulture(name string) (*Culture, error) {
	if name == "" {
		return cultures[0], nil
	}
	tag, err := language.Parse(name)
	if err != nil {
		return nil, fmt.Errorf("invalid culture %q: %w", name, err)
	}
	return LookupCulture(tag), nil
}

// expandStandardDate maps a single-character standard format to its
// pattern in c.
func (c *Culture) expandStandardDate(f string) string {
	switch f {
	case "d":
		return c.ShortDate
	case "D":
		return c.LongDate
	case "t":
		return c.ShortTime
	case "T":
		return c.LongTime
	case "f":
		return c.LongDate + " " + c.ShortTime
	case "F":
		return c.LongDate + " " + c.LongTime
	case "g":
		return c.ShortDate + " " + c.ShortTime
	case "G":
		return c.ShortDate + " " + c.LongTime
	case "M", "m":
		return c.MonthDay
	case "Y", "y":
		return c.YearMonth
	case "s":
		return "yyyy'-'MM'-'dd'T'HH':'mm':'ss"
	case "u":
		return "yyyy'-'MM'-'dd HH':'mm':'ss'Z'"
	case "o", "O":
		return "yyyy'-'MM'-'dd'T'HH':'mm':'ss'.'fffffffK"
	case "r", "R":
		return "ddd, dd MMM yyyy HH':'mm':'ss 'GMT'"
	}
	return ""
}

// FormatDate renders t with a standard or custom .NET date format.
func (c *Culture) FormatDate(t time.Time, format string) (string, error) {
	if format == "" {
		format = "G"
	}
	ci := c
	if len(format) == 1 {
		if format == "r" || format == "R" || format == "u" {
			t = t.UTC()
			ci = Invariant
		}
		if format == "o" || format == "O" || format == "s" {
			ci = Invariant
		}
		p := ci.expandStandardDate(format)
		if p == "" {
			return "", fmt.Errorf("input string %q was not in a correct format", format)
		}
		format = p
	}
	return ci.formatCustomDate(t, format), nil
}

func (c *Culture) formatCustomDate(t time.Time, f string) string {
	var b strings.Builder
	for i := 0; i < len(f); {
		ch := f[i]
		n := 1
		for i+n < len(f) && f[i+n] == ch {
			n++
		}
		switch ch {
		case 'd':
			switch n {
			case 1:
				b.WriteString(strconv.Itoa(t.Day()))
			case 2:
				fmt.Fprintf(&b, "%02d", t.Day())
			case 3:
				b.WriteString(c.AbbrDays[t.Weekday()])
			default:
				b.WriteString(c.Days[t.Weekday()])
			}
		case 'M':
			switch n {
			case 1:
				b.WriteString(strconv.Itoa(int(t.Month())))
			case 2:
				fmt.Fprintf(&b, "%02d", int(t.Month()))
			case 3:
				b.WriteString(c.AbbrMonths[t.Month()-1])
			default:
				b.WriteString(c.Months[t.Month()-1])
			}
		case 'y':
			switch n {
			case 1:
				b.WriteString(strconv.Itoa(t.Year() % 100))
			case 2:
				fmt.Fprintf(&b, "%02d", t.Year()%100)
			default:
				fmt.Fprintf(&b, "%0*d", n, t.Year())
			}
		case 'h':
			h := t.Hour() % 12
			if h == 0 {
				h = 12
			}
			writePadded(&b, h, n)
		case 'H':
			writePadded(&b, t.Hour(), n)
		case 'm':
			writePadded(&b, t.Minute(), n)
		case 's':
			writePadded(&b, t.Second(), n)
		case 'f', 'F':
			digits := min(n, 7)
			frac := fmt.Sprintf("%09d", t.Nanosecond())[:digits]
			if ch == 'F' {
				frac = strings.TrimRight(frac, "0")
			}
			b.WriteString(frac)
		case 't':
			d := c.AM
			if t.Hour() >= 12 {
				d = c.PM
			}
			if n == 1 && d != "" {
				d = string([]rune(d)[:1])
			}
			b.WriteString(d)
		case 'z':
			_, off := t.Zone()
			sign := '+'
			if off < 0 {
				sign = '-'
				off = -off
			}
			switch n {
			case 1:
				fmt.Fprintf(&b, "%c%d", sign, off/3600)
			case 2:
				fmt.Fprintf(&b, "%c%02d", sign, off/3600)
			default:
				fmt.Fprintf(&b, "%c%02d:%02d", sign, off/3600, off%3600/60)
			}
		case 'K':
			if t.Location() == time.UTC {
				b.WriteByte('Z')
			} else {
				b.WriteString(t.Format("-07:00"))
			}
			n = 1
		case '/':
			b.WriteString(c.DateSep)
			n = 1
		case '\'', '"':
			end := strings.IndexByte(f[i+1:], ch)
			if end < 0 {
				b.WriteString(f[i+1:])
				return b.String()
			}
			b.WriteString(f[i+1 : i+1+end])
			n = end + 2
		case '\\':
			if i+1 < len(f) {
				b.WriteByte(f[i+1])
			}
			n = 2
		default:
			b.WriteString(f[i : i+n])
		}
		i += n
	}
	return b.String()
}

func writePadded(b *strings.Builder, v, width int) {
	if width >= 2 {
		fmt.Fprintf(b, "%02d", v)
		return
	}
	b.WriteString(strconv.Itoa(v))
}
