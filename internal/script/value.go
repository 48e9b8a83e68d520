package script

import (
	"database/sql/driver"
	"fmt"
	"strconv"
	"strings"
)

// AutomationNull is the result of a pipeline that produced no output. It is
// distinct from an explicit $null.
var AutomationNull = &automationNull{}

type automationNull struct{}

func (*automationNull) String() string { return "" }

// PSObject wraps a value emitted by a command. Operators and members see
// through the wrapper; only array normalization looks at it.
type PSObject struct {
	Base any
}

// Unwrap returns the value inside any number of PSObject wrappers.
func Unwrap(v any) any {
	for {
		o, ok := v.(*PSObject)
		if !ok || o == nil {
			return v
		}
		v = o.Base
	}
}

// CustomObject is a property bag with ordered, case-insensitive names, as
// produced by [pscustomobject]@{...} or Select-Object.
type CustomObject struct {
	names  []string
	values map[string]any
}

func NewCustomObject() *CustomObject {
	return &CustomObject{values: make(map[string]any)}
}

// Set adds or replaces a property. A replaced property keeps its position
// and original spelling.
func (o *CustomObject) Set(name string, v any) {
	key := strings.ToLower(name)
	if _, ok := o.values[key]; !ok {
		o.names = append(o.names, name)
	}
	o.values[key] = v
}

// Get looks a property up ignoring case.
func (o *CustomObject) Get(name string) (any, bool) {
	v, ok := o.values[strings.ToLower(name)]
	return v, ok
}

// Names returns the property names in insertion order.
func (o *CustomObject) Names() []string {
	return append([]string(nil), o.names...)
}

func (o *CustomObject) Len() int { return len(o.names) }

// String renders the object the way the shell prints it inside a string:
// @{Name=a; Count=1}. An object with no properties renders as "".
func (o *CustomObject) String() string {
	if len(o.names) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("@{")
	for i, name := range o.names {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(formatProperty(o.values[strings.ToLower(name)]))
	}
	b.WriteByte('}')
	return b.String()
}

func formatProperty(v any) string {
	switch v := Unwrap(v).(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		if v {
			return "True"
		}
		return "False"
	case fmt.Stringer:
		return v.String()
	case []any:
		parts := make([]string, len(v))
		for i, e := range v {
			parts[i] = formatProperty(e)
		}
		return strings.Join(parts, " ")
	}
	return fmt.Sprint(v)
}

// Version is a four-part version number. Build and Revision are -1 when
// not specified, so 1.0 sorts before 1.0.0.
type Version struct {
	Major    int
	Minor    int
	Build    int
	Revision int
}

// ParseVersion parses Major.Minor[.Build[.Revision]].
func ParseVersion(s string) (Version, error) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) < 2 || len(parts) > 4 {
		return Version{}, fmt.Errorf("invalid version %q", s)
	}
	nums := []int{0, 0, -1, -1}
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return Version{}, fmt.Errorf("invalid version %q", s)
		}
		nums[i] = n
	}
	return Version{Major: nums[0], Minor: nums[1], Build: nums[2], Revision: nums[3]}, nil
}

// MustParseVersion is ParseVersion for literals known to be valid.
func MustParseVersion(s string) Version {
	v, err := ParseVersion(s)
	if err != nil {
		panic(err)
	}
	return v
}

func (v Version) String() string {
	s := fmt.Sprintf("%d.%d", v.Major, v.Minor)
	if v.Build >= 0 {
		s += "." + strconv.Itoa(v.Build)
		if v.Revision >= 0 {
			s += "." + strconv.Itoa(v.Revision)
		}
	}
	return s
}

// Compare returns -1, 0 or 1.
func (v Version) Compare(o Version) int {
	a := [4]int{v.Major, v.Minor, v.Build, v.Revision}
	b := [4]int{o.Major, o.Minor, o.Build, o.Revision}
	for i := range a {
		switch {
		case a[i] < b[i]:
			return -1
		case a[i] > b[i]:
			return 1
		}
	}
	return 0
}

// Key renders the version as a fixed-width string whose byte order matches
// Compare.
func (v Version) Key() string {
	return fmt.Sprintf("%010d.%010d.%010d.%010d", v.Major, v.Minor, v.Build+1, v.Revision+1)
}

// Value stores the sortable key.
func (v Version) Value() (driver.Value, error) {
	return v.Key(), nil
}

// Scan reads a key written by Value, or a plain version string.
func (v *Version) Scan(src any) error {
	var s string
	switch src := src.(type) {
	case string:
		s = src
	case []byte:
		s = string(src)
	case nil:
		*v = Version{Build: -1, Revision: -1}
		return nil
	default:
		return fmt.Errorf("cannot scan %T into Version", src)
	}
	parts := strings.Split(s, ".")
	if len(parts) == 4 && len(parts[0]) == 10 {
		var nums [4]int
		for i, p := range parts {
			n, err := strconv.Atoi(p)
			if err != nil {
				return fmt.Errorf("invalid version key %q", s)
			}
			nums[i] = n
		}
		*v = Version{Major: nums[0], Minor: nums[1], Build: nums[2] - 1, Revision: nums[3] - 1}
		return nil
	}
	parsed, err := ParseVersion(s)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

func (v Version) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

func (v *Version) UnmarshalText(b []byte) error {
	parsed, err := ParseVersion(string(b))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
