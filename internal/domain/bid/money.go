package bid

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
)

// Money is an amount in centavos.
type Money int64

var ErrInvalidMoney = errors.New("invalid monetary amount")

const maxIntegerDigits = 15

// ParseMoney reads decimal strings such as "9.95", "9,95", "1.234,56" or "R$ 10".
func ParseMoney(raw string) (Money, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "R$")
	s = strings.ReplaceAll(s, " ", "")
	if s == "" {
		return 0, ErrInvalidMoney
	}
	negative := false
	if s[0] == '-' {
		negative = true
		s = s[1:]
	}

	dot := strings.LastIndexByte(s, '.')
	comma := strings.LastIndexByte(s, ',')
	switch {
	case dot >= 0 && comma >= 0:
		if comma > dot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case comma >= 0:
		if strings.Count(s, ",") > 1 {
			return 0, ErrInvalidMoney
		}
		s = strings.Replace(s, ",", ".", 1)
	case strings.Count(s, ".") > 1:
		s = strings.ReplaceAll(s, ".", "")
	}

	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" {
		whole = "0"
	}
	if len(whole) > maxIntegerDigits || len(frac) > 2 || !digitsOnly(whole) || !digitsOnly(frac) {
		return 0, ErrInvalidMoney
	}
	for len(frac) < 2 {
		frac += "0"
	}
	cents, err := strconv.ParseInt(whole+frac, 10, 64)
	if err != nil {
		return 0, ErrInvalidMoney
	}
	if negative {
		cents = -cents
	}
	return Money(cents), nil
}

func digitsOnly(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func (m Money) split() (sign string, whole int64, cents int64) {
	v := int64(m)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return sign, v / 100, v % 100
}

// String renders the amount with a dot decimal separator, e.g. "1234.56".
func (m Money) String() string {
	sign, whole, cents := m.split()
	return sign + strconv.FormatInt(whole, 10) + "." + pad2(cents)
}

// BRL renders the amount the way it is announced in the session minutes, e.g. "R$ 1.234,56".
func (m Money) BRL() string {
	sign, whole, cents := m.split()
	digits := strconv.FormatInt(whole, 10)
	var b strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	return sign + "R$ " + b.String() + "," + pad2(cents)
}

func pad2(v int64) string {
	if v < 10 {
		return "0" + strconv.FormatInt(v, 10)
	}
	return strconv.FormatInt(v, 10)
}

func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON accepts a decimal string or a JSON number.
func (m *Money) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	raw := string(data)
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
	}
	v, err := ParseMoney(raw)
	if err != nil {
		return err
	}
	*m = v
	return nil
}
