package types

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// Money is a non-rounded decimal amount in the storefront currency.
// It travels on the wire as a bare JSON number.
type Money struct {
	amount decimal.Decimal
}

func NewMoney(amount decimal.Decimal) Money {
	return Money{amount: amount}
}

func MoneyFromInt(value int64) Money {
	return Money{amount: decimal.NewFromInt(value)}
}

// ParseMoney parses a decimal string such as "12500.50".
func ParseMoney(value string) (Money, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return Money{}, fmt.Errorf("parse money %q: %w", value, err)
	}
	return Money{amount: amount}, nil
}

func (m Money) Decimal() decimal.Decimal { return m.amount }

func (m Money) Add(other Money) Money {
	return Money{amount: m.amount.Add(other.amount)}
}

// Times returns the amount multiplied by a quantity.
func (m Money) Times(qty int) Money {
	return Money{amount: m.amount.Mul(decimal.NewFromInt(int64(qty)))}
}

func (m Money) Equal(other Money) bool { return m.amount.Equal(other.amount) }

func (m Money) IsNegative() bool { return m.amount.IsNegative() }

func (m Money) IsZero() bool { return m.amount.IsZero() }

func (m Money) String() string { return m.amount.StringFixed(2) }

func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.amount.String()), nil
}

func (m *Money) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		m.amount = decimal.Zero
		return nil
	}
	var amount decimal.Decimal
	if err := amount.UnmarshalJSON(trimmed); err != nil {
		return err
	}
	m.amount = amount
	return nil
}

// MoneyFormatter renders amounts with a currency symbol and locale grouping,
// always with two fraction digits.
type MoneyFormatter struct {
	printer *message.Printer
	symbol  string
}

func NewMoneyFormatter(locale, symbol string) MoneyFormatter {
	tag, err := language.Parse(strings.TrimSpace(locale))
	if err != nil {
		tag = language.MustParse("es-MX")
	}
	return MoneyFormatter{
		printer: message.NewPrinter(tag),
		symbol:  symbol,
	}
}

func (f MoneyFormatter) Format(m Money) string {
	if f.printer == nil {
		return f.symbol + m.String()
	}
	value := m.amount.Round(2).InexactFloat64()
	sign := ""
	if value < 0 {
		sign = "-"
		value = -value
	}
	return sign + f.symbol + f.printer.Sprint(number.Decimal(value, number.Scale(2)))
}
