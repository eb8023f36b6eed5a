package types

import (
	"encoding/json"
	"testing"
)

func TestMoneyArithmetic(t *testing.T) {
	price, err := ParseMoney("100")
	if err != nil {
		t.Fatalf("ParseMoney returned error: %v", err)
	}

	total := price.Times(3).Add(MoneyFromInt(50))
	if !total.Equal(MoneyFromInt(350)) {
		t.Fatalf("expected 350, got %s", total)
	}
	if got := total.String(); got != "350.00" {
		t.Fatalf("expected 350.00, got %q", got)
	}
	if total.IsNegative() {
		t.Fatalf("total should not be negative")
	}
	if !(Money{}).IsZero() {
		t.Fatalf("zero value should be zero")
	}

	if _, err := ParseMoney("not-a-number"); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestMoneyJSONRoundsAsBareNumber(t *testing.T) {
	var payload struct {
		Price Money `json:"price"`
	}
	if err := json.Unmarshal([]byte(`{"price": 12500.5}`), &payload); err != nil {
		t.Fatalf("unmarshal number: %v", err)
	}
	if got := payload.Price.String(); got != "12500.50" {
		t.Fatalf("expected 12500.50, got %q", got)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(raw) != `{"price":12500.5}` {
		t.Fatalf("unexpected json %s", raw)
	}

	if err := json.Unmarshal([]byte(`{"price": "99.90"}`), &payload); err != nil {
		t.Fatalf("unmarshal string: %v", err)
	}
	if !payload.Price.Equal(mustMoney(t, "99.9")) {
		t.Fatalf("expected 99.9, got %s", payload.Price)
	}

	if err := json.Unmarshal([]byte(`{"price": null}`), &payload); err != nil {
		t.Fatalf("unmarshal null: %v", err)
	}
	if !payload.Price.IsZero() {
		t.Fatalf("null should decode to zero, got %s", payload.Price)
	}
}

func TestMoneyFormatter(t *testing.T) {
	f := NewMoneyFormatter("es-MX", "$")
	cases := map[string]Money{
		"$300.00": MoneyFromInt(300),
		"$0.00":   {},
		"-$5.50":  mustMoney(t, "-5.5"),
	}
	for want, m := range cases {
		if got := f.Format(m); got != want {
			t.Fatalf("Format(%s) = %q, want %q", m, got, want)
		}
	}

	fallback := NewMoneyFormatter("???", "$")
	if got := fallback.Format(MoneyFromInt(300)); got != "$300.00" {
		t.Fatalf("fallback locale: got %q", got)
	}

	var zero MoneyFormatter
	if got := zero.Format(MoneyFromInt(300)); got != "300.00" {
		t.Fatalf("zero formatter: got %q", got)
	}
}

func mustMoney(t *testing.T, value string) Money {
	t.Helper()
	m, err := ParseMoney(value)
	if err != nil {
		t.Fatalf("ParseMoney(%q): %v", value, err)
	}
	return m
}
