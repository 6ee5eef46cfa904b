package instrument

import (
	"fmt"
	"strings"
)

// Market is the exchange-routing guess.
type Market string

const (
	SH Market = "SH"
	SZ Market = "SZ"
)

// Other returns the alternate market used by the single fallback swap.
func (m Market) Other() Market {
	if m == SH {
		return SZ
	}
	return SH
}

// Number returns the vendor market prefix used in secid (1 = SH, 0 = SZ).
func (m Market) Number() int {
	if m == SH {
		return 1
	}
	return 0
}

// QuotationURLPrefix is where per-instrument quotation pages live.
const QuotationURLPrefix = "https://xueqiu.com/S/"

// Identity is an instrument code plus its market guess. The zero value is not valid.
type Identity struct {
	Code    string
	Name    string
	Market  Market
	swapped bool
}

// New builds an identity from a 6-digit code. An explicit "SH"/"SZ" prefix overrides the guess.
func New(code string) (Identity, error) {
	c := strings.ToUpper(strings.TrimSpace(code))
	var m Market
	switch {
	case strings.HasPrefix(c, "SH"):
		m, c = SH, c[2:]
	case strings.HasPrefix(c, "SZ"):
		m, c = SZ, c[2:]
	}
	c = strings.TrimPrefix(c, ".")
	if len(c) != 6 || strings.Trim(c, "0123456789") != "" {
		return Identity{}, fmt.Errorf("invalid instrument code %q", code)
	}
	if m == "" {
		m = GuessMarket(c)
	}
	return Identity{Code: c, Market: m}, nil
}

// GuessMarket maps a code to its likely exchange: 6xxxxx shares, 5xxxxx funds and 9xxxxx
// B shares list in Shanghai, everything else routes to Shenzhen. Shanghai indices such as
// 000300 need the explicit "SH" prefix.
func GuessMarket(code string) Market {
	if code == "" {
		return SZ
	}
	switch code[0] {
	case '5', '6', '9':
		return SH
	}
	return SZ
}

// SecID returns the vendor security id, e.g. "1.600519".
func (id Identity) SecID() string {
	return fmt.Sprintf("%d.%s", id.Market.Number(), id.Code)
}

// Swap returns the identity re-guessed to the other market. ok is false when the
// single allowed swap was already used.
func (id Identity) Swap() (Identity, bool) {
	if id.swapped {
		return id, false
	}
	return Identity{Code: id.Code, Name: id.Name, Market: id.Market.Other(), swapped: true}, true
}

// Swapped reports whether this identity is the result of a fallback swap.
func (id Identity) Swapped() bool {
	return id.swapped
}

// QuotationURL returns the quotation page for the instrument.
func (id Identity) QuotationURL() string {
	return QuotationURLPrefix + string(id.Market) + id.Code
}

func (id Identity) String() string {
	return string(id.Market) + id.Code
}
