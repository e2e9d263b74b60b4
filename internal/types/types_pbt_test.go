package types

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestClassifyAmountProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	// Property: the type follows the sign of the amount
	properties.Property("type follows sign", prop.ForAll(
		func(amount float64) bool {
			got := ClassifyAmount(amount)
			switch {
			case amount > 0:
				return got == TypeBuy
			case amount < 0:
				return got == TypeSell
			default:
				return got == TypeTransfer
			}
		},
		gen.Float64Range(-1e6, 1e6),
	))

	properties.TestingRun(t)
}

func TestDateProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	// Property: any instant maps to a midnight within the previous 24 hours
	properties.Property("date truncates to UTC midnight", prop.ForAll(
		func(sec int64) bool {
			ts := time.Unix(sec, 0).UTC()
			d := DateFromUnix(sec)
			diff := ts.Sub(d.Time())
			return diff >= 0 && diff < 24*time.Hour
		},
		gen.Int64Range(0, 4102444800),
	))

	// Property: String and ParseDate round-trip
	properties.Property("string round-trip", prop.ForAll(
		func(sec int64) bool {
			d := DateFromUnix(sec)
			parsed, err := ParseDate(d.String())
			return err == nil && parsed.Time().Equal(d.Time())
		},
		gen.Int64Range(0, 4102444800),
	))

	properties.TestingRun(t)
}
