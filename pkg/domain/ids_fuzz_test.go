package domain

import (
	"testing"

	"github.com/google/uuid"
)

func FuzzParseShipmentID(f *testing.F) {
	for _, seed := range []string{"", uuid.NewString(), uuid.Nil.String(), "SHP-1", "\x00\xff"} {
		f.Add(seed)
	}
	f.Fuzz(func(t *testing.T, input string) {
		id, err := ParseShipmentID(input)
		if err != nil {
			if !id.IsNil() {
				t.Fatalf("error with non-nil id %s", id)
			}
			return
		}
		if id.IsNil() {
			t.Fatal("accepted the nil uuid")
		}
		again, err := ParseShipmentID(id.String())
		if err != nil || again != id {
			t.Fatalf("round trip of %s: %v", id, err)
		}
		if _, err := ParseInvoiceID(input); err != nil {
			t.Fatalf("invoice parser disagrees on %q: %v", input, err)
		}
	})
}
