package seed

import (
	"strings"
	"testing"

	"gridcore/internal/engine"
	"gridcore/pkg/tabular"
)

func TestBuiltinDatasetsAreValid(t *testing.T) {
	for _, snap := range All() {
		t.Run(snap.Slug, func(t *testing.T) {
			if _, err := engine.NewDataset(snap); err != nil {
				t.Fatal(err)
			}
			if len(snap.Records) == 0 {
				t.Fatal("seed dataset is empty")
			}
			ids := make(map[string]struct{}, len(snap.Records))
			for _, rec := range snap.Records {
				if rec.ID == "" {
					t.Fatal("record without ID")
				}
				if _, dup := ids[rec.ID]; dup {
					t.Fatalf("duplicate ID %q", rec.ID)
				}
				ids[rec.ID] = struct{}{}
			}
		})
	}
}

func TestCustomersCompositeSortsByLastThenFirst(t *testing.T) {
	snap := Customers()
	sorted := engine.Sort(snap.Schema, snap.Records, &tabular.SortRule{
		Field:     "full_name",
		Direction: tabular.SortAscending,
	})
	// Ann Moss and Bob Moss share a last name; Ann sorts first.
	var mossOrder []string
	for _, rec := range sorted {
		if rec.Values["last_name"] == "Moss" {
			mossOrder = append(mossOrder, rec.Values["first_name"].(string))
		}
	}
	if len(mossOrder) != 2 || mossOrder[0] != "Ann" || mossOrder[1] != "Bob" {
		t.Fatalf("got %v", mossOrder)
	}
}

func TestFromCSV(t *testing.T) {
	schema := tabular.Schema{
		{Name: "name", Label: "Name", Type: tabular.TypeString},
		{Name: "amount", Label: "Amount", Type: tabular.TypeNumber},
		{Name: "active", Label: "Active", Type: tabular.TypeBool},
	}
	input := strings.Join([]string{
		"id,Name,amount,Active,ignored",
		"r1,Widget,12.5,true,junk",
		"r2,Gadget,not-a-number,FALSE,junk",
		",Gizmo,7,true,junk",
	}, "\n")

	snap, err := FromCSV("items", "Items", schema, strings.NewReader(input))
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Records) != 3 {
		t.Fatalf("got %d records", len(snap.Records))
	}

	first := snap.Records[0]
	if first.ID != "r1" || first.Values["amount"] != 12.5 || first.Values["active"] != true {
		t.Fatalf("first: %+v", first)
	}
	// Malformed numerics stay as raw strings instead of failing the import.
	if snap.Records[1].Values["amount"] != "not-a-number" {
		t.Fatalf("second amount: %v", snap.Records[1].Values["amount"])
	}
	if snap.Records[1].Values["active"] != false {
		t.Fatalf("second active: %v", snap.Records[1].Values["active"])
	}
	// A blank id column falls back to a generated row ID.
	if snap.Records[2].ID != "items-3" {
		t.Fatalf("third id: %q", snap.Records[2].ID)
	}
	// Columns not in the schema are dropped.
	if _, ok := first.Values["ignored"]; ok {
		t.Fatal("unbound column imported")
	}
}

func TestFromCSVRejectsInvalidSchema(t *testing.T) {
	if _, err := FromCSV("x", "X", tabular.Schema{}, strings.NewReader("a\n1\n")); err == nil {
		t.Fatal("expected error")
	}
}
