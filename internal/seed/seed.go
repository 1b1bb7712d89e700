// Package seed provides the built-in demo datasets and a CSV importer so a
// fresh deployment has browsable data before any feed or API writes happen.
package seed

import (
	"fmt"

	"gridcore/pkg/tabular"
)

// Accounts returns the invoice ledger demo dataset.
func Accounts() tabular.DatasetSnapshot {
	schema := tabular.Schema{
		{Name: "invoice", Label: "Invoice", Type: tabular.TypeString, Searchable: true},
		{Name: "customer", Label: "Customer", Type: tabular.TypeString, Searchable: true},
		{Name: "amount", Label: "Amount", Type: tabular.TypeNumber},
		{Name: "issued", Label: "Issued", Type: tabular.TypeDate},
		{Name: "status", Label: "Status", Type: tabular.TypeCategory, Searchable: true},
		{Name: "paid", Label: "Paid", Type: tabular.TypeBool},
	}
	rows := []map[string]any{
		{"invoice": "INV-1001", "customer": "Acme Corp", "amount": 1250.00, "issued": "2026-07-02", "status": "sent", "paid": false},
		{"invoice": "INV-1002", "customer": "Globex", "amount": 340.50, "issued": "2026-07-05", "status": "paid", "paid": true},
		{"invoice": "INV-1003", "customer": "Initech", "amount": 88.00, "issued": "2026-07-09", "status": "overdue", "paid": false},
		{"invoice": "INV-1004", "customer": "Acme Corp", "amount": 2200.00, "issued": "2026-07-12", "status": "paid", "paid": true},
		{"invoice": "INV-1005", "customer": "Umbrella", "amount": 415.75, "issued": "2026-07-15", "status": "sent", "paid": false},
		{"invoice": "INV-1006", "customer": "Stark Industries", "amount": 9800.00, "issued": "2026-07-19", "status": "draft", "paid": false},
		{"invoice": "INV-1007", "customer": "Globex", "amount": 129.99, "issued": "2026-07-22", "status": "paid", "paid": true},
		{"invoice": "INV-1008", "customer": "Wayne Enterprises", "amount": 560.00, "issued": "2026-07-26", "status": "overdue", "paid": false},
		{"invoice": "INV-1009", "customer": "Initech", "amount": 75.25, "issued": "2026-08-01", "status": "sent", "paid": false},
		{"invoice": "INV-1010", "customer": "Umbrella", "amount": 1999.00, "issued": "2026-08-03", "status": "paid", "paid": true},
		{"invoice": "INV-1011", "customer": "Acme Corp", "amount": 47.10, "issued": "2026-08-07", "status": "sent", "paid": false},
		{"invoice": "INV-1012", "customer": "Stark Industries", "amount": 310.00, "issued": "2026-08-11", "status": "paid", "paid": true},
	}
	return snapshot("accounts", "Invoice Ledger", schema, rows, "invoice")
}

// Customers returns the CRM demo dataset, including a composite full-name
// field and a list-valued tags field.
func Customers() tabular.DatasetSnapshot {
	schema := tabular.Schema{
		{Name: "first_name", Label: "First Name", Type: tabular.TypeString, Searchable: true},
		{Name: "last_name", Label: "Last Name", Type: tabular.TypeString, Searchable: true},
		{Name: "full_name", Label: "Name", Type: tabular.TypeString, Composite: []string{"last_name", "first_name"}},
		{Name: "email", Label: "Email", Type: tabular.TypeString, Searchable: true},
		{Name: "segment", Label: "Segment", Type: tabular.TypeCategory, Searchable: true},
		{Name: "mrr", Label: "MRR", Type: tabular.TypeNumber},
		{Name: "signup", Label: "Signed Up", Type: tabular.TypeDate},
		{Name: "active", Label: "Active", Type: tabular.TypeBool},
		{Name: "tags", Label: "Tags", Type: tabular.TypeString},
	}
	rows := []map[string]any{
		{"first_name": "Ann", "last_name": "Moss", "email": "ann@moss.example", "segment": "enterprise", "mrr": 4200.0, "signup": "2024-02-14", "active": true, "tags": []string{"priority", "renewal"}},
		{"first_name": "Bob", "last_name": "Moss", "email": "bob@moss.example", "segment": "smb", "mrr": 180.0, "signup": "2024-06-01", "active": true, "tags": []string{"trial"}},
		{"first_name": "Cid", "last_name": "Vale", "email": "cid@vale.example", "segment": "smb", "mrr": 95.0, "signup": "2023-11-30", "active": false, "tags": []string{}},
		{"first_name": "Dana", "last_name": "Reyes", "email": "dana@reyes.example", "segment": "mid-market", "mrr": 890.0, "signup": "2025-01-22", "active": true, "tags": []string{"expansion"}},
		{"first_name": "Eli", "last_name": "Okafor", "email": "eli@okafor.example", "segment": "enterprise", "mrr": 7600.0, "signup": "2022-09-08", "active": true, "tags": []string{"priority"}},
		{"first_name": "Fay", "last_name": "Lindqvist", "email": "fay@lindqvist.example", "segment": "mid-market", "mrr": 430.0, "signup": "2025-05-17", "active": false, "tags": []string{"churn-risk"}},
		{"first_name": "Gus", "last_name": "Barnes", "email": "gus@barnes.example", "segment": "smb", "mrr": 49.0, "signup": "2026-03-02", "active": true, "tags": []string{"trial", "self-serve"}},
		{"first_name": "Hana", "last_name": "Sato", "email": "hana@sato.example", "segment": "enterprise", "mrr": 5100.0, "signup": "2023-04-27", "active": true, "tags": []string{"renewal"}},
	}
	return snapshot("customers", "CRM Customers", schema, rows, "email")
}

// All returns every built-in dataset.
func All() []tabular.DatasetSnapshot {
	return []tabular.DatasetSnapshot{Accounts(), Customers()}
}

// snapshot assembles a DatasetSnapshot, deriving record IDs from idField.
func snapshot(slug, title string, schema tabular.Schema, rows []map[string]any, idField string) tabular.DatasetSnapshot {
	records := make([]tabular.Record, 0, len(rows))
	for i, row := range rows {
		id, _ := row[idField].(string)
		if id == "" {
			id = fmt.Sprintf("%s-%d", slug, i+1)
		}
		records = append(records, tabular.Record{ID: id, Values: row})
	}
	return tabular.DatasetSnapshot{Slug: slug, Title: title, Schema: schema, Records: records}
}
