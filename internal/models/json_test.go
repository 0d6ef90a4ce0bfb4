package models

import "testing"

func TestJSONMergeIntoKeepsUntouchedFields(t *testing.T) {
	base := JSON{
		"status": "pending",
		"total":  float64(500),
		"payment": map[string]interface{}{
			"provider": "paypro",
			"redirect": "https://pay.example/1",
		},
	}
	merged := base.MergeInto(JSON{
		"status": "paid",
		"payment": map[string]interface{}{
			"status": "paid",
		},
	})

	if merged["status"] != "paid" || merged["total"] != float64(500) {
		t.Fatalf("unexpected top level merge: %#v", merged)
	}
	payment, ok := merged["payment"].(map[string]interface{})
	if !ok {
		t.Fatalf("payment should stay an object: %#v", merged["payment"])
	}
	if payment["provider"] != "paypro" || payment["redirect"] != "https://pay.example/1" || payment["status"] != "paid" {
		t.Fatalf("nested merge lost fields: %#v", payment)
	}
	if base["status"] != "pending" {
		t.Fatalf("merge must not mutate the receiver")
	}
}

func TestJSONScanAcceptsStringAndBytes(t *testing.T) {
	var fromString JSON
	if err := fromString.Scan(`{"a":"1"}`); err != nil {
		t.Fatalf("scan string failed: %v", err)
	}
	if fromString["a"] != "1" {
		t.Fatalf("unexpected scan result: %#v", fromString)
	}

	var fromBytes JSON
	if err := fromBytes.Scan([]byte(`{"b":true}`)); err != nil {
		t.Fatalf("scan bytes failed: %v", err)
	}
	if fromBytes["b"] != true {
		t.Fatalf("unexpected scan result: %#v", fromBytes)
	}

	var fromNil JSON
	if err := fromNil.Scan(nil); err != nil || fromNil == nil {
		t.Fatalf("nil scan should yield empty object, err=%v", err)
	}
}

func TestOrderMappingFromJSONEmpty(t *testing.T) {
	m, err := OrderMappingFromJSON(nil)
	if err != nil || m != nil {
		t.Fatalf("empty document should decode to nil, got=%v err=%v", m, err)
	}
}
