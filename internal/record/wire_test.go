package record

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestWireRecord_UnmarshalKeepsOrder(t *testing.T) {
	// Given: A JSON object whose keys are not in alphabetical order
	data := `{"name":"Acme","code":"C1","amcamt":1500.50,"priorty":3,"active":true,"branch":null}`

	// When: Unmarshaling into a WireRecord
	var w WireRecord
	if err := json.Unmarshal([]byte(data), &w); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	// Then: Keys keep document order and values keep their kind
	got := strings.Join(w.Keys(), ",")
	if got != "name,code,amcamt,priorty,active,branch" {
		t.Errorf("Keys() = %q", got)
	}

	amt, _ := w.Get("amcamt")
	if amt.Kind != ScalarNumber || amt.Raw != "1500.50" {
		t.Errorf("amcamt = %+v, want raw number 1500.50", amt)
	}
	active, _ := w.Get("active")
	if active.Kind != ScalarBool || active.Raw != "true" {
		t.Errorf("active = %+v", active)
	}
	branch, _ := w.Get("branch")
	if branch.Kind != ScalarNull {
		t.Errorf("branch kind = %v, want null", branch.Kind)
	}
}

func TestWireRecord_UnmarshalRejectsNested(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"object value", `{"code":{"x":1}}`},
		{"array value", `{"code":[1,2]}`},
		{"not an object", `["code"]`},
		{"string", `"code"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var w WireRecord
			err := json.Unmarshal([]byte(tt.data), &w)
			if !errors.Is(err, ErrMalformedInput) {
				t.Errorf("Unmarshal(%s) error = %v, want ErrMalformedInput", tt.data, err)
			}
		})
	}
}

func TestWireRecord_DuplicateKeyKeepsFirstPosition(t *testing.T) {
	var w WireRecord
	if err := json.Unmarshal([]byte(`{"code":"A","name":"x","code":"B"}`), &w); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if got := strings.Join(w.Keys(), ","); got != "code,name" {
		t.Errorf("Keys() = %q, want code,name", got)
	}
	if v, _ := w.Get("code"); v.Raw != "B" {
		t.Errorf("code = %q, want last value B", v.Raw)
	}
}

func TestWireRecord_MarshalRoundTripsOrderAndNumbers(t *testing.T) {
	w := NewWireRecord(
		Field{Key: "name", Value: StringScalar(`Quote "and" slash \`)},
		Field{Key: "balance", Value: NumberScalar("1250.500")},
		Field{Key: "code", Value: StringScalar("M1")},
		Field{Key: "note", Value: Scalar{Kind: ScalarNull}},
	)

	out, err := json.Marshal(w)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	want := `{"name":"Quote \"and\" slash \\","balance":1250.500,"code":"M1","note":null}`
	if string(out) != want {
		t.Errorf("Marshal() = %s\nwant       %s", out, want)
	}
}

func TestWireRecord_MarshalEscapesPathSyntax(t *testing.T) {
	w := NewWireRecord(Field{Key: "a.b", Value: StringScalar("x")})

	out, err := json.Marshal(w)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(out) != `{"a.b":"x"}` {
		t.Errorf("Marshal() = %s", out)
	}
}

func TestWireRecord_SliceInsideStruct(t *testing.T) {
	// Given: A sync request body
	body := `{"table":"acc_product","data":[{"code":"P1"},{"code":"P2","brand":"B"}]}`

	// When: Decoding with encoding/json
	var req struct {
		Table string       `json:"table"`
		Data  []WireRecord `json:"data"`
	}
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	// Then: Each element is parsed independently
	if len(req.Data) != 2 {
		t.Fatalf("len(Data) = %d, want 2", len(req.Data))
	}
	if req.Data[0].Len() != 1 || req.Data[1].Len() != 2 {
		t.Errorf("lens = %d, %d", req.Data[0].Len(), req.Data[1].Len())
	}
}
