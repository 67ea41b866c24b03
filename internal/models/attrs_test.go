package models

import (
	"encoding/json"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestAttrs_JSONKeepsOrder(t *testing.T) {
	var a Attrs
	a = a.Set("Zeta", "1").Set("alpha", "2").Set("Mid", "3")

	data, err := json.Marshal(a)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(data) != `{"Zeta":"1","alpha":"2","Mid":"3"}` {
		t.Errorf("json = %s", data)
	}

	var back Attrs
	if err := json.Unmarshal([]byte(`{"b":"x","a":7,"c":true}`), &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(back) != 3 || back[0].Key != "b" || back[1].Key != "a" || back[2].Key != "c" {
		t.Fatalf("order lost: %+v", back)
	}
	if back[1].Value != "7" || back[2].Value != "true" {
		t.Errorf("non-string values = %q, %q", back[1].Value, back[2].Value)
	}
}

func TestAttrs_LookupIgnoresCase(t *testing.T) {
	a := Attrs{{Key: "Priority", Value: "high"}}
	if v, ok := a.Lookup(" priority "); !ok || v != "high" {
		t.Errorf("Lookup = %q, %v", v, ok)
	}
	if _, ok := a.Get("priority"); ok {
		t.Error("Get must be exact")
	}
}

func TestAttrs_SetReplacesExisting(t *testing.T) {
	a := Attrs{{Key: "k", Value: "1"}}
	a = a.Set("k", "2")
	if len(a) != 1 || a[0].Value != "2" {
		t.Errorf("attrs = %+v", a)
	}
}

func TestAttrs_YAMLKeepsOrder(t *testing.T) {
	var doc struct {
		Values Attrs `yaml:"values"`
	}
	src := "values:\n  second: b\n  first: a\n"
	if err := yaml.Unmarshal([]byte(src), &doc); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(doc.Values) != 2 || doc.Values[0].Key != "second" || doc.Values[1].Value != "a" {
		t.Errorf("values = %+v", doc.Values)
	}
}

func TestNoteClone_Independent(t *testing.T) {
	n := Note{Tags: []string{"a"}, Embedding: []float32{1}, Values: Attrs{{Key: "k", Value: "v"}}}
	c := n.Clone()
	c.Tags[0] = "b"
	c.Embedding[0] = 2
	c.Values[0].Value = "w"
	if n.Tags[0] != "a" || n.Embedding[0] != 1 || n.Values[0].Value != "v" {
		t.Error("clone shares storage with original")
	}
}
