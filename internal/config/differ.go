/*
Copyright 2026 The slskd Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

     http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package config

import (
	"reflect"
	"strings"
)

// Diff is one leaf-level change between two snapshots (§4.C5 step 1).
type Diff struct {
	Path            string
	Before          any
	After           any
	RequiresRestart bool
	SoulseekScoped  bool
}

// DiffOptions walks a and b in lockstep and returns one Diff per leaf
// field whose value differs. Leaves are any field that is not itself a
// plain struct (slices, maps, and scalars all compare by
// reflect.DeepEqual, so a changed element anywhere in a slice field
// reports that whole field as one diff).
func DiffOptions(a, b Options) []Diff {
	var diffs []Diff
	walk(reflect.ValueOf(a), reflect.ValueOf(b), reflect.TypeOf(a), "", false, &diffs)
	return diffs
}

func walk(a, b reflect.Value, t reflect.Type, prefix string, soulseekScoped bool, out *[]Diff) {
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		name := yamlName(field)
		path := name
		if prefix != "" {
			path = prefix + "." + name
		}
		scoped := soulseekScoped || path == "soulseek" || strings.HasPrefix(path, "soulseek.")

		av := a.Field(i)
		bv := b.Field(i)

		if field.Type.Kind() == reflect.Struct && field.Type != reflect.TypeOf(struct{}{}) && isPlainStruct(field.Type) {
			walk(av, bv, field.Type, path, scoped, out)
			continue
		}

		if !reflect.DeepEqual(av.Interface(), bv.Interface()) {
			*out = append(*out, Diff{
				Path:            path,
				Before:          av.Interface(),
				After:           bv.Interface(),
				RequiresRestart: hasTag(field, "requires-restart"),
				SoulseekScoped:  scoped,
			})
		}
	}
}

// isPlainStruct reports whether t is a struct this package should
// recurse into, as opposed to a struct-kinded leaf value (time.Time and
// friends) that should be compared as a whole.
func isPlainStruct(t reflect.Type) bool {
	return t.PkgPath() == reflect.TypeOf(Options{}).PkgPath()
}

func yamlName(f reflect.StructField) string {
	tag := f.Tag.Get("yaml")
	if tag == "" {
		return f.Name
	}
	if idx := strings.IndexByte(tag, ','); idx >= 0 {
		tag = tag[:idx]
	}
	if tag == "" {
		return f.Name
	}
	return tag
}

func hasTag(f reflect.StructField, value string) bool {
	tag := f.Tag.Get("slskd")
	for _, part := range strings.Split(tag, ",") {
		if strings.TrimSpace(part) == value {
			return true
		}
	}
	return false
}
