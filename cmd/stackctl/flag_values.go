// pflag.Value implementations for parse-time validation.
package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/pflag"
)

var _ pflag.Value = (*enumStringValue)(nil)

type enumStringValue struct {
	dest    *string
	allowed map[string]struct{}
}

func newEnumStringValue(dest *string, allowed ...string) *enumStringValue {
	m := make(map[string]struct{}, len(allowed))
	for _, v := range allowed {
		m[v] = struct{}{}
	}
	return &enumStringValue{dest: dest, allowed: m}
}

func (v *enumStringValue) String() string {
	if v == nil || v.dest == nil {
		return ""
	}
	return *v.dest
}

func (v *enumStringValue) Set(s string) error {
	s = strings.TrimSpace(s)
	if _, ok := v.allowed[s]; !ok {
		return fmt.Errorf("must be one of: %s", strings.Join(v.allowedValues(), ", "))
	}
	*v.dest = s
	return nil
}

func (v *enumStringValue) Type() string { return "string" }

func (v *enumStringValue) allowedValues() []string {
	values := make([]string, 0, len(v.allowed))
	for k := range v.allowed {
		values = append(values, k)
	}
	sort.Strings(values)
	return values
}
