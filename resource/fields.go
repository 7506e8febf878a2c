package resource

import (
	"reflect"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// fieldValues returns the exported fields of the struct v points to, keyed
// by json name. Embedded structs without a json name are flattened. Nil
// pointers are dropped unless keepNil is set.
func fieldValues(v any, keepNil bool) map[string]any {
	out := map[string]any{}
	rv := reflect.Indirect(reflect.ValueOf(v))
	if rv.Kind() != reflect.Struct {
		return out
	}
	collectFields(rv, keepNil, out)
	return out
}

func collectFields(rv reflect.Value, keepNil bool, out map[string]any) {
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		sf := rt.Field(i)
		name, skip := jsonName(sf)
		if skip {
			continue
		}
		fv := rv.Field(i)
		if sf.Anonymous && name == "" {
			inner := reflect.Indirect(fv)
			if inner.Kind() == reflect.Struct {
				collectFields(inner, keepNil, out)
				continue
			}
		}
		if !sf.IsExported() {
			continue
		}
		if name == "" {
			name = sf.Name
		}
		if fv.Kind() == reflect.Ptr && fv.IsNil() {
			if keepNil {
				out[name] = nil
			}
			continue
		}
		out[name] = fv.Interface()
	}
}

func jsonName(sf reflect.StructField) (string, bool) {
	tag := sf.Tag.Get("json")
	if tag == "-" {
		return "", true
	}
	return strings.SplitN(tag, ",", 2)[0], false
}

// assign writes values onto the struct dst points to, matching keys against
// json names case-insensitively. A nil value zeroes its field.
func assign(dst any, values map[string]any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           dst,
		WeaklyTypedInput: true,
		ZeroFields:       true,
		Squash:           true,
	})
	if err != nil {
		return err
	}
	return dec.Decode(values)
}

// lookupKey finds key in m ignoring case, mirroring how encoding/json
// matches object keys to struct fields.
func lookupKey[V any](m map[string]V, key string) (string, bool) {
	if _, ok := m[key]; ok {
		return key, true
	}
	for k := range m {
		if strings.EqualFold(k, key) {
			return k, true
		}
	}
	return "", false
}
